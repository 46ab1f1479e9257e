package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltBytes  = 16
	iterations = 10000
	keyLength  = 32
)

// NewSalt genera un salt aleatorio por usuario, codificado en base64.
func NewSalt() (string, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(salt), nil
}

// Hash deriva el digest de una contraseña con su salt.
// Determinista: mismas entradas producen siempre el mismo digest.
func Hash(plaintext, salt string) string {
	key := pbkdf2.Key([]byte(plaintext), []byte(salt), iterations, keyLength, sha256.New)
	return base64.StdEncoding.EncodeToString(key)
}

// Verify compara en tiempo constante el digest almacenado contra
// el recalculado con la contraseña recibida.
func Verify(plaintext, salt, digest string) bool {
	computed := Hash(plaintext, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1
}
