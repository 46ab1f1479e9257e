package domain

import "time"

// User es el agregado de identidad del sistema.
// PasswordHash y PasswordSalt nunca salen del borde de credenciales:
// toda operación pública devuelve el resultado de Sanitized.
type User struct {
	ID                   string     `json:"id"`
	Email                string     `json:"email"`
	Name                 string     `json:"name,omitempty"`
	PasswordHash         string     `json:"-"`
	PasswordSalt         string     `json:"-"`
	LastLoginAt          *time.Time `json:"last_login_at,omitempty"`
	Active               bool       `json:"active"`
	RecoveryCode         string     `json:"-"`
	RecoveryCodeIssuedAt *time.Time `json:"-"`
	CreatedAt            time.Time  `json:"created_at"`
}

// Sanitized devuelve una copia sin los campos secretos.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	u.PasswordSalt = ""
	return u
}

// HasRecoveryCode indica si hay una solicitud de recuperación pendiente.
func (u User) HasRecoveryCode() bool {
	return u.RecoveryCode != "" && u.RecoveryCodeIssuedAt != nil
}
