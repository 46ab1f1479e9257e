package service

import "errors"

// Fallas recuperables del subsistema de credenciales. El handler HTTP las
// traduce a mensajes legibles; login nunca distingue email inexistente de
// contraseña incorrecta.
var (
	ErrValidation         = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLoginThrottled     = errors.New("login throttled")
	ErrAccountSuspended   = errors.New("account suspended")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrEmailNotFound      = errors.New("email not found")
	ErrRecoveryNotFound   = errors.New("recovery code not found")
	ErrRecoveryExpired    = errors.New("recovery code expired")
	ErrRateLimited        = errors.New("rate limited")
)

// ErrPasswordPolicy es una violación de precondición: la capa que llama
// debe validar el largo antes de invocar al servicio. No es una falla
// recuperable y el handler la trata como error de contrato.
var ErrPasswordPolicy = errors.New("password length out of range")
