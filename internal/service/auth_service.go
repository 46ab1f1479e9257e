package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"bookcycle-auth/internal/domain"
	"bookcycle-auth/internal/password"
	"bookcycle-auth/internal/repository"
)

// AuthService orquesta el login por email y contraseña.
type AuthService struct {
	logger *zap.Logger
	users  repository.UserRepository
	guard  *BruteForceGuard
	now    func() time.Time
}

func NewAuthService(logger *zap.Logger, users repository.UserRepository, guard *BruteForceGuard) *AuthService {
	if guard == nil {
		guard = NewBruteForceGuard(0)
	}
	return &AuthService{
		logger: logger,
		users:  users,
		guard:  guard,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Authenticate valida credenciales y devuelve el usuario sanitizado.
//
// El timestamp del intento se persiste ANTES de evaluar la contraseña,
// con éxito o fracaso, para que el guard de fuerza bruta siempre tenga
// el dato del intento anterior. Esa escritura usa un contexto sin
// cancelación: un cliente que corta la conexión no puede saltearse el
// registro del intento.
func (s *AuthService) Authenticate(ctx context.Context, emailAddr, plaintext string) (domain.User, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || plaintext == "" {
		return domain.User{}, ErrValidation
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Mismo error que contraseña incorrecta: no se revela
			// si el email existe.
			s.logger.Debug("login for unknown email", zap.String("email", emailAddr))
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}

	if s.guard.IsBlocked(user) {
		s.logger.Info("login throttled", zap.String("user_id", user.ID))
		return domain.User{}, ErrLoginThrottled
	}

	// La escritura es condicional: sólo pisa un timestamp ya fuera de la
	// ventana. Si otro intento concurrente ganó la carrera después de
	// nuestra lectura, este intento queda bloqueado igual que si el guard
	// lo hubiera visto.
	at := s.now()
	staleBefore := at.Add(-s.guard.Cooldown())
	if err := s.users.UpdateLastLogin(context.WithoutCancel(ctx), user.ID, at, staleBefore); err != nil {
		if errors.Is(err, repository.ErrLoginAttemptConflict) {
			s.logger.Info("login throttled", zap.String("user_id", user.ID))
			return domain.User{}, ErrLoginThrottled
		}
		return domain.User{}, fmt.Errorf("persist login attempt: %w", err)
	}

	if !password.Verify(plaintext, user.PasswordSalt, user.PasswordHash) {
		s.logger.Info("login with wrong password", zap.String("user_id", user.ID))
		return domain.User{}, ErrInvalidCredentials
	}

	if !user.Active {
		return domain.User{}, ErrAccountSuspended
	}

	user.LastLoginAt = &at
	return user.Sanitized(), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
