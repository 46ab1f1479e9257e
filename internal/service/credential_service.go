package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"bookcycle-auth/internal/domain"
	"bookcycle-auth/internal/email"
	"bookcycle-auth/internal/password"
	"bookcycle-auth/internal/repository"
)

const (
	// Largo permitido de contraseña. Validarlo es responsabilidad de la
	// capa que llama; acá es precondición.
	PasswordMinLength = 6
	PasswordMaxLength = 32

	defaultRecoveryCodeTTL = 24 * time.Hour
)

// CredentialService orquesta el cambio de contraseña y el flujo de
// recuperación por código.
type CredentialService struct {
	logger  *zap.Logger
	users   repository.UserRepository
	sender  email.Sender
	limiter RecoveryRateLimiter
	codeTTL time.Duration
	now     func() time.Time
}

func NewCredentialService(logger *zap.Logger, users repository.UserRepository, sender email.Sender, limiter RecoveryRateLimiter, codeTTL time.Duration) *CredentialService {
	if codeTTL <= 0 {
		codeTTL = defaultRecoveryCodeTTL
	}
	return &CredentialService{
		logger:  logger,
		users:   users,
		sender:  sender,
		limiter: limiter,
		codeTTL: codeTTL,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ChangePassword reemplaza la contraseña de un usuario ya identificado
// (por contraseña vigente o por código de recuperación confirmado).
// Genera salt nuevo y limpia cualquier código de recuperación pendiente,
// consumiéndolo. Un largo fuera de [6,32] es violación de precondición.
func (s *CredentialService) ChangePassword(ctx context.Context, userID, newPlaintext string) (domain.User, error) {
	if err := validateNewPassword(newPlaintext); err != nil {
		return domain.User{}, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}

	return s.replacePassword(ctx, user, newPlaintext)
}

// ChangePasswordWithOldPassword verifica la contraseña vigente y recién
// entonces persiste la nueva. Usa la fila ya cargada para la
// verificación: una sola lectura por operación.
func (s *CredentialService) ChangePasswordWithOldPassword(ctx context.Context, userID, oldPlaintext, newPlaintext string) (domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}

	if !password.Verify(oldPlaintext, user.PasswordSalt, user.PasswordHash) {
		s.logger.Info("password change with wrong password", zap.String("user_id", user.ID))
		return domain.User{}, ErrInvalidCredentials
	}

	if err := validateNewPassword(newPlaintext); err != nil {
		return domain.User{}, err
	}

	return s.replacePassword(ctx, user, newPlaintext)
}

func validateNewPassword(plaintext string) error {
	if length := utf8.RuneCountInString(plaintext); length < PasswordMinLength || length > PasswordMaxLength {
		return fmt.Errorf("%w: must be between %d and %d characters", ErrPasswordPolicy, PasswordMinLength, PasswordMaxLength)
	}
	return nil
}

func (s *CredentialService) replacePassword(ctx context.Context, user domain.User, newPlaintext string) (domain.User, error) {
	salt, err := password.NewSalt()
	if err != nil {
		return domain.User{}, err
	}
	hash := password.Hash(newPlaintext, salt)

	if err := s.users.UpdatePassword(ctx, user.ID, hash, salt); err != nil {
		return domain.User{}, err
	}

	user.RecoveryCode = ""
	user.RecoveryCodeIssuedAt = nil
	return user.Sanitized(), nil
}

// RequestPasswordRecovery emite un código de recuperación nuevo y dispara
// el correo con las instrucciones. El envío es fire-and-forget: la falla
// se loguea y no se propaga al solicitante. A diferencia del login, este
// endpoint sí revela si el email existe; es una decisión de producto
// heredada y deliberada.
func (s *CredentialService) RequestPasswordRecovery(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return ErrValidation
	}

	if s.limiter != nil && !s.limiter.Allow(emailAddr) {
		return ErrRateLimited
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrEmailNotFound
		}
		return err
	}

	// Un código nuevo reemplaza al anterior: sólo el último emitido vale.
	code := uuid.NewString()
	issuedAt := s.now()
	if err := s.users.UpdateRecoveryCode(ctx, user.ID, code, issuedAt); err != nil {
		return err
	}

	sendCtx := context.WithoutCancel(ctx)
	go func() {
		if err := s.sender.SendPasswordRecovery(sendCtx, user.Email, user.Name, code); err != nil {
			s.logger.Warn("send recovery email failed",
				zap.Error(err),
				zap.String("user_id", user.ID),
			)
		}
	}()

	return nil
}

// ConfirmRecoveryCode devuelve el usuario sanitizado si el código existe
// y sigue vigente. No consume el código: eso ocurre recién cuando el
// cambio de contraseña se concreta. La vigencia es exclusiva en el borde:
// a exactamente TTL el código ya expiró.
func (s *CredentialService) ConfirmRecoveryCode(ctx context.Context, code string) (domain.User, error) {
	if code == "" {
		return domain.User{}, ErrRecoveryNotFound
	}

	user, err := s.users.GetByRecoveryCode(ctx, code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrRecoveryNotFound
		}
		return domain.User{}, err
	}

	if !user.HasRecoveryCode() || s.now().Sub(*user.RecoveryCodeIssuedAt) >= s.codeTTL {
		return domain.User{}, ErrRecoveryExpired
	}

	return user.Sanitized(), nil
}
