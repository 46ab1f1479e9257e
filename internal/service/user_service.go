package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"bookcycle-auth/internal/domain"
	"bookcycle-auth/internal/password"
	"bookcycle-auth/internal/repository"
)

// UserService maneja alta y actualización de perfil de usuarios.
type UserService struct {
	logger *zap.Logger
	users  repository.UserRepository
	now    func() time.Time
}

func NewUserService(logger *zap.Logger, users repository.UserRepository) *UserService {
	return &UserService{
		logger: logger,
		users:  users,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

// Register crea un usuario activo con email único (case-insensitive,
// normalizado a minúsculas) y contraseña hasheada con salt propio.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (domain.User, error) {
	emailAddr := normalizeEmail(input.Email)
	name := strings.TrimSpace(input.Name)
	if emailAddr == "" || !strings.Contains(emailAddr, "@") || input.Password == "" {
		return domain.User{}, ErrValidation
	}
	if length := utf8.RuneCountInString(input.Password); length < PasswordMinLength || length > PasswordMaxLength {
		return domain.User{}, ErrValidation
	}

	taken, err := s.users.ExistsWithEmail(ctx, emailAddr, "")
	if err != nil {
		return domain.User{}, err
	}
	if taken {
		return domain.User{}, ErrEmailTaken
	}

	salt, err := password.NewSalt()
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Email:        emailAddr,
		Name:         name,
		PasswordHash: password.Hash(input.Password, salt),
		PasswordSalt: salt,
		Active:       true,
		CreatedAt:    s.now(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		return domain.User{}, err
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return user.Sanitized(), nil
}

type UpdateProfileInput struct {
	Email string
	Name  string
}

// UpdateProfile actualiza email y nombre del usuario identificado por el
// llamador. La identidad llega como argumento explícito, nunca de un
// contexto ambiente.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (domain.User, error) {
	emailAddr := normalizeEmail(input.Email)
	name := strings.TrimSpace(input.Name)
	if userID == "" || emailAddr == "" || !strings.Contains(emailAddr, "@") || name == "" {
		return domain.User{}, ErrValidation
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}

	taken, err := s.users.ExistsWithEmail(ctx, emailAddr, user.ID)
	if err != nil {
		return domain.User{}, err
	}
	if taken {
		return domain.User{}, ErrEmailTaken
	}

	if err := s.users.UpdateProfile(ctx, user.ID, emailAddr, name); err != nil {
		return domain.User{}, err
	}

	user.Email = emailAddr
	user.Name = name
	return user.Sanitized(), nil
}

// GetByID devuelve el usuario sanitizado, para el endpoint de perfil.
func (s *UserService) GetByID(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user.Sanitized(), nil
}
