package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bookcycle-auth/internal/domain"
)

// ErrLoginAttemptConflict indica que otro intento de login ya registró
// un timestamp dentro de la ventana: el compare-and-set no escribió.
var ErrLoginAttemptConflict = errors.New("login attempt conflict")

// UserRepository define el contrato de persistencia para usuarios.
// Los emails llegan ya normalizados a minúsculas desde los servicios.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByRecoveryCode(ctx context.Context, code string) (domain.User, error)
	ExistsWithEmail(ctx context.Context, email, excludingID string) (bool, error)
	UpdateProfile(ctx context.Context, id, email, name string) error
	UpdateLastLogin(ctx context.Context, id string, at, staleBefore time.Time) error
	UpdatePassword(ctx context.Context, id, hash, salt string) error
	UpdateRecoveryCode(ctx context.Context, id, code string, issuedAt time.Time) error
}

const userColumns = `
	id, email, name, password_hash, password_salt,
	last_login_at, active, recovery_code, recovery_code_issued_at, created_at
`

// PgUserRepository implementa UserRepository usando pgxpool.
// Cada mutación es un UPDATE atómico sobre la fila del usuario, así dos
// intentos de login concurrentes quedan serializados por la base.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (id, email, name, password_hash, password_salt, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.PasswordSalt,
		user.Active,
		user.CreatedAt,
	)
	return err
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *PgUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return r.scanOne(r.pool.QueryRow(ctx, query, email))
}

func (r *PgUserRepository) GetByRecoveryCode(ctx context.Context, code string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE recovery_code = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, code))
}

func (r *PgUserRepository) ExistsWithEmail(ctx context.Context, email, excludingID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM users
			WHERE LOWER(email) = LOWER($1) AND ($2 = '' OR id <> $2)
		)
	`
	var exists bool
	err := r.pool.QueryRow(ctx, query, email, excludingID).Scan(&exists)
	return exists, err
}

func (r *PgUserRepository) UpdateProfile(ctx context.Context, id, email, name string) error {
	const query = `UPDATE users SET email = $2, name = $3 WHERE id = $1`
	return r.execOne(ctx, query, id, email, name)
}

// UpdateLastLogin registra el intento sólo si el timestamp guardado es
// anterior al umbral: un compare-and-set en un solo UPDATE. Dos intentos
// concurrentes que leyeron el mismo estado no pueden escribir los dos;
// el que pierde recibe ErrLoginAttemptConflict.
func (r *PgUserRepository) UpdateLastLogin(ctx context.Context, id string, at, staleBefore time.Time) error {
	const query = `
		UPDATE users
		SET last_login_at = $2
		WHERE id = $1 AND (last_login_at IS NULL OR last_login_at <= $3)
	`
	tag, err := r.pool.Exec(ctx, query, id, at, staleBefore)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLoginAttemptConflict
	}
	return nil
}

// UpdatePassword persiste hash y salt nuevos y limpia el código de
// recuperación: un cambio de contraseña consume el código pendiente.
func (r *PgUserRepository) UpdatePassword(ctx context.Context, id, hash, salt string) error {
	const query = `
		UPDATE users
		SET password_hash = $2, password_salt = $3,
		    recovery_code = NULL, recovery_code_issued_at = NULL
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, hash, salt)
}

func (r *PgUserRepository) UpdateRecoveryCode(ctx context.Context, id, code string, issuedAt time.Time) error {
	const query = `
		UPDATE users
		SET recovery_code = $2, recovery_code_issued_at = $3
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, code, issuedAt)
}

func (r *PgUserRepository) execOne(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgUserRepository) scanOne(row pgx.Row) (domain.User, error) {
	var (
		u            domain.User
		recoveryCode *string
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.PasswordHash,
		&u.PasswordSalt,
		&u.LastLoginAt,
		&u.Active,
		&recoveryCode,
		&u.RecoveryCodeIssuedAt,
		&u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, err
	}
	if recoveryCode != nil {
		u.RecoveryCode = *recoveryCode
	}
	return u, err
}
