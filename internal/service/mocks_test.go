package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"bookcycle-auth/internal/domain"
	"bookcycle-auth/internal/repository"
)

type mockUserRepo struct {
	mu        sync.Mutex
	usersByID map[string]domain.User

	lastLoginUpdates   int
	updateLastLoginErr error
	passwordUpdates    int
	getByIDCalls       int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID: make(map[string]domain.User),
	}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usersByID[user.ID] = user
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getByIDCalls++
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.usersByID {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return domain.User{}, pgx.ErrNoRows
}

func (m *mockUserRepo) GetByRecoveryCode(_ context.Context, code string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.usersByID {
		if user.RecoveryCode != "" && user.RecoveryCode == code {
			return user, nil
		}
	}
	return domain.User{}, pgx.ErrNoRows
}

func (m *mockUserRepo) ExistsWithEmail(_ context.Context, email, excludingID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.usersByID {
		if strings.EqualFold(user.Email, email) && user.ID != excludingID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUserRepo) UpdateProfile(_ context.Context, id, email, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.Email = email
	user.Name = name
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) UpdateLastLogin(_ context.Context, id string, at, staleBefore time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateLastLoginErr != nil {
		return m.updateLastLoginErr
	}
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if user.LastLoginAt != nil && user.LastLoginAt.After(staleBefore) {
		return repository.ErrLoginAttemptConflict
	}
	m.lastLoginUpdates++
	user.LastLoginAt = &at
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id, hash, salt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	m.passwordUpdates++
	user.PasswordHash = hash
	user.PasswordSalt = salt
	user.RecoveryCode = ""
	user.RecoveryCodeIssuedAt = nil
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) UpdateRecoveryCode(_ context.Context, id, code string, issuedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.RecoveryCode = code
	user.RecoveryCodeIssuedAt = &issuedAt
	m.usersByID[id] = user
	return nil
}

// mockRecoverySender captura los envíos y avisa por canal, porque el
// servicio despacha el correo en una goroutine.
type mockRecoverySender struct {
	mu       sync.Mutex
	lastTo   string
	lastName string
	lastCode string
	err      error
	sent     chan struct{}
}

func newMockRecoverySender() *mockRecoverySender {
	return &mockRecoverySender{sent: make(chan struct{}, 8)}
}

func (m *mockRecoverySender) SendPasswordRecovery(_ context.Context, toEmail, name, code string) error {
	m.mu.Lock()
	m.lastTo = toEmail
	m.lastName = name
	m.lastCode = code
	err := m.err
	m.mu.Unlock()
	m.sent <- struct{}{}
	return err
}

func (m *mockRecoverySender) waitSent(t interface{ Fatalf(string, ...any) }) {
	select {
	case <-m.sent:
	case <-time.After(time.Second):
		t.Fatalf("expected recovery email dispatch")
	}
}

func (m *mockRecoverySender) last() (string, string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTo, m.lastName, m.lastCode
}

type mockLimiter struct {
	allow bool
}

func (m *mockLimiter) Allow(_ string) bool {
	return m.allow
}
