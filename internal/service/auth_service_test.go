package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"bookcycle-auth/internal/domain"
	"bookcycle-auth/internal/password"
)

func seedUser(t *testing.T, repo *mockUserRepo, id, emailAddr, plaintext string, active bool) domain.User {
	t.Helper()
	salt, err := password.NewSalt()
	if err != nil {
		t.Fatalf("new salt: %v", err)
	}
	user := domain.User{
		ID:           id,
		Email:        emailAddr,
		Name:         "Test",
		PasswordHash: password.Hash(plaintext, salt),
		PasswordSalt: salt,
		Active:       active,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func TestAuthServiceAuthenticate_Success(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(t, repo, "u1", "user@example.com", "secret123", true)
	svc := NewAuthService(zap.NewNop(), repo, NewBruteForceGuard(30*time.Second))

	user, err := svc.Authenticate(context.Background(), "User@Example.com", "secret123")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if user.PasswordHash != "" || user.PasswordSalt != "" {
		t.Fatalf("expected sanitized user, got hash=%q salt=%q", user.PasswordHash, user.PasswordSalt)
	}
	if user.LastLoginAt == nil {
		t.Fatalf("expected last login recorded")
	}
	if repo.lastLoginUpdates != 1 {
		t.Fatalf("expected one last-login write, got %d", repo.lastLoginUpdates)
	}
}

func TestAuthServiceAuthenticate_MissingInput(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(t, repo, "u1", "user@example.com", "secret123", true)
	svc := NewAuthService(zap.NewNop(), repo, nil)

	if _, err := svc.Authenticate(context.Background(), "", "secret123"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "user@example.com", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if repo.lastLoginUpdates != 0 {
		t.Fatalf("expected no side effects on validation failure, got %d writes", repo.lastLoginUpdates)
	}
}

func TestAuthServiceAuthenticate_UnknownEmailAndWrongPasswordLookAlike(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(t, repo, "u1", "user@example.com", "secret123", true)
	svc := NewAuthService(zap.NewNop(), repo, NewBruteForceGuard(30*time.Second))

	_, errUnknown := svc.Authenticate(context.Background(), "nobody@example.com", "secret123")
	if !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", errUnknown)
	}

	_, errWrong := svc.Authenticate(context.Background(), "user@example.com", "wrongpass")
	if !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", errWrong)
	}

	// Mismo valor de error: el llamador no puede enumerar cuentas.
	if !errors.Is(errUnknown, errWrong) && errUnknown.Error() != errWrong.Error() {
		t.Fatalf("expected indistinguishable failures, got %v vs %v", errUnknown, errWrong)
	}
}

func TestAuthServiceAuthenticate_WrongPasswordStillAdvancesClock(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(t, repo, "u1", "user@example.com", "secret123", true)
	svc := NewAuthService(zap.NewNop(), repo, NewBruteForceGuard(30*time.Second))

	if _, err := svc.Authenticate(context.Background(), "user@example.com", "wrongpass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if repo.lastLoginUpdates != 1 {
		t.Fatalf("expected last-login persisted on failure, got %d writes", repo.lastLoginUpdates)
	}

	stored, err := repo.GetByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if stored.LastLoginAt == nil {
		t.Fatalf("expected last login recorded after failed attempt")
	}
}

func TestAuthServiceAuthenticate_SecondAttemptWithinWindowBlocked(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(t, repo, "u1", "user@example.com", "secret123", true)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	guard := NewBruteForceGuard(30 * time.Second)
	svc := NewAuthService(zap.NewNop(), repo, guard)

	now := base
	svc.now = func() time.Time { return now }
	guard.now = func() time.Time { return now }

	if _, err := svc.Authenticate(context.Background(), "user@example.com", "secret123"); err != nil {
		t.Fatalf("first login should succeed, got %v", err)
	}

	// Retry correcto 10s después: bloqueado igual.
	now = base.Add(10 * time.Second)
	if _, err := svc.Authenticate(context.Background(), "user@example.com", "secret123"); !errors.Is(err, ErrLoginThrottled) {
		t.Fatalf("expected ErrLoginThrottled, got %v", err)
	}
	if repo.lastLoginUpdates != 1 {
		t.Fatalf("blocked attempt must not rewrite last login, got %d writes", repo.lastLoginUpdates)
	}

	// Cumplida la ventana, vuelve a entrar.
	now = base.Add(30 * time.Second)
	if _, err := svc.Authenticate(context.Background(), "user@example.com", "secret123"); err != nil {
		t.Fatalf("expected success after window, got %v", err)
	}
}

func TestAuthServiceAuthenticate_ThrottleDoesNotRevealPassword(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(t, repo, "u1", "user@example.com", "secret123", true)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	guard := NewBruteForceGuard(30 * time.Second)
	svc := NewAuthService(zap.NewNop(), repo, guard)
	now := base
	svc.now = func() time.Time { return now }
	guard.now = func() time.Time { return now }

	if _, err := svc.Authenticate(context.Background(), "user@example.com", "wrongpass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	now = base.Add(5 * time.Second)
	_, errRight := svc.Authenticate(context.Background(), "user@example.com", "secret123")
	_, errWrong := svc.Authenticate(context.Background(), "user@example.com", "stillwrong")
	if !errors.Is(errRight, ErrLoginThrottled) || !errors.Is(errWrong, ErrLoginThrottled) {
		t.Fatalf("throttled response must not depend on password, got %v / %v", errRight, errWrong)
	}
}

func TestAuthServiceAuthenticate_LastLoginAlwaysAdvances(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(t, repo, "u1", "user@example.com", "secret123", true)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	guard := NewBruteForceGuard(time.Second)
	svc := NewAuthService(zap.NewNop(), repo, guard)
	now := base
	svc.now = func() time.Time { return now }
	guard.now = func() time.Time { return now }

	var previous time.Time
	passwords := []string{"secret123", "nope", "secret123"}
	for i, p := range passwords {
		now = base.Add(time.Duration(i) * time.Minute)
		_, _ = svc.Authenticate(context.Background(), "user@example.com", p)
		stored, err := repo.GetByID(context.Background(), "u1")
		if err != nil {
			t.Fatalf("get user: %v", err)
		}
		if stored.LastLoginAt == nil || stored.LastLoginAt.Before(previous) {
			t.Fatalf("expected last login monotonic, got %v after %v", stored.LastLoginAt, previous)
		}
		previous = *stored.LastLoginAt
	}
}

func TestAuthServiceAuthenticate_InactiveAccount(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(t, repo, "u1", "user@example.com", "secret123", false)
	svc := NewAuthService(zap.NewNop(), repo, NewBruteForceGuard(30*time.Second))

	_, err := svc.Authenticate(context.Background(), "user@example.com", "secret123")
	if !errors.Is(err, ErrAccountSuspended) {
		t.Fatalf("expected ErrAccountSuspended, got %v", err)
	}
	if repo.lastLoginUpdates != 1 {
		t.Fatalf("expected attempt recorded for suspended account, got %d writes", repo.lastLoginUpdates)
	}
}

func TestAuthServiceAuthenticate_LastLoginWriteErrorPropagates(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(t, repo, "u1", "user@example.com", "secret123", true)
	repo.updateLastLoginErr = errors.New("storage down")
	svc := NewAuthService(zap.NewNop(), repo, NewBruteForceGuard(30*time.Second))

	_, err := svc.Authenticate(context.Background(), "user@example.com", "secret123")
	if err == nil || errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected storage error to surface, got %v", err)
	}
}

// rendezvousUserRepo frena GetByEmail hasta que todos los lectores
// esperados leyeron, forzando que dos intentos vean el mismo estado.
type rendezvousUserRepo struct {
	*mockUserRepo
	readers *sync.WaitGroup
}

func (r *rendezvousUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	user, err := r.mockUserRepo.GetByEmail(ctx, email)
	r.readers.Done()
	r.readers.Wait()
	return user, err
}

func TestAuthServiceAuthenticate_ConcurrentAttemptsSingleWinner(t *testing.T) {
	inner := newMockUserRepo()
	seedUser(t, inner, "u1", "user@example.com", "secret123", true)

	var readers sync.WaitGroup
	readers.Add(2)
	repo := &rendezvousUserRepo{mockUserRepo: inner, readers: &readers}

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	guard := NewBruteForceGuard(30 * time.Second)
	svc := NewAuthService(zap.NewNop(), repo, guard)
	svc.now = func() time.Time { return base }
	guard.now = func() time.Time { return base }

	// Ambos intentos leen al usuario antes de que cualquiera escriba el
	// timestamp, así que el guard en memoria deja pasar a los dos. La
	// escritura condicional tiene que dejar ganar a uno solo.
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.Authenticate(context.Background(), "user@example.com", "secret123")
			results <- err
		}()
	}

	var successes, throttled int
	for i := 0; i < 2; i++ {
		switch err := <-results; {
		case err == nil:
			successes++
		case errors.Is(err, ErrLoginThrottled):
			throttled++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || throttled != 1 {
		t.Fatalf("expected one winner and one throttled, got %d successes / %d throttled", successes, throttled)
	}
	if inner.lastLoginUpdates != 1 {
		t.Fatalf("expected a single last-login write, got %d", inner.lastLoginUpdates)
	}
}

func TestAuthServiceAuthenticate_CancelledCallerStillRecordsAttempt(t *testing.T) {
	repo := newMockUserRepo()
	seedUser(t, repo, "u1", "user@example.com", "secret123", true)
	svc := NewAuthService(zap.NewNop(), repo, NewBruteForceGuard(30*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// El mock no mira el contexto, pero el servicio debe llegar a la
	// escritura con un contexto no cancelado.
	if _, err := svc.Authenticate(ctx, "user@example.com", "wrongpass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if repo.lastLoginUpdates != 1 {
		t.Fatalf("expected attempt recorded despite cancellation, got %d writes", repo.lastLoginUpdates)
	}
}
