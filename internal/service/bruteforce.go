package service

import (
	"time"

	"bookcycle-auth/internal/domain"
)

// BruteForceGuard decide si un intento de login está bloqueado según el
// último intento persistido. No hace I/O: evalúa sólo el timestamp que el
// autenticador ya guardó. La ventana aplica también después de un login
// exitoso.
type BruteForceGuard struct {
	cooldown time.Duration
	now      func() time.Time
}

func NewBruteForceGuard(cooldown time.Duration) *BruteForceGuard {
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &BruteForceGuard{
		cooldown: cooldown,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Cooldown expone la ventana configurada, para mensajes al usuario.
func (g *BruteForceGuard) Cooldown() time.Duration {
	return g.cooldown
}

// IsBlocked devuelve true mientras elapsed < cooldown. El borde es
// exclusivo: a exactamente cooldown el intento ya está permitido.
func (g *BruteForceGuard) IsBlocked(user domain.User) bool {
	if user.LastLoginAt == nil {
		return false
	}
	return g.now().Sub(*user.LastLoginAt) < g.cooldown
}
