package email

import (
	"context"
	"errors"
)

// Sender define la interfaz para el envío de instrucciones de
// recuperación de contraseña.
type Sender interface {
	SendPasswordRecovery(ctx context.Context, toEmail, name, code string) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendPasswordRecovery(_ context.Context, _, _, _ string) error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}
