// Package notify delivers one-time codes to account holders. The engine
// only depends on the Sender interface; wiring an SMTP or provider
// implementation is the host application's job.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Sender delivers a one-time code to an email address. purpose names
// the flow the code belongs to ("email_verification", "2fa_login",
// "password_reset") so templates can differ per flow. A non-nil error
// means the code was not handed to the delivery channel.
type Sender interface {
	SendCode(ctx context.Context, email, code, purpose string) error
}

// NopSender discards every code. Useful in tests that read codes from
// the cache directly.
type NopSender struct{}

func (NopSender) SendCode(context.Context, string, string, string) error { return nil }

// LogSender writes codes to a logger instead of delivering them. For
// local development only: codes in logs defeat the second factor.
type LogSender struct {
	Logger *zap.Logger
}

func (s LogSender) SendCode(_ context.Context, email, code, purpose string) error {
	s.Logger.Info("one-time code issued",
		zap.String("email", email),
		zap.String("purpose", purpose),
		zap.String("code", code),
	)
	return nil
}
