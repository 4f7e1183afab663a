package identity

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/merchkit/identity/store"
)

func newRedisTestEngine(t *testing.T) (*Engine, *captureSender, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	sender := newCaptureSender()
	engine, err := New().
		WithConfig(testConfig()).
		WithStore(store.NewMemoryStore()).
		WithRedis(client).
		WithSender(sender).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, sender, mr
}

func TestFullFlowOverRedis(t *testing.T) {
	engine, sender, _ := newRedisTestEngine(t)
	ctx := context.Background()

	registerVerified(t, engine, sender, "alice@example.com", "correct-horse-battery")

	login, err := engine.Login(ctx, "alice@example.com", "correct-horse-battery", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	principal, err := engine.Authenticate(ctx, login.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if principal.Email != "alice@example.com" {
		t.Fatalf("principal email = %q", principal.Email)
	}

	pair, err := engine.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := engine.Logout(ctx, principal.IdentityID, pair.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
}

func TestVerificationCodeExpiresInRedis(t *testing.T) {
	engine, sender, mr := newRedisTestEngine(t)
	ctx := context.Background()

	if _, err := engine.Register(ctx, RegisterRequest{Email: "alice@example.com", Password: "correct-horse-battery"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	code := sender.code("alice@example.com", "email_verification")

	// Jump past the verification TTL: the code must be gone.
	mr.FastForward(6 * time.Minute)

	if err := engine.VerifyEmail(ctx, "alice@example.com", code); err != ErrCodeInvalid {
		t.Fatalf("verify expired = %v, want ErrCodeInvalid", err)
	}

	// A resend recovers the flow.
	if err := engine.ResendVerification(ctx, "alice@example.com"); err != nil {
		t.Fatalf("resend: %v", err)
	}
	fresh := sender.code("alice@example.com", "email_verification")
	if err := engine.VerifyEmail(ctx, "alice@example.com", fresh); err != nil {
		t.Fatalf("verify fresh code: %v", err)
	}
}

func TestTwoFactorCodeExpiresInRedis(t *testing.T) {
	engine, sender, mr := newRedisTestEngine(t)
	ctx := context.Background()

	id := registerVerified(t, engine, sender, "alice@example.com", "correct-horse-battery")
	if err := engine.EnableTwoFactor(ctx, id, store.TwoFactorEmail); err != nil {
		t.Fatalf("enable two-factor: %v", err)
	}

	if _, err := engine.Login(ctx, "alice@example.com", "correct-horse-battery", ""); err != nil {
		t.Fatalf("login: %v", err)
	}
	code := sender.code("alice@example.com", "2fa_login")

	mr.FastForward(6 * time.Minute)

	if _, err := engine.VerifyTwoFactor(ctx, "alice@example.com", code); err != ErrUnauthorized {
		t.Fatalf("verify expired code = %v, want ErrUnauthorized", err)
	}
}
