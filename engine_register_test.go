package identity

import (
	"context"
	"testing"
)

func TestRegisterDuplicateEmail(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	req := RegisterRequest{Email: "alice@example.com", Password: "correct-horse-battery"}
	if _, err := engine.Register(ctx, req); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Same address in a different case is still a duplicate.
	req.Email = "ALICE@Example.com"
	if _, err := engine.Register(ctx, req); err != ErrEmailTaken {
		t.Fatalf("register duplicate = %v, want ErrEmailTaken", err)
	}
}

func TestRegisterInputValidation(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  RegisterRequest
		want error
	}{
		{"no at sign", RegisterRequest{Email: "alice.example.com", Password: "correct-horse-battery"}, ErrInvalidEmail},
		{"empty local part", RegisterRequest{Email: "@example.com", Password: "correct-horse-battery"}, ErrInvalidEmail},
		{"empty domain", RegisterRequest{Email: "alice@", Password: "correct-horse-battery"}, ErrInvalidEmail},
		{"short password", RegisterRequest{Email: "alice@example.com", Password: "short"}, ErrWeakPassword},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := engine.Register(ctx, tc.req); err != tc.want {
				t.Fatalf("register = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLoginBlockedUntilVerified(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.Register(ctx, RegisterRequest{Email: "alice@example.com", Password: "correct-horse-battery"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	// The correct password does not help before verification.
	if _, err := engine.Login(ctx, "alice@example.com", "correct-horse-battery", ""); err != ErrEmailNotVerified {
		t.Fatalf("login unverified = %v, want ErrEmailNotVerified", err)
	}
	if _, err := engine.Login(ctx, "alice@example.com", "wrong-password", ""); err != ErrInvalidCredentials {
		t.Fatalf("login bad password = %v, want ErrInvalidCredentials", err)
	}
}

func TestVerifyEmailExactlyOnce(t *testing.T) {
	engine, sender, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.Register(ctx, RegisterRequest{Email: "alice@example.com", Password: "correct-horse-battery"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	code := sender.code("alice@example.com", "email_verification")

	if err := engine.VerifyEmail(ctx, "alice@example.com", code); err != nil {
		t.Fatalf("verify: %v", err)
	}
	// The code is consumed: replaying it fails.
	if err := engine.VerifyEmail(ctx, "alice@example.com", code); err != ErrCodeInvalid {
		t.Fatalf("verify replay = %v, want ErrCodeInvalid", err)
	}

	if _, err := engine.Login(ctx, "alice@example.com", "correct-horse-battery", ""); err != nil {
		t.Fatalf("login after verify: %v", err)
	}
}

func TestVerifyEmailWrongCodeKeepsLiveCode(t *testing.T) {
	engine, sender, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.Register(ctx, RegisterRequest{Email: "alice@example.com", Password: "correct-horse-battery"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	code := sender.code("alice@example.com", "email_verification")

	if err := engine.VerifyEmail(ctx, "alice@example.com", "000000"); err != ErrCodeInvalid {
		t.Fatalf("verify wrong code = %v, want ErrCodeInvalid", err)
	}
	// A failed attempt must not burn the real code.
	if err := engine.VerifyEmail(ctx, "alice@example.com", code); err != nil {
		t.Fatalf("verify after failed attempt: %v", err)
	}
}

func TestVerifyEmailUnknownAddress(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	if err := engine.VerifyEmail(context.Background(), "nobody@example.com", "123456"); err != ErrCodeInvalid {
		t.Fatalf("verify unknown = %v, want ErrCodeInvalid", err)
	}
}

func TestResendVerificationOverwrites(t *testing.T) {
	engine, sender, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.Register(ctx, RegisterRequest{Email: "alice@example.com", Password: "correct-horse-battery"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	first := sender.code("alice@example.com", "email_verification")

	if err := engine.ResendVerification(ctx, "alice@example.com"); err != nil {
		t.Fatalf("resend: %v", err)
	}
	second := sender.code("alice@example.com", "email_verification")
	if first == second {
		t.Fatal("resend did not regenerate the code")
	}

	// Only the newest code is live.
	if err := engine.VerifyEmail(ctx, "alice@example.com", first); err != ErrCodeInvalid {
		t.Fatalf("verify with stale code = %v, want ErrCodeInvalid", err)
	}
	if err := engine.VerifyEmail(ctx, "alice@example.com", second); err != nil {
		t.Fatalf("verify with fresh code: %v", err)
	}
}

func TestResendVerificationUnknownEmailSucceeds(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	if err := engine.ResendVerification(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("resend unknown = %v, want nil", err)
	}
}

func TestResendVerificationAlreadyVerified(t *testing.T) {
	engine, sender, _ := newTestEngine(t)

	registerVerified(t, engine, sender, "alice@example.com", "correct-horse-battery")
	if err := engine.ResendVerification(context.Background(), "alice@example.com"); err != ErrAlreadyVerified {
		t.Fatalf("resend verified = %v, want ErrAlreadyVerified", err)
	}
}

func TestRegisterSurvivesNotificationFailure(t *testing.T) {
	engine, sender, _ := newTestEngine(t)
	ctx := context.Background()

	sender.fail = true
	if _, err := engine.Register(ctx, RegisterRequest{Email: "alice@example.com", Password: "correct-horse-battery"}); err != nil {
		t.Fatalf("register with failing sender = %v, want nil", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricNotificationFailure] != 1 {
		t.Fatalf("notification failure counter = %d", snap.Counters[MetricNotificationFailure])
	}

	// Recovery path: once delivery works again, resend produces a
	// usable code.
	sender.fail = false
	if err := engine.ResendVerification(ctx, "alice@example.com"); err != nil {
		t.Fatalf("resend: %v", err)
	}
	code := sender.code("alice@example.com", "email_verification")
	if err := engine.VerifyEmail(ctx, "alice@example.com", code); err != nil {
		t.Fatalf("verify: %v", err)
	}
}
