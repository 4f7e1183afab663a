package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/merchkit/identity/store"
)

func TestRefreshRotatesToken(t *testing.T) {
	engine, sender, _ := newTestEngine(t)
	ctx := context.Background()

	registerVerified(t, engine, sender, "alice@example.com", "correct-horse-battery")
	login, err := engine.Login(ctx, "alice@example.com", "correct-horse-battery", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	pair, err := engine.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if pair.RefreshToken == login.RefreshToken {
		t.Fatal("refresh did not rotate the token")
	}

	// The pre-rotation value is dead.
	if _, err := engine.Refresh(ctx, login.RefreshToken); err != ErrUnauthorized {
		t.Fatalf("refresh with stale token = %v, want ErrUnauthorized", err)
	}
}

func TestRefreshChain(t *testing.T) {
	engine, sender, _ := newTestEngine(t)
	ctx := context.Background()

	registerVerified(t, engine, sender, "alice@example.com", "correct-horse-battery")
	login, err := engine.Login(ctx, "alice@example.com", "correct-horse-battery", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	current := login.RefreshToken
	for i := 0; i < 5; i++ {
		pair, err := engine.Refresh(ctx, current)
		if err != nil {
			t.Fatalf("refresh %d: %v", i, err)
		}
		if _, err := engine.Authenticate(ctx, pair.AccessToken); err != nil {
			t.Fatalf("authenticate after refresh %d: %v", i, err)
		}
		current = pair.RefreshToken
	}
}

func TestRefreshRejectsUnknownValue(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	for _, bad := range []string{"", "never-issued"} {
		if _, err := engine.Refresh(ctx, bad); err != ErrUnauthorized {
			t.Fatalf("Refresh(%q) = %v, want ErrUnauthorized", bad, err)
		}
	}
}

func TestRefreshRejectsExpired(t *testing.T) {
	engine, sender, memStore := newTestEngine(t)
	ctx := context.Background()

	id := registerVerified(t, engine, sender, "alice@example.com", "correct-horse-battery")
	login, err := engine.Login(ctx, "alice@example.com", "correct-horse-battery", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	// Age the slot past its expiry.
	stored, err := memStore.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("load identity: %v", err)
	}
	if err := memStore.SaveRefreshToken(ctx, id, login.RefreshToken, time.Now().Add(-time.Minute), stored.TokenVersion); err != nil {
		t.Fatalf("backdate expiry: %v", err)
	}

	if _, err := engine.Refresh(ctx, login.RefreshToken); err != ErrUnauthorized {
		t.Fatalf("refresh expired = %v, want ErrUnauthorized", err)
	}
}

func TestLogoutRevokesRefresh(t *testing.T) {
	engine, sender, _ := newTestEngine(t)
	ctx := context.Background()

	id := registerVerified(t, engine, sender, "alice@example.com", "correct-horse-battery")
	login, err := engine.Login(ctx, "alice@example.com", "correct-horse-battery", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := engine.Logout(ctx, id, login.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := engine.Refresh(ctx, login.RefreshToken); err != ErrUnauthorized {
		t.Fatalf("refresh after logout = %v, want ErrUnauthorized", err)
	}

	// Logout is idempotent.
	if err := engine.Logout(ctx, id, login.RefreshToken); err != nil {
		t.Fatalf("repeat logout = %v, want nil", err)
	}
}

func TestLogoutRequiresMatchingValue(t *testing.T) {
	engine, sender, _ := newTestEngine(t)
	ctx := context.Background()

	id := registerVerified(t, engine, sender, "alice@example.com", "correct-horse-battery")
	if _, err := engine.Login(ctx, "alice@example.com", "correct-horse-battery", ""); err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := engine.Logout(ctx, id, "not-the-token"); err != ErrUnauthorized {
		t.Fatalf("logout mismatched = %v, want ErrUnauthorized", err)
	}
	if err := engine.Logout(ctx, "no-such-id", "whatever"); err != ErrUnauthorized {
		t.Fatalf("logout unknown id = %v, want ErrUnauthorized", err)
	}
}

func TestLoginReplacesPriorSession(t *testing.T) {
	engine, sender, _ := newTestEngine(t)
	ctx := context.Background()

	registerVerified(t, engine, sender, "alice@example.com", "correct-horse-battery")

	first, err := engine.Login(ctx, "alice@example.com", "correct-horse-battery", "")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, err := engine.Login(ctx, "alice@example.com", "correct-horse-battery", "")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}

	// Single session per identity: the first refresh token is gone.
	if _, err := engine.Refresh(ctx, first.RefreshToken); err != ErrUnauthorized {
		t.Fatalf("refresh first session = %v, want ErrUnauthorized", err)
	}
	if _, err := engine.Refresh(ctx, second.RefreshToken); err != nil {
		t.Fatalf("refresh second session: %v", err)
	}
}

func TestRefreshConcurrentSingleWinner(t *testing.T) {
	engine, sender, _ := newTestEngine(t)
	ctx := context.Background()

	registerVerified(t, engine, sender, "alice@example.com", "correct-horse-battery")
	login, err := engine.Login(ctx, "alice@example.com", "correct-horse-battery", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	type outcome struct {
		pair *TokenPair
		err  error
	}
	results := make(chan outcome, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			pair, err := engine.Refresh(ctx, login.RefreshToken)
			results <- outcome{pair: pair, err: err}
		}()
	}
	wg.Wait()
	close(results)

	var winner *TokenPair
	success := 0
	for res := range results {
		if res.err == nil {
			success++
			winner = res.pair
			continue
		}
		if !errors.Is(res.err, ErrUnauthorized) {
			t.Fatalf("unexpected refresh error: %v", res.err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}

	// The winning rotation is live.
	if _, err := engine.Refresh(ctx, winner.RefreshToken); err != nil {
		t.Fatalf("refresh winning token: %v", err)
	}
}

func TestPasswordRehashOnLogin(t *testing.T) {
	ctx := context.Background()
	sender := newCaptureSender()
	memStore := newTestEngineStore(t, sender)

	engine, err := New().
		WithConfig(upgradedHashConfig()).
		WithStore(memStore).
		WithSender(sender).
		Build()
	if err != nil {
		t.Fatalf("build upgraded engine: %v", err)
	}
	t.Cleanup(engine.Close)

	before, err := memStore.GetByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("load identity: %v", err)
	}

	if _, err := engine.Login(ctx, "alice@example.com", "correct-horse-battery", ""); err != nil {
		t.Fatalf("login: %v", err)
	}

	after, err := memStore.GetByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("load identity: %v", err)
	}
	if before.PasswordHash == after.PasswordHash {
		t.Fatal("stored hash was not upgraded on login")
	}

	// The upgraded hash still verifies.
	if _, err := engine.Login(ctx, "alice@example.com", "correct-horse-battery", ""); err != nil {
		t.Fatalf("login after rehash: %v", err)
	}
}

func TestPasswordRehashDisabled(t *testing.T) {
	ctx := context.Background()
	sender := newCaptureSender()
	memStore := newTestEngineStore(t, sender)

	cfg := upgradedHashConfig()
	cfg.Account.DisableHashUpgradeOnLogin = true

	engine, err := New().
		WithConfig(cfg).
		WithStore(memStore).
		WithSender(sender).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	before, err := memStore.GetByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("load identity: %v", err)
	}

	if _, err := engine.Login(ctx, "alice@example.com", "correct-horse-battery", ""); err != nil {
		t.Fatalf("login: %v", err)
	}

	after, err := memStore.GetByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("load identity: %v", err)
	}
	if before.PasswordHash != after.PasswordHash {
		t.Fatal("stored hash changed with upgrades disabled")
	}
}

// newTestEngineStore seeds a store with a verified identity hashed
// under the baseline test parameters.
func newTestEngineStore(t *testing.T, sender *captureSender) *store.MemoryStore {
	t.Helper()

	memStore := store.NewMemoryStore()
	seed, err := New().
		WithConfig(testConfig()).
		WithStore(memStore).
		WithSender(sender).
		Build()
	if err != nil {
		t.Fatalf("build seed engine: %v", err)
	}
	defer seed.Close()

	registerVerified(t, seed, sender, "alice@example.com", "correct-horse-battery")
	return memStore
}

func upgradedHashConfig() Config {
	cfg := testConfig()
	cfg.Password.Time = 2
	return cfg
}
