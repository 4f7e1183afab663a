package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchkit/identity"
	"github.com/merchkit/identity/notify"
	"github.com/merchkit/identity/password"
	"github.com/merchkit/identity/permission"
	"github.com/merchkit/identity/store"
	"github.com/merchkit/identity/token"
)

type codeRecorder struct {
	last string
}

func (r *codeRecorder) SendCode(_ context.Context, _, code, _ string) error {
	r.last = code
	return nil
}

var _ notify.Sender = (*codeRecorder)(nil)

func setupEngine(t *testing.T) (*identity.Engine, string) {
	t.Helper()
	ctx := context.Background()

	recorder := &codeRecorder{}
	engine, err := identity.New().
		WithConfig(identity.Config{
			JWT: identity.JWTConfig{
				AccessTTL:     time.Minute,
				RefreshTTL:    time.Hour,
				SigningMethod: token.MethodHS256,
				PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
			},
			Password: password.Config{
				Memory:      8 * 1024,
				Time:        1,
				Parallelism: 1,
				SaltLength:  16,
				KeyLength:   16,
			},
		}).
		WithStore(store.NewMemoryStore()).
		WithSender(recorder).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	_, err = engine.Register(ctx, identity.RegisterRequest{
		Email:    "alice@example.com",
		Password: "correct-horse-battery",
	})
	require.NoError(t, err)
	require.NoError(t, engine.VerifyEmail(ctx, "alice@example.com", recorder.last))

	result, err := engine.Login(ctx, "alice@example.com", "correct-horse-battery", "")
	require.NoError(t, err)

	return engine, result.AccessToken
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "alice@example.com", principal.Email)
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuth(t *testing.T) {
	engine, access := setupEngine(t)
	handler := RequireAuth(engine)(okHandler(t))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"valid token", "Bearer " + access, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-token", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestRequirePermission(t *testing.T) {
	engine, access := setupEngine(t)

	allowed := RequireAuth(engine)(RequirePermission(permission.Require(permission.CartManage))(okHandler(t)))
	denied := RequireAuth(engine)(RequirePermission(permission.Require(permission.UserManage))(okHandler(t)))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+access)

	rec := httptest.NewRecorder()
	allowed.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	denied.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequirePermissionWithoutAuth(t *testing.T) {
	handler := RequirePermission(permission.Require(permission.CartManage))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
