package store

import (
	"context"
	"sync"
	"time"

	"github.com/merchkit/identity/permission"
)

// MemoryStore is a mutex-guarded in-process Store for tests and demos.
// Email uniqueness is tracked on the normalized form.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*Identity
	byEmail map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*Identity),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) GetByEmail(_ context.Context, email string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return identity.Clone(), nil
}

func (s *MemoryStore) GetByRefreshToken(_ context.Context, value string) (*Identity, error) {
	if value == "" {
		return nil, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, identity := range s.byID {
		if identity.RefreshToken == value {
			return identity.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Insert(_ context.Context, identity *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := NormalizeEmail(identity.Email)
	if _, taken := s.byEmail[email]; taken {
		return ErrDuplicateEmail
	}

	stored := identity.Clone()
	stored.Email = email
	now := time.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	s.byID[stored.ID] = stored
	s.byEmail[email] = stored.ID
	return nil
}

func (s *MemoryStore) SetVerified(_ context.Context, id string, verified bool) error {
	return s.update(id, func(identity *Identity) error {
		identity.Verified = verified
		return nil
	})
}

func (s *MemoryStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	return s.update(id, func(identity *Identity) error {
		identity.PasswordHash = hash
		return nil
	})
}

func (s *MemoryStore) SetTwoFactor(_ context.Context, id string, enabled bool, method TwoFactorMethod) error {
	return s.update(id, func(identity *Identity) error {
		identity.TwoFactorEnabled = enabled
		identity.TwoFactorMethod = method
		return nil
	})
}

func (s *MemoryStore) SetPermissions(_ context.Context, id string, perms permission.Set) error {
	return s.update(id, func(identity *Identity) error {
		identity.Permissions = perms.Clone()
		return nil
	})
}

func (s *MemoryStore) SaveRefreshToken(_ context.Context, id, value string, expiresAt time.Time, expectedVersion uint32) error {
	return s.update(id, func(identity *Identity) error {
		if identity.TokenVersion != expectedVersion {
			return ErrVersionConflict
		}
		identity.RefreshToken = value
		identity.RefreshExpiresAt = expiresAt
		identity.RefreshRevokedAt = nil
		identity.TokenVersion++
		return nil
	})
}

func (s *MemoryStore) RevokeRefreshToken(_ context.Context, id, value string, at time.Time) error {
	return s.update(id, func(identity *Identity) error {
		if value == "" || identity.RefreshToken != value {
			return ErrRefreshMismatch
		}
		if identity.RefreshRevokedAt == nil {
			stamp := at
			identity.RefreshRevokedAt = &stamp
		}
		return nil
	})
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byEmail, identity.Email)
	delete(s.byID, id)
	return nil
}

func (s *MemoryStore) update(id string, mutate func(*Identity) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if err := mutate(identity); err != nil {
		return err
	}
	identity.UpdatedAt = time.Now()
	return nil
}
