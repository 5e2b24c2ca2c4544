package authcore

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "correct-horse-battery"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.Issuer = "authcore-test"
	cfg.TwoFactor.Issuer = "authcore-test"
	// Cheapest parameters the floors allow; tests hash a lot.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.KeyLength = 16
	return cfg
}

func newTestEngine(t *testing.T) (*Engine, *mockUserStore) {
	t.Helper()
	return newTestEngineWithConfig(t, testConfig())
}

func newTestEngineWithConfig(t *testing.T, cfg Config) (*Engine, *mockUserStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := newMockUserStore()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(store).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("engine build: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, store
}

// seedUser creates an account directly in the mock store, hashing the
// password with the engine's hasher.
func seedUser(t *testing.T, e *Engine, store *mockUserStore, email, pass string) UserRecord {
	t.Helper()

	var hash string
	if pass != "" {
		var err error
		hash, err = e.passwordHash.Hash(pass)
		if err != nil {
			t.Fatalf("hash password: %v", err)
		}
	}

	user, err := store.CreateUser(context.Background(), CreateUserInput{
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

// mockUserStore is an in-memory [UserStore] with the same uniqueness
// contracts a SQL schema would enforce: unique email and unique
// (provider, provider ID).
type mockUserStore struct {
	mu      sync.Mutex
	byID    map[string]UserRecord
	byEmail map[string]string
	links   map[string]OAuthIdentity
	history []LoginHistoryEntry
	nextID  int

	createCalls int
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		byID:    make(map[string]UserRecord),
		byEmail: make(map[string]string),
		links:   make(map[string]OAuthIdentity),
	}
}

func (s *mockUserStore) GetUserByEmail(_ context.Context, email string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *mockUserStore) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func (s *mockUserStore) CreateUser(_ context.Context, input CreateUserInput) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.createCalls++
	if _, exists := s.byEmail[input.Email]; exists {
		return UserRecord{}, ErrDuplicateEmail
	}

	s.nextID++
	u := UserRecord{
		UserID:          "user-" + strconv.Itoa(s.nextID),
		Email:           input.Email,
		PasswordHash:    input.PasswordHash,
		EmailVerifiedAt: input.EmailVerifiedAt,
	}
	s.byID[u.UserID] = u
	s.byEmail[u.Email] = u.UserID
	return u, nil
}

func (s *mockUserStore) update(t *testing.T, userID string, fn func(*UserRecord)) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		t.Fatalf("update: user %s not found", userID)
	}
	fn(&u)
	s.byID[userID] = u
}

func (s *mockUserStore) SetTwoFactorSecret(_ context.Context, userID string, secret []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.TwoFactorSecret = secret
	s.byID[userID] = u
	return nil
}

func (s *mockUserStore) EnableTwoFactor(_ context.Context, userID string) error {
	return s.setTwoFactor(userID, true)
}

func (s *mockUserStore) DisableTwoFactor(_ context.Context, userID string) error {
	return s.setTwoFactor(userID, false)
}

func (s *mockUserStore) setTwoFactor(userID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.TwoFactorEnabled = enabled
	if !enabled {
		u.TwoFactorSecret = nil
	}
	s.byID[userID] = u
	return nil
}

func (s *mockUserStore) GetOAuthIdentity(_ context.Context, provider, providerID string) (OAuthIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.links[provider+"/"+providerID]
	if !ok {
		return OAuthIdentity{}, ErrOAuthIdentityNotFound
	}
	return identity, nil
}

func (s *mockUserStore) LinkOAuthIdentity(_ context.Context, identity OAuthIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := identity.Provider + "/" + identity.ProviderID
	if _, exists := s.links[key]; exists {
		return ErrOAuthIdentityExists
	}
	s.links[key] = identity
	return nil
}

func (s *mockUserStore) UnlinkOAuthIdentity(_ context.Context, userID, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, identity := range s.links {
		if identity.UserID == userID && identity.Provider == provider {
			delete(s.links, key)
			return nil
		}
	}
	return ErrOAuthIdentityNotFound
}

func (s *mockUserStore) AppendLoginHistory(_ context.Context, entry LoginHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, entry)
	return nil
}

func (s *mockUserStore) historyMethods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	methods := make([]string, len(s.history))
	for i, entry := range s.history {
		methods[i] = entry.Method
	}
	return methods
}

func (s *mockUserStore) userCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// totpNow returns a valid code for the secret at the given time, using
// the test config's TOTP parameters.
func totpNow(t *testing.T, secret []byte, at time.Time) string {
	t.Helper()

	code, err := hotpCode(secret, at.Unix()/30, 6, "SHA1")
	if err != nil {
		t.Fatalf("generate totp code: %v", err)
	}
	return code
}
