package peerbonus

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/peerbonus/peerbonus-go/authapi"
	"github.com/peerbonus/peerbonus-go/storage"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type fakeAccount struct {
	profile  authapi.Profile
	password string
}

// fakeAPI is a scriptable Auth API. Tokens are "tok-<user id>" unless a
// token is seeded explicitly.
type fakeAPI struct {
	mu       sync.Mutex
	accounts map[string]fakeAccount
	tokens   map[string]authapi.Profile
	nextID   int

	loginCalls    atomic.Int32
	registerCalls atomic.Int32
	meCalls       atomic.Int32

	// When set, the call signals on the entered channel and blocks until the
	// gate is closed or ctx ends.
	loginGate    chan struct{}
	loginEntered chan struct{}
	meGate       chan struct{}
	meEntered    chan struct{}
	// meSlowCancel keeps a gated lookup blocked after its context ends, like
	// a transport that notices cancellation late.
	meSlowCancel bool

	meErr error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		accounts: map[string]fakeAccount{},
		tokens:   map[string]authapi.Profile{},
	}
}

func (f *fakeAPI) addUser(id, name, email, pass string) authapi.Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := authapi.Profile{ID: id, Name: name, Email: email, IsActive: true}
	f.accounts[email] = fakeAccount{profile: p, password: pass}
	f.tokens["tok-"+id] = p
	return p
}

func (f *fakeAPI) seedToken(tok string, p authapi.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[tok] = p
}

func wait(ctx context.Context, gate, entered chan struct{}) error {
	if gate == nil {
		return nil
	}
	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeAPI) Login(ctx context.Context, email, pass string) (authapi.Token, error) {
	f.loginCalls.Add(1)
	if err := wait(ctx, f.loginGate, f.loginEntered); err != nil {
		return authapi.Token{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[email]
	if !ok || acct.password != pass {
		return authapi.Token{}, &authapi.Error{Status: http.StatusUnauthorized, Detail: "Incorrect email or password"}
	}
	return authapi.Token{AccessToken: "tok-" + acct.profile.ID, TokenType: "bearer"}, nil
}

func (f *fakeAPI) Register(ctx context.Context, name, email, pass string) (authapi.Profile, error) {
	f.registerCalls.Add(1)
	f.mu.Lock()
	if _, exists := f.accounts[email]; exists {
		f.mu.Unlock()
		return authapi.Profile{}, &authapi.Error{Status: http.StatusBadRequest, Detail: "Email already registered"}
	}
	f.nextID++
	id := fmt.Sprintf("new-%d", f.nextID)
	f.mu.Unlock()
	return f.addUser(id, name, email, pass), nil
}

func (f *fakeAPI) CurrentUser(ctx context.Context, tok string) (authapi.Profile, error) {
	f.meCalls.Add(1)
	gateCtx := ctx
	if f.meSlowCancel {
		gateCtx = context.Background()
	}
	if err := wait(gateCtx, f.meGate, f.meEntered); err != nil {
		return authapi.Profile{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.meErr != nil {
		return authapi.Profile{}, f.meErr
	}
	p, ok := f.tokens[tok]
	if !ok {
		return authapi.Profile{}, &authapi.Error{Status: http.StatusUnauthorized, Detail: "Could not validate credentials"}
	}
	return p, nil
}

// flakyStore fails selected operations on top of a MemoryStore.
type flakyStore struct {
	*storage.MemoryStore
	failGet atomic.Bool
	failSet atomic.Bool
}

var errDiskGone = errors.New("disk gone")

func (s *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.failGet.Load() {
		return nil, errDiskGone
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	if s.failSet.Load() {
		return errDiskGone
	}
	return s.MemoryStore.Set(ctx, key, value)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func buildManager(t testing.TB, cfg Config, api AuthAPI, store storage.Store) *Manager {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	m, err := New().
		WithConfig(cfg).
		WithAuthAPI(api).
		WithStore(store).
		WithLogger(logger).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// newReadyManager returns an initialized Manager over a fresh MemoryStore.
func newReadyManager(t testing.TB, api AuthAPI) (*Manager, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	m := buildManager(t, testConfig(), api, store)
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return m, store
}

func storedToken(t *testing.T, s storage.Store) (string, bool) {
	t.Helper()
	raw, err := s.Get(context.Background(), storage.DefaultKeys.Token)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false
	}
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	return string(raw), true
}

func storedProfile(t *testing.T, s storage.Store) *storage.Profile {
	t.Helper()
	raw, err := s.Get(context.Background(), storage.DefaultKeys.Profile)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	p, err := storage.DecodeProfile(raw)
	if err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	return p
}

func seedSession(t *testing.T, s storage.Store, tok string, p *storage.Profile) {
	t.Helper()
	ctx := context.Background()
	if tok != "" {
		if err := s.Set(ctx, storage.DefaultKeys.Token, []byte(tok)); err != nil {
			t.Fatalf("seed token: %v", err)
		}
	}
	if p != nil {
		raw, err := storage.EncodeProfile(p)
		if err != nil {
			t.Fatalf("encode profile: %v", err)
		}
		if err := s.Set(ctx, storage.DefaultKeys.Profile, raw); err != nil {
			t.Fatalf("seed profile: %v", err)
		}
	}
}

func assertCleared(t *testing.T, m *Manager, s storage.Store) {
	t.Helper()
	if m.IsLoggedIn() {
		t.Fatal("expected IsLoggedIn false")
	}
	if m.User() != nil {
		t.Fatalf("expected no user, got %+v", m.User())
	}
	if m.Token() != "" {
		t.Fatal("expected no token in memory")
	}
	if tok, ok := storedToken(t, s); ok {
		t.Fatalf("expected no stored token, got %q", tok)
	}
	if p := storedProfile(t, s); p != nil {
		t.Fatalf("expected no stored profile, got %+v", p)
	}
}

func nullLogger() *logrus.Logger {
	logger, _ := logtest.NewNullLogger()
	return logger
}
