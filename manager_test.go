package peerbonus

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/peerbonus/peerbonus-go/authapi"
	"github.com/peerbonus/peerbonus-go/password"
	"github.com/peerbonus/peerbonus-go/storage"
	"github.com/peerbonus/peerbonus-go/token"
)

func TestLoginValidCredentials(t *testing.T) {
	api := newFakeAPI()
	ann := api.addUser("1", "Ann", "ann@x.com", "secret123")
	m, store := newReadyManager(t, api)

	user, err := m.Login(context.Background(), Credentials{Email: "ann@x.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !m.IsLoggedIn() || m.State() != StateAuthenticated {
		t.Fatalf("expected authenticated, got %v", m.State())
	}
	if user.ID != ann.ID || m.User().Name != "Ann" {
		t.Fatalf("unexpected user %+v", m.User())
	}
	if m.Loading() {
		t.Fatal("loading must be false after login")
	}
	if tok, _ := storedToken(t, store); tok != "tok-1" {
		t.Fatalf("expected persisted token tok-1, got %q", tok)
	}
	if p := storedProfile(t, store); p == nil || p.Email != "ann@x.com" {
		t.Fatalf("expected persisted profile, got %+v", p)
	}
}

func TestLoginBadCredentialsLeavesStorageUntouched(t *testing.T) {
	api := newFakeAPI()
	api.addUser("1", "Ann", "ann@x.com", "secret123")
	store := storage.NewMemoryStore()
	cached := &storage.Profile{ID: "9", Name: "Old", Email: "old@x.com"}
	seedSession(t, store, "", cached)

	m := buildManager(t, testConfig(), api, store)
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	_, err := m.Login(context.Background(), Credentials{Email: "bad@x.com", Password: "wrong"})
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	if errors.Is(err, ErrRegistration) {
		t.Fatal("authentication failure must be distinguishable from registration failure")
	}
	var apiErr *authapi.Error
	if !errors.As(err, &apiErr) || apiErr.Message() != "Incorrect email or password" {
		t.Fatalf("expected API message in chain, got %v", err)
	}
	if m.IsLoggedIn() {
		t.Fatal("expected IsLoggedIn false")
	}
	if m.State() != StateAnonymous {
		t.Fatalf("expected anonymous, got %v", m.State())
	}
	if _, ok := storedToken(t, store); ok {
		t.Fatal("expected no stored token")
	}
	if p := storedProfile(t, store); p == nil || *p != *cached {
		t.Fatalf("expected cached profile untouched, got %+v", p)
	}
}

func TestLoginRejectedKeepsExistingSession(t *testing.T) {
	api := newFakeAPI()
	api.addUser("1", "Ann", "ann@x.com", "secret123")
	m, store := newReadyManager(t, api)

	if _, err := m.Login(context.Background(), Credentials{Email: "ann@x.com", Password: "secret123"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := m.Login(context.Background(), Credentials{Email: "ann@x.com", Password: "nope"}); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	if !m.IsLoggedIn() || m.State() != StateAuthenticated {
		t.Fatal("rejected re-authentication must keep the existing session")
	}
	if tok, _ := storedToken(t, store); tok != "tok-1" {
		t.Fatalf("expected stored token unchanged, got %q", tok)
	}
}

func TestLoginInvalidInput(t *testing.T) {
	api := newFakeAPI()
	m, _ := newReadyManager(t, api)

	_, err := m.Login(context.Background(), Credentials{Email: "not-an-email", Password: ""})
	if !errors.Is(err, ErrAuthentication) || !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrAuthentication wrapping ErrInvalidRequest, got %v", err)
	}
	if api.loginCalls.Load() != 0 {
		t.Fatal("invalid input must not reach the Auth API")
	}
}

func TestLoginProfileResolutionFailureClearsToken(t *testing.T) {
	api := newFakeAPI()
	api.addUser("1", "Ann", "ann@x.com", "secret123")
	api.meErr = &authapi.Error{Status: 401, Detail: "User not found"}
	m, store := newReadyManager(t, api)

	_, err := m.Login(context.Background(), Credentials{Email: "ann@x.com", Password: "secret123"})
	if !errors.Is(err, ErrProfileResolution) {
		t.Fatalf("expected ErrProfileResolution, got %v", err)
	}
	if errors.Is(err, ErrAuthentication) {
		t.Fatal("profile resolution failure must not be reported as bad credentials")
	}
	assertCleared(t, m, store)
	if m.State() != StateAnonymous {
		t.Fatalf("expected anonymous, got %v", m.State())
	}
}

func TestLogoutAlwaysClears(t *testing.T) {
	setups := map[string]func(t *testing.T, m *Manager){
		"anonymous": func(t *testing.T, m *Manager) {},
		"authenticated": func(t *testing.T, m *Manager) {
			if _, err := m.Login(context.Background(), Credentials{Email: "ann@x.com", Password: "secret123"}); err != nil {
				t.Fatalf("Login: %v", err)
			}
		},
		"after failed login": func(t *testing.T, m *Manager) {
			_, _ = m.Login(context.Background(), Credentials{Email: "ann@x.com", Password: "wrong"})
		},
	}

	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			api := newFakeAPI()
			api.addUser("1", "Ann", "ann@x.com", "secret123")
			m, store := newReadyManager(t, api)
			seedSession(t, store, "", &storage.Profile{ID: "9", Name: "Cached"})
			setup(t, m)

			for i := 0; i < 2; i++ {
				if err := m.Logout(context.Background()); err != nil {
					t.Fatalf("Logout #%d: %v", i+1, err)
				}
				assertCleared(t, m, store)
				if m.State() != StateAnonymous {
					t.Fatalf("expected anonymous, got %v", m.State())
				}
			}
		})
	}
}

func TestRegisterEquivalentToLogin(t *testing.T) {
	ctx := context.Background()

	registerAPI := newFakeAPI()
	registered, registeredStore := newReadyManager(t, registerAPI)
	u1, err := registered.Register(ctx, RegisterRequest{Name: "Ann", Email: "ann@x.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	loginAPI := newFakeAPI()
	loginAPI.addUser(u1.ID, "Ann", "ann@x.com", "secret123")
	loggedIn, loggedInStore := newReadyManager(t, loginAPI)
	u2, err := loggedIn.Login(ctx, Credentials{Email: "ann@x.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if *u1 != *u2 {
		t.Fatalf("users differ: %+v vs %+v", u1, u2)
	}
	s1, s2 := registered.Snapshot(), loggedIn.Snapshot()
	if s1.State != s2.State || s1.LoggedIn != s2.LoggedIn || *s1.User != *s2.User || s1.Loading != s2.Loading {
		t.Fatalf("snapshots differ: %+v vs %+v", s1, s2)
	}
	t1, _ := storedToken(t, registeredStore)
	t2, _ := storedToken(t, loggedInStore)
	if t1 != t2 || *storedProfile(t, registeredStore) != *storedProfile(t, loggedInStore) {
		t.Fatal("stored sessions differ")
	}
	if registerAPI.loginCalls.Load() != 1 {
		t.Fatalf("expected one auto-login, got %d", registerAPI.loginCalls.Load())
	}
}

func TestRegisterDuplicateLeavesSessionUnchanged(t *testing.T) {
	api := newFakeAPI()
	api.addUser("1", "Ann", "ann@x.com", "secret123")
	m, store := newReadyManager(t, api)

	_, err := m.Register(context.Background(), RegisterRequest{Name: "Ann", Email: "ann@x.com", Password: "secret123"})
	if !errors.Is(err, ErrRegistration) {
		t.Fatalf("expected ErrRegistration, got %v", err)
	}
	if errors.Is(err, ErrAuthentication) {
		t.Fatal("registration failure must be distinguishable from authentication failure")
	}
	if !strings.Contains(err.Error(), "Email already registered") {
		t.Fatalf("expected API message, got %q", err.Error())
	}
	if api.loginCalls.Load() != 0 {
		t.Fatal("failed registration must not auto-login")
	}
	assertCleared(t, m, store)
}

func TestRegisterLocalValidation(t *testing.T) {
	tests := []struct {
		name   string
		req    RegisterRequest
		target error
	}{
		{name: "short password", req: RegisterRequest{Name: "Ann", Email: "ann@x.com", Password: "abc1"}, target: password.ErrPolicy},
		{name: "no digit", req: RegisterRequest{Name: "Ann", Email: "ann@x.com", Password: "abcdefgh"}, target: password.ErrPolicy},
		{name: "bad email", req: RegisterRequest{Name: "Ann", Email: "ann", Password: "secret123"}, target: ErrInvalidRequest},
		{name: "blank name", req: RegisterRequest{Name: "   ", Email: "ann@x.com", Password: "secret123"}, target: ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			m, _ := newReadyManager(t, api)

			_, err := m.Register(context.Background(), tt.req)
			if !errors.Is(err, ErrRegistration) || !errors.Is(err, tt.target) {
				t.Fatalf("expected ErrRegistration wrapping %v, got %v", tt.target, err)
			}
			if api.registerCalls.Load() != 0 {
				t.Fatal("locally invalid registration must not reach the Auth API")
			}
		})
	}
}

func TestRegisterWithoutLocalValidation(t *testing.T) {
	api := newFakeAPI()
	cfg := testConfig()
	cfg.Session.ValidateRegistration = false
	m := buildManager(t, cfg, api, storage.NewMemoryStore())
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if _, err := m.Register(context.Background(), RegisterRequest{Name: "Ann", Email: "ann@x.com", Password: "x"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !m.IsLoggedIn() {
		t.Fatal("expected auto-login")
	}
}

func TestHydrateWithValidToken(t *testing.T) {
	api := newFakeAPI()
	ann := api.addUser("1", "Ann", "ann@x.com", "secret123")
	store := storage.NewMemoryStore()
	seedSession(t, store, "tok-1", nil)

	m := buildManager(t, testConfig(), api, store)
	if m.State() != StateUninitialized {
		t.Fatalf("expected uninitialized, got %v", m.State())
	}
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if !m.IsLoggedIn() || m.User().ID != ann.ID {
		t.Fatalf("expected hydrated session, got %+v", m.Snapshot())
	}
	if api.loginCalls.Load() != 0 {
		t.Fatal("hydration must not log in again")
	}
	if p := storedProfile(t, store); p == nil || p.Name != "Ann" {
		t.Fatalf("expected profile persisted by hydration, got %+v", p)
	}
	if m.Loading() || m.LastError() != nil {
		t.Fatalf("unexpected loading=%v lastErr=%v", m.Loading(), m.LastError())
	}
}

func TestHydrateScenarioAnn(t *testing.T) {
	api := newFakeAPI()
	api.seedToken("tok-abc", authapi.Profile{ID: "1", Name: "Ann", Email: "ann@x.com"})
	store := storage.NewMemoryStore()
	seedSession(t, store, "tok-abc", nil)

	m := buildManager(t, testConfig(), api, store)
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if m.User().Name != "Ann" {
		t.Fatalf("expected Ann, got %+v", m.User())
	}
	if !m.IsLoggedIn() {
		t.Fatal("expected IsLoggedIn true")
	}
	if m.Token() != "tok-abc" {
		t.Fatalf("expected token tok-abc, got %q", m.Token())
	}
}

func TestHydrateWithInvalidTokenClearsStorage(t *testing.T) {
	api := newFakeAPI()
	store := storage.NewMemoryStore()
	seedSession(t, store, "tok-stale", &storage.Profile{ID: "1", Name: "Ann"})

	m := buildManager(t, testConfig(), api, store)
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init must not fail on an invalid token: %v", err)
	}

	assertCleared(t, m, store)
	if m.State() != StateAnonymous || m.Loading() {
		t.Fatalf("unexpected snapshot %+v", m.Snapshot())
	}
	if !errors.Is(m.LastError(), ErrProfileResolution) {
		t.Fatalf("expected ErrProfileResolution recorded, got %v", m.LastError())
	}
}

func TestHydrateExpiredJWTSkipsLookup(t *testing.T) {
	issuer, err := token.NewManager(token.Config{
		AccessTTL:     time.Hour,
		SigningMethod: token.MethodHS256,
		PrivateKey:    []byte("k"),
	})
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	tok, err := issuer.Issue("1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	api := newFakeAPI()
	api.seedToken(tok, authapi.Profile{ID: "1", Name: "Ann"})
	store := storage.NewMemoryStore()
	seedSession(t, store, tok, nil)

	logger := nullLogger()
	m, err := New().
		WithConfig(testConfig()).
		WithAuthAPI(api).
		WithStore(store).
		WithLogger(logger).
		WithClock(func() time.Time { return time.Now().Add(2 * time.Hour) }).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer m.Close()

	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if api.meCalls.Load() != 0 {
		t.Fatal("expired token must not be looked up")
	}
	assertCleared(t, m, store)
	if !errors.Is(m.LastError(), ErrProfileResolution) {
		t.Fatalf("expected ErrProfileResolution, got %v", m.LastError())
	}
	if got := m.MetricsSnapshot().Counters[MetricHydrateTokenExpired]; got != 1 {
		t.Fatalf("expected expired counter 1, got %d", got)
	}
}

func TestHydrateCachedProfileIsDisplayOnly(t *testing.T) {
	api := newFakeAPI()
	store := storage.NewMemoryStore()
	seedSession(t, store, "", &storage.Profile{ID: "1", Name: "Ann", Email: "ann@x.com"})

	m := buildManager(t, testConfig(), api, store)
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if m.User() == nil || m.User().Name != "Ann" {
		t.Fatalf("expected cached profile in memory, got %+v", m.User())
	}
	if m.IsLoggedIn() || m.State() != StateAnonymous {
		t.Fatalf("cached profile must not authenticate, got %+v", m.Snapshot())
	}
	if api.meCalls.Load() != 0 {
		t.Fatal("no lookup expected without a token")
	}
}

func TestHydrateStorageUnavailable(t *testing.T) {
	store := &flakyStore{MemoryStore: storage.NewMemoryStore()}
	store.failGet.Store(true)

	m := buildManager(t, testConfig(), newFakeAPI(), store)
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("storage failure must not fail Init: %v", err)
	}
	if m.State() != StateAnonymous || m.IsLoggedIn() || m.Loading() {
		t.Fatalf("unexpected snapshot %+v", m.Snapshot())
	}
	if !errors.Is(m.LastError(), ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", m.LastError())
	}
}

func TestInitIsIdempotent(t *testing.T) {
	api := newFakeAPI()
	api.addUser("1", "Ann", "ann@x.com", "secret123")
	store := storage.NewMemoryStore()
	seedSession(t, store, "tok-1", nil)
	m := buildManager(t, testConfig(), api, store)

	for i := 0; i < 3; i++ {
		if err := m.Init(context.Background()); err != nil {
			t.Fatalf("Init #%d: %v", i+1, err)
		}
	}
	if api.meCalls.Load() != 1 {
		t.Fatalf("expected a single hydration lookup, got %d", api.meCalls.Load())
	}
}

func TestOperationsBeforeInitAreNotReady(t *testing.T) {
	api := newFakeAPI()
	m := buildManager(t, testConfig(), api, storage.NewMemoryStore())

	if _, err := m.Login(context.Background(), Credentials{Email: "ann@x.com", Password: "secret123"}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if _, err := m.Register(context.Background(), RegisterRequest{Name: "Ann", Email: "ann@x.com", Password: "secret123"}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestStorageWriteFailureMeansNoSession(t *testing.T) {
	api := newFakeAPI()
	api.addUser("1", "Ann", "ann@x.com", "secret123")
	store := &flakyStore{MemoryStore: storage.NewMemoryStore()}
	m := buildManager(t, testConfig(), api, store)
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	store.failSet.Store(true)
	_, err := m.Login(context.Background(), Credentials{Email: "ann@x.com", Password: "secret123"})
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if m.IsLoggedIn() || m.Token() != "" || m.State() != StateAnonymous {
		t.Fatalf("expected no session after storage failure, got %+v", m.Snapshot())
	}
	if api.meCalls.Load() != 0 {
		t.Fatal("profile lookup must not run when the token could not be persisted")
	}
}

func TestHandleUnauthorized(t *testing.T) {
	api := newFakeAPI()
	api.addUser("1", "Ann", "ann@x.com", "secret123")
	m, store := newReadyManager(t, api)
	if _, err := m.Login(context.Background(), Credentials{Email: "ann@x.com", Password: "secret123"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := m.HandleUnauthorized(context.Background(), "tok-other"); err != nil {
		t.Fatalf("stale token: %v", err)
	}
	if !m.IsLoggedIn() {
		t.Fatal("a 401 for a stale token must not clear the session")
	}

	if err := m.HandleUnauthorized(context.Background(), "tok-1"); err != nil {
		t.Fatalf("HandleUnauthorized: %v", err)
	}
	assertCleared(t, m, store)
	if !errors.Is(m.LastError(), ErrProfileResolution) {
		t.Fatalf("expected ErrProfileResolution, got %v", m.LastError())
	}
	if got := m.MetricsSnapshot().Counters[MetricUnauthorizedResponse]; got != 1 {
		t.Fatalf("expected unauthorized counter 1, got %d", got)
	}
}

func TestCloseIsIdempotentAndFinal(t *testing.T) {
	api := newFakeAPI()
	m, _ := newReadyManager(t, api)

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := m.Login(context.Background(), Credentials{Email: "ann@x.com", Password: "secret123"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := m.Logout(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from Logout, got %v", err)
	}
}
