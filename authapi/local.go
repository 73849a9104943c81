package authapi

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/peerbonus/peerbonus-go/password"
	"github.com/peerbonus/peerbonus-go/storage"
	"github.com/peerbonus/peerbonus-go/token"
)

const (
	localSecretKey   = "local:secret"
	localEdKey       = "local:ed25519"
	localUserPrefix  = "local:user:"
	localEmailPrefix = "local:email:"

	// DefaultTokenTTL matches the backend's seven day access tokens.
	DefaultTokenTTL = 7 * 24 * time.Hour
)

// LocalConfig configures a Local Auth API.
type LocalConfig struct {
	// Users holds accounts and, when Secret is empty, the generated signing
	// key. Nil means an in-memory store.
	Users storage.Store
	// SigningMethod defaults to token.MethodHS256, as the backend uses.
	// With token.MethodEd25519, Secret is a private key (raw or PEM).
	SigningMethod token.SigningMethod
	Secret        []byte
	TokenTTL      time.Duration
	// Hasher sets the argon2id parameters. Stored hashes made with weaker
	// parameters are upgraded on the next successful login.
	Hasher password.Config
}

// Local is an in-process Auth API with backend semantics.
type Local struct {
	mu     sync.Mutex
	users  storage.Store
	hasher *password.Hasher
	tokens *token.Manager
}

type localUser struct {
	Profile
	PasswordHash string `json:"password_hash"`
}

// NewLocal returns a Local Auth API.
func NewLocal(ctx context.Context, cfg LocalConfig) (*Local, error) {
	users := cfg.Users
	if users == nil {
		users = storage.NewMemoryStore()
	}
	hasherCfg := cfg.Hasher
	if hasherCfg == (password.Config{}) {
		hasherCfg = password.DefaultConfig()
	}
	hasher, err := password.NewHasher(hasherCfg)
	if err != nil {
		return nil, err
	}

	ttl := cfg.TokenTTL
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	tokenCfg, err := signingConfig(ctx, users, cfg.SigningMethod, cfg.Secret)
	if err != nil {
		return nil, err
	}
	tokenCfg.AccessTTL = ttl
	tokenCfg.Issuer = "peerbonus-local"
	tokens, err := token.NewManager(tokenCfg)
	if err != nil {
		return nil, err
	}

	return &Local{users: users, hasher: hasher, tokens: tokens}, nil
}

func signingConfig(ctx context.Context, users storage.Store, method token.SigningMethod, secret []byte) (token.Config, error) {
	switch method {
	case "", token.MethodHS256:
		if len(secret) == 0 {
			var err error
			if secret, err = loadOrCreateKey(ctx, users, localSecretKey, 32, randomSecret); err != nil {
				return token.Config{}, err
			}
		}
		return token.Config{SigningMethod: token.MethodHS256, PrivateKey: secret}, nil
	case token.MethodEd25519:
		if len(secret) == 0 {
			var err error
			if secret, err = loadOrCreateKey(ctx, users, localEdKey, ed25519.PrivateKeySize, randomEdKey); err != nil {
				return token.Config{}, err
			}
		}
		pub, err := token.PublicKeyOf(secret)
		if err != nil {
			return token.Config{}, err
		}
		return token.Config{SigningMethod: token.MethodEd25519, PrivateKey: secret, PublicKey: pub}, nil
	default:
		return token.Config{}, fmt.Errorf("unsupported signing method %q", method)
	}
}

func loadOrCreateKey(ctx context.Context, users storage.Store, key string, size int, generate func() ([]byte, error)) ([]byte, error) {
	stored, err := users.Get(ctx, key)
	if err == nil && len(stored) >= size {
		return stored, nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	fresh, err := generate()
	if err != nil {
		return nil, err
	}
	if err := users.Set(ctx, key, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

func randomSecret() ([]byte, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return secret, nil
}

func randomEdKey() ([]byte, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	return priv, err
}

// Login checks credentials and issues an access token.
func (l *Local) Login(ctx context.Context, email, pass string) (Token, error) {
	u, err := l.userByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return Token{}, &Error{Status: http.StatusUnauthorized, Detail: "Incorrect email or password"}
	}
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := l.hasher.Verify(pass, u.PasswordHash); err != nil {
		return Token{}, &Error{Status: http.StatusUnauthorized, Detail: "Incorrect email or password"}
	}
	if !u.IsActive {
		return Token{}, &Error{Status: http.StatusBadRequest, Detail: "Inactive user"}
	}
	if err := l.upgradeHash(ctx, u, pass); err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	access, err := l.tokens.Issue(u.ID)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return Token{AccessToken: access, TokenType: "bearer"}, nil
}

// Register creates an active account.
func (l *Local) Register(ctx context.Context, name, email, pass string) (Profile, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || pass == "" {
		return Profile{}, &Error{Status: http.StatusUnprocessableEntity, Detail: "name and password are required"}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return Profile{}, &Error{Status: http.StatusUnprocessableEntity, Detail: "value is not a valid email address"}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.users.Get(ctx, localEmailPrefix+email); err == nil {
		return Profile{}, &Error{Status: http.StatusBadRequest, Detail: "Email already registered"}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return Profile{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	hash, err := l.hasher.Hash(pass)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	u := localUser{
		Profile:      Profile{ID: uuid.NewString(), Email: email, Name: name, IsActive: true},
		PasswordHash: hash,
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return Profile{}, err
	}
	if err := l.users.Set(ctx, localUserPrefix+u.ID, raw); err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := l.users.Set(ctx, localEmailPrefix+email, []byte(u.ID)); err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return u.Profile, nil
}

// CurrentUser resolves the account that owns accessToken.
func (l *Local) CurrentUser(ctx context.Context, accessToken string) (Profile, error) {
	claims, err := l.tokens.Parse(accessToken)
	if err != nil {
		return Profile{}, &Error{Status: http.StatusUnauthorized, Detail: "Could not validate credentials"}
	}
	u, err := l.userByID(ctx, claims.UserID())
	if errors.Is(err, storage.ErrNotFound) {
		return Profile{}, &Error{Status: http.StatusUnauthorized, Detail: "User not found"}
	}
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !u.IsActive {
		return Profile{}, &Error{Status: http.StatusBadRequest, Detail: "Inactive user"}
	}
	return u.Profile, nil
}

// SetActive enables or disables an account.
func (l *Local) SetActive(ctx context.Context, userID string, active bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, err := l.userByID(ctx, userID)
	if err != nil {
		return err
	}
	u.IsActive = active
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return l.users.Set(ctx, localUserPrefix+u.ID, raw)
}

// upgradeHash rehashes pass when u's stored hash uses weaker parameters than
// the configured Hasher.
func (l *Local) upgradeHash(ctx context.Context, u *localUser, pass string) error {
	stale, err := l.hasher.NeedsRehash(u.PasswordHash)
	if err != nil || !stale {
		return err
	}
	hash, err := l.hasher.Hash(pass)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	current, err := l.userByID(ctx, u.ID)
	if err != nil {
		return err
	}
	current.PasswordHash = hash
	raw, err := json.Marshal(current)
	if err != nil {
		return err
	}
	return l.users.Set(ctx, localUserPrefix+u.ID, raw)
}

func (l *Local) userByEmail(ctx context.Context, email string) (*localUser, error) {
	id, err := l.users.Get(ctx, localEmailPrefix+normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	return l.userByID(ctx, string(id))
}

func (l *Local) userByID(ctx context.Context, id string) (*localUser, error) {
	raw, err := l.users.Get(ctx, localUserPrefix+id)
	if err != nil {
		return nil, err
	}
	var u localUser
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode local user: %w", err)
	}
	return &u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
