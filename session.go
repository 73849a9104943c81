package peerbonus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/peerbonus/peerbonus-go/authapi"
	"github.com/peerbonus/peerbonus-go/internal/flows"
	"github.com/peerbonus/peerbonus-go/password"
	"github.com/peerbonus/peerbonus-go/storage"
	"github.com/peerbonus/peerbonus-go/token"
)

// Init hydrates the session from storage. A stored token is resolved
// through the Auth API; a token that fails is cleared. Without a token, a
// cached profile is loaded for display only. Init always ends in
// StateAuthenticated or StateAnonymous with Loading false, and returns nil
// unless the Manager is closed; the hydration failure, if any, is available
// from LastError. Calling Init again is a no-op. Login and Register return
// ErrNotReady until Init has returned, including after a Logout that
// overtook the hydration.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state != StateUninitialized {
		m.mu.Unlock()
		return nil
	}
	m.state = StateHydrating
	m.loading = true
	m.hydrating = true
	m.mu.Unlock()
	m.publish()

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.commitMu.Lock()
	epoch := m.epoch
	m.cancelOp = cancel
	m.commitMu.Unlock()

	res := flows.RunHydrate(opCtx, flows.HydrateDeps{
		LoadToken:    m.loadToken,
		LoadProfile:  m.loadProfile,
		TokenExpired: m.tokenExpired,
		CurrentUser:  m.timedCurrentUser,
		Commit:       m.committer(epoch),
		Errors:       flowErrors(),
	})

	m.commitMu.Lock()
	superseded := m.epoch != epoch
	if !superseded {
		m.cancelOp = nil
	}
	m.commitMu.Unlock()

	m.mu.Lock()
	m.loading = false
	m.hydrating = false
	switch {
	case superseded:
		if m.state == StateHydrating {
			m.state = StateAnonymous
		}
	case res.Outcome == flows.HydrateNoSession:
		m.user = userFromStored(res.Cached)
		m.state = StateAnonymous
	case res.Outcome != flows.HydrateAuthenticated:
		m.clearMemoryLocked()
	}
	if !superseded {
		m.lastErr = res.Err
	}
	m.mu.Unlock()
	m.publish()

	m.recordHydration(ctx, res, superseded)
	return nil
}

func (m *Manager) recordHydration(ctx context.Context, res flows.HydrateResult, superseded bool) {
	log := m.logger.WithField("op", "hydrate")
	if superseded {
		m.metrics.Inc(MetricSessionSuperseded)
		log.Debug("hydration superseded by logout")
		return
	}

	switch res.Outcome {
	case flows.HydrateAuthenticated:
		m.metrics.Inc(MetricHydrateAuthenticated)
		m.emitAudit(ctx, auditHydrated, res.Profile.ID, true, nil, nil)
		log.WithField("user_id", res.Profile.ID).Debug("session restored")
	case flows.HydrateNoSession:
		m.metrics.Inc(MetricHydrateAnonymous)
		log.WithField("cached_profile", res.Cached != nil).Debug("no stored session")
	case flows.HydrateInvalidToken:
		m.metrics.Inc(MetricHydrateInvalidToken)
		m.metrics.Inc(MetricProfileResolutionFailure)
		if res.Expired {
			m.metrics.Inc(MetricHydrateTokenExpired)
		}
		m.emitAudit(ctx, auditHydrationFailed, "", false, res.Err, map[string]string{"expired": fmt.Sprint(res.Expired)})
		log.WithError(res.Err).Warn("stored session rejected")
	case flows.HydrateStorageFailure:
		m.metrics.Inc(MetricStorageFailure)
		m.emitAudit(ctx, auditHydrationFailed, "", false, res.Err, nil)
		log.WithError(res.Err).Error("session storage unreadable, continuing without session")
	}
}

// Login authenticates with email and password. On success the session is
// Authenticated with the profile returned by the Auth API. A rejection
// returns an error matching ErrAuthentication and leaves storage and the
// prior session untouched. A token that cannot resolve a profile is cleared
// and the error matches ErrProfileResolution.
func (m *Manager) Login(ctx context.Context, creds Credentials) (*User, error) {
	if err := m.validate.Struct(creds); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, invalidRequest(err))
	}

	op, err := m.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer op.end()

	p, err := flows.RunLogin(op.ctx, creds.Email, creds.Password, m.loginDeps(op.epoch))
	err = m.settle(op, err)
	m.recordOutcome(ctx, "login", p.ID, err)
	if err != nil {
		return nil, err
	}
	return userFromProfile(p), nil
}

// Register creates an account and then logs in with the same credentials.
// Local validation and Auth API rejections return an error matching
// ErrRegistration without touching the session; auto-login failures are
// returned as Login would return them.
func (m *Manager) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	op, err := m.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer op.end()

	deps := flows.RegisterDeps{
		Register: m.timedRegister,
		Login: func(ctx context.Context, email, pass string) (authapi.Profile, error) {
			return flows.RunLogin(ctx, email, pass, m.loginDeps(op.epoch))
		},
		Errors: flowErrors(),
	}
	if m.config.Session.ValidateRegistration {
		deps.Validate = m.validateRegistration
	}

	p, err := flows.RunRegister(op.ctx, flows.RegisterRequest{
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
	}, deps)
	err = m.settle(op, err)
	m.recordOutcome(ctx, "register", p.ID, err)
	if err != nil {
		return nil, err
	}
	return userFromProfile(p), nil
}

// Logout clears the session in storage and memory from any state. It does
// not wait for in-flight operations: they are cancelled and can no longer
// commit. Logout is idempotent. A storage failure is returned, but memory is
// cleared regardless.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.RLock()
	closed := m.closed
	var userID string
	if m.user != nil {
		userID = m.user.ID
	}
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	err := flows.RunLogout(ctx, flows.LogoutDeps{
		Supersede: m.supersede,
		ClearSession: func(ctx context.Context) error {
			m.commitMu.Lock()
			defer m.commitMu.Unlock()
			return m.commitLocked(ctx, func(ctx context.Context) error {
				return storage.Clear(ctx, m.store, m.keys)
			}, m.clearMemoryLocked)
		},
	})

	m.metrics.Inc(MetricLogout)
	m.emitAudit(ctx, auditLogout, userID, err == nil, err, nil)
	if err != nil {
		m.logger.WithError(err).Warn("logout could not clear storage")
	}
	m.logTransition("logout")
	return err
}

// HandleUnauthorized clears the session after the backend answered 401 to a
// request sent with bearer. A 401 for a token that is no longer current is
// ignored. Concurrent calls for the same token clear once. While a Login or
// Register is replacing the rejected token, only the old token is dropped and
// the operation carries on.
func (m *Manager) HandleUnauthorized(ctx context.Context, bearer string) error {
	if bearer == "" {
		return nil
	}
	_, err, _ := m.rejected.Do(bearer, func() (interface{}, error) {
		m.commitMu.Lock()
		defer m.commitMu.Unlock()

		m.mu.RLock()
		current, closed, state := m.token, m.closed, m.state
		var userID string
		if m.user != nil {
			userID = m.user.ID
		}
		m.mu.RUnlock()
		if closed || current != bearer {
			return nil, nil
		}

		reason := fmt.Errorf("%w: token rejected by server", ErrProfileResolution)
		apply := func() {
			m.clearMemoryLocked()
			m.lastErr = reason
		}
		if state == StateAuthenticating {
			apply = func() {
				m.token = ""
				m.user = nil
			}
		} else {
			m.epoch++
			if m.cancelOp != nil {
				m.cancelOp()
				m.cancelOp = nil
			}
		}
		err := m.commitLocked(ctx, func(ctx context.Context) error {
			return storage.Clear(ctx, m.store, m.keys)
		}, apply)

		m.metrics.Inc(MetricUnauthorizedResponse)
		m.emitAudit(ctx, auditUnauthorized, userID, false, reason, nil)
		m.logger.WithField("user_id", userID).
			WithField("replacing", state == StateAuthenticating).
			Warn("session invalidated by unauthorized response")
		return nil, err
	})
	return err
}

// settle maps the result of an operation overtaken by Logout or Close to
// ErrSessionSuperseded.
func (m *Manager) settle(op *operation, err error) error {
	if err != nil && m.superseded(op.epoch) {
		return ErrSessionSuperseded
	}
	return err
}

func (m *Manager) recordOutcome(ctx context.Context, op, userID string, err error) {
	log := m.logger.WithField("op", op)
	success, failure := MetricLoginSuccess, MetricLoginFailure
	okEvent, failEvent := auditLoginSuccess, auditLoginFailure
	if op == "register" {
		success, failure = MetricRegisterSuccess, MetricRegisterFailure
		okEvent, failEvent = auditRegisterSuccess, auditRegisterFailure
	}

	switch {
	case err == nil:
		m.metrics.Inc(success)
		m.emitAudit(ctx, okEvent, userID, true, nil, nil)
		m.logTransition(op)
	case errors.Is(err, ErrSessionSuperseded):
		m.metrics.Inc(MetricSessionSuperseded)
		m.emitAudit(ctx, auditSessionSuperseded, "", false, err, map[string]string{"op": op})
		log.Debug("operation superseded by logout")
	default:
		m.metrics.Inc(failure)
		if errors.Is(err, ErrProfileResolution) {
			m.metrics.Inc(MetricProfileResolutionFailure)
		}
		m.emitAudit(ctx, failEvent, "", false, err, nil)
		log.WithError(err).Info("session operation failed")
	}
}

func (m *Manager) loginDeps(epoch uint64) flows.LoginDeps {
	return flows.LoginDeps{
		Authenticate: m.timedLogin,
		CurrentUser:  m.timedCurrentUser,
		Commit:       m.committer(epoch),
		Errors:       flowErrors(),
	}
}

func (m *Manager) timedLogin(ctx context.Context, email, pass string) (authapi.Token, error) {
	defer m.observe(m.now())
	return m.api.Login(ctx, email, pass)
}

func (m *Manager) timedRegister(ctx context.Context, name, email, pass string) (authapi.Profile, error) {
	defer m.observe(m.now())
	return m.api.Register(ctx, name, email, pass)
}

func (m *Manager) timedCurrentUser(ctx context.Context, tok string) (authapi.Profile, error) {
	defer m.observe(m.now())
	return m.api.CurrentUser(ctx, tok)
}

func (m *Manager) observe(start time.Time) {
	m.metrics.Observe(MetricAuthLatency, m.now().Sub(start))
}

func (m *Manager) loadToken(ctx context.Context) (string, error) {
	raw, err := m.store.Get(ctx, m.keys.Token)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func (m *Manager) loadProfile(ctx context.Context) (*storage.Profile, error) {
	raw, err := m.store.Get(ctx, m.keys.Profile)
	if err != nil {
		return nil, err
	}
	p, err := storage.DecodeProfile(raw)
	if err != nil {
		m.logger.WithError(err).Debug("ignoring unreadable cached profile")
		return nil, err
	}
	return p, nil
}

// tokenExpired inspects JWT claims without verifying them. Opaque tokens
// are never considered expired locally.
func (m *Manager) tokenExpired(tok string) bool {
	claims, err := token.Inspect(tok)
	if err != nil {
		return false
	}
	return claims.ExpiredAt(m.now(), m.config.Session.ExpirySkew)
}

func (m *Manager) validateRegistration(req flows.RegisterRequest) error {
	if err := m.validate.Struct(RegisterRequest{Name: req.Name, Email: req.Email, Password: req.Password}); err != nil {
		return invalidRequest(err)
	}
	return password.CheckPolicy(req.Password)
}

func invalidRequest(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describeField(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
}

func describeField(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

