package peerbonus

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	internalaudit "github.com/peerbonus/peerbonus-go/internal/audit"
	"github.com/peerbonus/peerbonus-go/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// Manager owns the session of one client process. All methods are safe for
// concurrent use.
type Manager struct {
	config   Config
	api      AuthAPI
	store    storage.Store
	ownStore bool
	keys     storage.Keys
	logger   logrus.FieldLogger
	audit    *internalaudit.Dispatcher
	metrics  *Metrics
	validate *validator.Validate
	guard    *semaphore.Weighted
	rejected singleflight.Group
	now      func() time.Time
	instance string

	// commitMu serializes storage commits and guards epoch and cancelOp.
	// Logout bumps epoch so that commits from older operations are refused.
	commitMu sync.Mutex
	epoch    uint64
	cancelOp context.CancelFunc

	mu      sync.RWMutex
	state   State
	token   string
	user    *User
	loading bool
	lastErr error
	closed  bool
	subs    map[uint64]chan Snapshot
	nextSub uint64
	// hydrating is true while Init runs, even after Logout has moved the
	// state on.
	hydrating bool

	closeOnce sync.Once
	closeErr  error
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// User returns a copy of the current profile, or nil. After a hydration
// without a token this is the cached display-only profile and IsLoggedIn
// is false.
func (m *Manager) User() *User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user.clone()
}

// Loading reports whether a hydration, login or register is outstanding.
func (m *Manager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

// IsLoggedIn reports whether a verified session is held in memory.
func (m *Manager) IsLoggedIn() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loggedInLocked()
}

func (m *Manager) loggedInLocked() bool {
	return m.state == StateAuthenticated && m.user != nil && m.token != ""
}

// Token returns the bearer token of the current session, or "".
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// LastError returns the error recorded by the last hydration or
// server-side invalidation, or nil.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Snapshot returns a consistent view of the session.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		State:    m.state,
		User:     m.user.clone(),
		Loading:  m.loading,
		LoggedIn: m.loggedInLocked(),
		HasToken: m.token != "",
	}
}

// MetricsSnapshot returns a copy of the session metrics.
func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	return m.metrics.Snapshot()
}

// Close cancels in-flight work, flushes audit events, closes subscriber
// channels and, when the Manager created it, the store. Close is idempotent.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.commitMu.Lock()
		m.epoch++
		if m.cancelOp != nil {
			m.cancelOp()
			m.cancelOp = nil
		}
		m.commitMu.Unlock()

		m.mu.Lock()
		m.closed = true
		for id, ch := range m.subs {
			close(ch)
			delete(m.subs, id)
		}
		m.mu.Unlock()

		m.audit.Close()
		if m.ownStore {
			m.closeErr = m.store.Close()
		}
		m.logger.Debug("session manager closed")
	})
	return m.closeErr
}

// Subscribe returns a channel that receives a Snapshot after every
// transition, starting with the current one, and a function that ends the
// subscription. A subscriber whose buffer is full misses snapshots instead
// of delaying transitions. The channel is closed by cancel or Close.
func (m *Manager) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.snapshotLocked()
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if sub, ok := m.subs[id]; ok {
				close(sub)
				delete(m.subs, id)
			}
		})
	}
}

func (m *Manager) publish() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.subs) == 0 {
		return
	}
	snap := m.snapshotLocked()
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (m *Manager) logTransition(op string) {
	m.mu.RLock()
	fields := logrus.Fields{"op": op, "state": m.state.String(), "loading": m.loading}
	if m.user != nil {
		fields["user_id"] = m.user.ID
	}
	m.mu.RUnlock()
	m.logger.WithFields(fields).Debug("session transition")
}
