package peerbonus

import (
	"context"
	"errors"
	"fmt"

	"github.com/peerbonus/peerbonus-go/authapi"
	"github.com/peerbonus/peerbonus-go/internal/flows"
	"github.com/peerbonus/peerbonus-go/storage"
)

// operation is one guarded Login or Register run.
type operation struct {
	ctx   context.Context
	epoch uint64
	prev  State
	end   func()
}

func (m *Manager) ready() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch {
	case m.closed:
		return ErrClosed
	case m.state == StateUninitialized || m.state == StateHydrating || m.hydrating:
		return ErrNotReady
	}
	return nil
}

// begin acquires the in-flight guard, binds a cancellable context to the
// current epoch and moves the session to StateAuthenticating.
func (m *Manager) begin(ctx context.Context) (*operation, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}

	if m.config.Session.Concurrency == ConcurrencySerialize {
		if err := m.guard.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	} else if !m.guard.TryAcquire(1) {
		m.metrics.Inc(MetricOperationRejected)
		return nil, ErrOperationInFlight
	}

	// Close may have run while waiting for the guard.
	if err := m.ready(); err != nil {
		m.guard.Release(1)
		return nil, err
	}

	opCtx, cancel := context.WithCancel(ctx)
	m.commitMu.Lock()
	epoch := m.epoch
	m.cancelOp = cancel
	m.commitMu.Unlock()

	m.mu.Lock()
	prev := m.state
	m.state = StateAuthenticating
	m.loading = true
	m.mu.Unlock()
	m.publish()

	op := &operation{ctx: opCtx, epoch: epoch, prev: prev}
	op.end = func() {
		cancel()
		m.commitMu.Lock()
		if m.epoch == epoch {
			m.cancelOp = nil
		}
		m.commitMu.Unlock()

		m.mu.Lock()
		m.loading = false
		// Nothing was committed: the session is as it was before the call,
		// unless a 401 dropped the previous token meanwhile.
		if m.state == StateAuthenticating {
			m.state = prev
			if m.token == "" {
				m.state = StateAnonymous
			}
		}
		m.mu.Unlock()

		m.guard.Release(1)
		m.publish()
	}
	return op, nil
}

// superseded reports whether Logout or Close ran after epoch was taken.
func (m *Manager) superseded(epoch uint64) bool {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()
	return m.epoch != epoch
}

// supersede invalidates every operation started so far and cancels the
// running one.
func (m *Manager) supersede() {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()
	m.epoch++
	if m.cancelOp != nil {
		m.cancelOp()
		m.cancelOp = nil
	}
}

// commit writes storage then applies the memory change, unless epoch is
// stale. A storage failure is treated as "no session": storage is cleared
// best effort and memory is reset.
func (m *Manager) commit(ctx context.Context, epoch uint64, persist func(context.Context) error, apply func()) error {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	if m.epoch != epoch {
		return ErrSessionSuperseded
	}
	return m.commitLocked(ctx, persist, apply)
}

func (m *Manager) commitLocked(ctx context.Context, persist func(context.Context) error, apply func()) error {
	// A commit that has been decided is not abandoned halfway because the
	// caller went away.
	ctx = context.WithoutCancel(ctx)

	if err := persist(ctx); err != nil {
		m.metrics.Inc(MetricStorageFailure)
		m.logger.WithError(err).Warn("session storage write failed")
		_ = storage.Clear(ctx, m.store, m.keys)
		m.mu.Lock()
		m.clearMemoryLocked()
		m.mu.Unlock()
		m.publish()
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	m.mu.Lock()
	apply()
	m.mu.Unlock()
	m.publish()
	return nil
}

func (m *Manager) clearMemoryLocked() {
	m.token = ""
	m.user = nil
	m.state = StateAnonymous
}

func (m *Manager) persistTokenFn(epoch uint64) func(context.Context, string) error {
	return func(ctx context.Context, tok string) error {
		return m.commit(ctx, epoch, func(ctx context.Context) error {
			if err := m.store.Set(ctx, m.keys.Token, []byte(tok)); err != nil {
				return err
			}
			// The cached profile belongs to the previous token.
			if err := m.store.Delete(ctx, m.keys.Profile); err != nil && !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			return nil
		}, func() {
			m.token = tok
			m.user = nil
			m.state = StateAuthenticating
		})
	}
}

func (m *Manager) persistSessionFn(epoch uint64) func(context.Context, string, authapi.Profile) error {
	return func(ctx context.Context, tok string, p authapi.Profile) error {
		user := userFromProfile(p)
		encoded, err := storage.EncodeProfile(user.stored())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrProfileResolution, err)
		}
		return m.commit(ctx, epoch, func(ctx context.Context) error {
			if err := m.store.Set(ctx, m.keys.Token, []byte(tok)); err != nil {
				return err
			}
			return m.store.Set(ctx, m.keys.Profile, encoded)
		}, func() {
			m.token = tok
			m.user = user
			m.state = StateAuthenticated
		})
	}
}

func (m *Manager) clearSessionFn(epoch uint64) func(context.Context) error {
	return func(ctx context.Context) error {
		return m.commit(ctx, epoch, func(ctx context.Context) error {
			return storage.Clear(ctx, m.store, m.keys)
		}, m.clearMemoryLocked)
	}
}

func (m *Manager) committer(epoch uint64) flows.SessionCommitter {
	return flows.SessionCommitter{
		PersistToken:   m.persistTokenFn(epoch),
		PersistSession: m.persistSessionFn(epoch),
		ClearSession:   m.clearSessionFn(epoch),
	}
}

func flowErrors() flows.Errors {
	return flows.Errors{
		Authentication:     ErrAuthentication,
		Registration:       ErrRegistration,
		ProfileResolution:  ErrProfileResolution,
		StorageUnavailable: ErrStorageUnavailable,
		InvalidRequest:     ErrInvalidRequest,
	}
}
