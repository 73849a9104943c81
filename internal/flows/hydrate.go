package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/peerbonus/peerbonus-go/authapi"
	"github.com/peerbonus/peerbonus-go/storage"
)

// HydrateOutcome classifies how hydration ended.
type HydrateOutcome int

const (
	// HydrateNoSession means no token was stored.
	HydrateNoSession HydrateOutcome = iota
	// HydrateAuthenticated means the stored token resolved a profile.
	HydrateAuthenticated
	// HydrateInvalidToken means the stored token was rejected or expired and
	// the session was cleared.
	HydrateInvalidToken
	// HydrateStorageFailure means storage could not be read.
	HydrateStorageFailure
)

// HydrateResult is the flow-local hydration response.
type HydrateResult struct {
	Outcome HydrateOutcome
	Profile authapi.Profile
	// Cached is the display-only profile loaded when no token is stored.
	Cached *storage.Profile
	// Expired reports that the token was rejected locally without a lookup.
	Expired bool
	Err     error
}

// HydrateDeps captures hydration dependencies.
type HydrateDeps struct {
	LoadToken    func(ctx context.Context) (string, error)
	LoadProfile  func(ctx context.Context) (*storage.Profile, error)
	TokenExpired func(token string) bool
	CurrentUser  func(ctx context.Context, token string) (authapi.Profile, error)
	Commit       SessionCommitter
	Errors       Errors
}

// RunHydrate restores the session from storage. It never returns an error
// directly; failures are reported in the result and always end in a
// definite outcome.
func RunHydrate(ctx context.Context, deps HydrateDeps) HydrateResult {
	tok, err := deps.LoadToken(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return HydrateResult{
			Outcome: HydrateStorageFailure,
			Err:     fmt.Errorf("%w: %w", deps.Errors.StorageUnavailable, err),
		}
	}

	if tok == "" {
		cached, err := deps.LoadProfile(ctx)
		if err != nil {
			cached = nil
		}
		return HydrateResult{Outcome: HydrateNoSession, Cached: cached}
	}

	if deps.TokenExpired != nil && deps.TokenExpired(tok) {
		res := HydrateResult{
			Outcome: HydrateInvalidToken,
			Expired: true,
			Err:     fmt.Errorf("%w: stored token expired", deps.Errors.ProfileResolution),
		}
		if clearErr := deps.Commit.ClearSession(cleanupContext(ctx)); clearErr != nil {
			res.Err = errors.Join(res.Err, clearErr)
		}
		return res
	}

	p, err := deps.CurrentUser(ctx, tok)
	if err != nil {
		res := HydrateResult{
			Outcome: HydrateInvalidToken,
			Err:     fmt.Errorf("%w: %w", deps.Errors.ProfileResolution, err),
		}
		if clearErr := deps.Commit.ClearSession(cleanupContext(ctx)); clearErr != nil {
			res.Err = errors.Join(res.Err, clearErr)
		}
		return res
	}

	if err := deps.Commit.PersistSession(ctx, tok, p); err != nil {
		return HydrateResult{Outcome: HydrateStorageFailure, Err: err}
	}
	return HydrateResult{Outcome: HydrateAuthenticated, Profile: p}
}
