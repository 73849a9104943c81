package flows

import (
	"context"

	"github.com/peerbonus/peerbonus-go/authapi"
)

// SessionCommitter persists session transitions. Implementations write
// storage before memory and refuse commits from a superseded operation.
type SessionCommitter struct {
	// PersistToken stores a freshly issued token before its profile is known.
	PersistToken func(ctx context.Context, token string) error
	// PersistSession stores token and profile together.
	PersistSession func(ctx context.Context, token string, p authapi.Profile) error
	// ClearSession removes token and profile.
	ClearSession func(ctx context.Context) error
}

// Errors carries host-level sentinel errors used by the flows.
type Errors struct {
	Authentication     error
	Registration       error
	ProfileResolution  error
	StorageUnavailable error
	InvalidRequest     error
}

// cleanupContext keeps cleanup running after the caller's context ends.
func cleanupContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
