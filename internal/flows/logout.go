package flows

import "context"

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	// Supersede invalidates any in-flight operation before storage is
	// cleared, so a pending login cannot commit afterwards.
	Supersede    func()
	ClearSession func(ctx context.Context) error
}

// RunLogout supersedes pending work and clears the session. It is safe to
// call in any state.
func RunLogout(ctx context.Context, deps LogoutDeps) error {
	if deps.Supersede != nil {
		deps.Supersede()
	}
	return deps.ClearSession(cleanupContext(ctx))
}
