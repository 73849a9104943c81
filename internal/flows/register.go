package flows

import (
	"context"
	"fmt"

	"github.com/peerbonus/peerbonus-go/authapi"
)

// RegisterRequest is the flow-local registration input.
type RegisterRequest struct {
	Name     string
	Email    string
	Password string
}

// RegisterDeps captures registration dependencies. Login runs the full login
// flow for the auto-login step.
type RegisterDeps struct {
	Validate func(RegisterRequest) error
	Register func(ctx context.Context, name, email, password string) (authapi.Profile, error)
	Login    func(ctx context.Context, email, password string) (authapi.Profile, error)
	Errors   Errors
}

// RunRegister validates req locally, creates the account, then logs in with
// the same credentials. Session state is untouched until the login step.
func RunRegister(ctx context.Context, req RegisterRequest, deps RegisterDeps) (authapi.Profile, error) {
	if deps.Validate != nil {
		if err := deps.Validate(req); err != nil {
			return authapi.Profile{}, fmt.Errorf("%w: %w", deps.Errors.Registration, err)
		}
	}

	if _, err := deps.Register(ctx, req.Name, req.Email, req.Password); err != nil {
		if IsRejection(err) {
			return authapi.Profile{}, fmt.Errorf("%w: %w", deps.Errors.Registration, err)
		}
		return authapi.Profile{}, fmt.Errorf("register: %w", err)
	}

	return deps.Login(ctx, req.Email, req.Password)
}
