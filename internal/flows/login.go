package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/peerbonus/peerbonus-go/authapi"
)

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Authenticate func(ctx context.Context, email, password string) (authapi.Token, error)
	CurrentUser  func(ctx context.Context, token string) (authapi.Profile, error)
	Commit       SessionCommitter
	Errors       Errors
}

// RunLogin exchanges credentials for a token, persists it, then resolves and
// persists the profile. A rejected login leaves storage untouched. A token
// that cannot resolve a profile is cleared.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) (authapi.Profile, error) {
	tok, err := deps.Authenticate(ctx, email, password)
	if err != nil {
		if IsRejection(err) {
			return authapi.Profile{}, fmt.Errorf("%w: %w", deps.Errors.Authentication, err)
		}
		return authapi.Profile{}, fmt.Errorf("login: %w", err)
	}

	if err := deps.Commit.PersistToken(ctx, tok.AccessToken); err != nil {
		return authapi.Profile{}, err
	}

	p, err := deps.CurrentUser(ctx, tok.AccessToken)
	if err != nil {
		err = fmt.Errorf("%w: %w", deps.Errors.ProfileResolution, err)
		if clearErr := deps.Commit.ClearSession(cleanupContext(ctx)); clearErr != nil {
			err = errors.Join(err, clearErr)
		}
		return authapi.Profile{}, err
	}

	if err := deps.Commit.PersistSession(ctx, tok.AccessToken, p); err != nil {
		return authapi.Profile{}, err
	}
	return p, nil
}

// IsRejection reports whether err is a definite refusal by the Auth API, as
// opposed to a transport failure or cancellation.
func IsRejection(err error) bool {
	return errors.Is(err, authapi.ErrUnauthorized) || errors.Is(err, authapi.ErrBadRequest)
}
