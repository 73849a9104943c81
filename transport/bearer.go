package transport

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// Session is the part of the session manager the transport needs.
type Session interface {
	Token() string
	HandleUnauthorized(ctx context.Context, bearer string) error
}

// Bearer injects "Authorization: Bearer <token>" and calls
// Session.HandleUnauthorized when the server answers 401 to a request that
// carried a token.
type Bearer struct {
	Session Session
	// Base is the underlying transport; nil means http.DefaultTransport.
	Base   http.RoundTripper
	Logger logrus.FieldLogger
}

// NewClient returns an http.Client whose requests go through a Bearer
// transport over base.
func NewClient(session Session, base http.RoundTripper, logger logrus.FieldLogger) *http.Client {
	return &http.Client{Transport: &Bearer{Session: session, Base: base, Logger: logger}}
}

// RoundTrip implements http.RoundTripper.
func (b *Bearer) RoundTrip(req *http.Request) (*http.Response, error) {
	tok := ""
	if b.Session != nil {
		tok = b.Session.Token()
	}

	out := req
	if tok != "" && req.Header.Get("Authorization") == "" {
		out = req.Clone(req.Context())
		out.Header.Set("Authorization", "Bearer "+tok)
	} else if t, ok := BearerToken(req.Header.Get("Authorization")); ok {
		tok = t
	} else {
		tok = ""
	}

	resp, err := b.base().RoundTrip(out)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || tok == "" {
		return resp, err
	}

	// Invalidation must not be abandoned because the request context ended.
	if herr := b.Session.HandleUnauthorized(context.WithoutCancel(req.Context()), tok); herr != nil {
		b.logger().WithError(herr).Warn("could not clear session after unauthorized response")
	}
	return resp, nil
}

func (b *Bearer) base() http.RoundTripper {
	if b.Base != nil {
		return b.Base
	}
	return http.DefaultTransport
}

func (b *Bearer) logger() logrus.FieldLogger {
	if b.Logger != nil {
		return b.Logger
	}
	return logrus.StandardLogger()
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
