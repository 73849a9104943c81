package peerbonus

import (
	"context"
	"io"

	"github.com/peerbonus/peerbonus-go/authapi"
	internalaudit "github.com/peerbonus/peerbonus-go/internal/audit"
	"github.com/peerbonus/peerbonus-go/storage"
)

// State is the session lifecycle state.
type State uint8

const (
	// StateUninitialized is the state before Init.
	StateUninitialized State = iota
	// StateHydrating is the state while Init restores the session.
	StateHydrating
	// StateAnonymous means no verified session.
	StateAnonymous
	// StateAuthenticating is the transient state of Login and Register.
	StateAuthenticating
	// StateAuthenticated means a token resolved to a profile.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateHydrating:
		return "hydrating"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// User is the last known profile of the session owner.
type User struct {
	ID        string
	Name      string
	Email     string
	AvatarURL string
}

func userFromProfile(p authapi.Profile) *User {
	return &User{ID: p.ID, Name: p.Name, Email: p.Email, AvatarURL: p.AvatarURL}
}

func userFromStored(p *storage.Profile) *User {
	if p == nil {
		return nil
	}
	return &User{ID: p.ID, Name: p.Name, Email: p.Email, AvatarURL: p.AvatarURL}
}

func (u *User) stored() *storage.Profile {
	return &storage.Profile{ID: u.ID, Name: u.Name, Email: u.Email, AvatarURL: u.AvatarURL}
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// Credentials are login inputs.
type Credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// RegisterRequest is the registration input.
type RegisterRequest struct {
	Name     string `validate:"required,max=255"`
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// Snapshot is a consistent view of the session at one instant.
type Snapshot struct {
	State    State
	User     *User
	Loading  bool
	LoggedIn bool
	HasToken bool
}

// AuthAPI is the Auth API contract consumed by the Manager. Both
// authapi.Client and authapi.Local implement it.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (authapi.Token, error)
	Register(ctx context.Context, name, email, password string) (authapi.Profile, error)
	CurrentUser(ctx context.Context, accessToken string) (authapi.Profile, error)
}

// AuditEvent is one session lifecycle record.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events.
type AuditSink = internalaudit.Sink

// NoOpSink drops audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards audit events to a channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes audit events as JSON lines.
type JSONWriterSink = internalaudit.JSONWriterSink

// LogrusSink logs audit events.
type LogrusSink = internalaudit.LogrusSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing JSON lines to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
