package kudos

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	peerbonus "github.com/peerbonus/peerbonus-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotLoggedIn is returned by calls that need an authenticated session.
	ErrNotLoggedIn = errors.New("kudos: not logged in")
	// ErrInvalidKudos wraps local validation failures of SendInput.
	ErrInvalidKudos = errors.New("kudos: invalid kudos")
	// ErrSelfKudos is returned when the receiver is the sender.
	ErrSelfKudos = errors.New("kudos: cannot send kudos to yourself")
	// ErrInvalidReaction is returned for emoji outside Reactions.
	ErrInvalidReaction = errors.New("kudos: unsupported reaction")
)

const (
	// DefaultUsersLimit and DefaultFeedLimit match the backend defaults.
	DefaultUsersLimit = 20
	DefaultFeedLimit  = 100
)

// Doer executes a GraphQL operation. *graphql.Client implements it.
type Doer interface {
	Do(ctx context.Context, query string, vars map[string]interface{}, out interface{}) error
}

// Session is the part of the session manager the client reads.
type Session interface {
	User() *peerbonus.User
	IsLoggedIn() bool
}

// Client is the kudos domain client.
type Client struct {
	gql      Doer
	session  Session
	validate *validator.Validate
	logger   logrus.FieldLogger
}

// NewClient returns a Client that sends operations through gql on behalf of
// the session's user.
func NewClient(gql Doer, session Session, logger logrus.FieldLogger) *Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		gql:      gql,
		session:  session,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.WithField("component", "kudos"),
	}
}

const kudosFields = `id senderId receiverId message amount createdAt updatedAt
	sender { id email name avatarUrl }
	receiver { id email name avatarUrl }`

const (
	usersQuery = `query Users($limit: Int!) { users(limit: $limit) { id email name avatarUrl } }`

	feedQuery = `query Feed($limit: Int!) { kudos(limit: $limit) { ` + kudosFields + ` } }`

	receivedQuery = `query Received($userId: UUID!, $limit: Int!) {
	kudosReceived(userId: $userId, limit: $limit) { ` + kudosFields + ` } }`

	sendMutation = `mutation SendKudos($senderId: UUID!, $receiverId: UUID!, $message: String!, $amount: Int!) {
	sendKudos(senderId: $senderId, receiverId: $receiverId, message: $message, amount: $amount) { ` + kudosFields + ` } }`

	toggleReactionMutation = `mutation ToggleReaction($kudosId: UUID!, $userId: UUID!, $reactionType: String!) {
	toggleReaction(kudosId: $kudosId, userId: $userId, reactionType: $reactionType) { kudosId reactionType count userReacted } }`
)

// Users lists teammates.
func (c *Client) Users(ctx context.Context, limit int) ([]User, error) {
	var out struct {
		Users []User `json:"users"`
	}
	if err := c.gql.Do(ctx, usersQuery, map[string]interface{}{"limit": orDefault(limit, DefaultUsersLimit)}, &out); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out.Users, nil
}

// Feed returns the latest kudos in backend order, newest first.
func (c *Client) Feed(ctx context.Context, limit int) ([]Kudos, error) {
	var out struct {
		Kudos []Kudos `json:"kudos"`
	}
	if err := c.gql.Do(ctx, feedQuery, map[string]interface{}{"limit": orDefault(limit, DefaultFeedLimit)}, &out); err != nil {
		return nil, fmt.Errorf("load feed: %w", err)
	}
	return out.Kudos, nil
}

// Received returns kudos received by userID, newest first. An empty userID
// means the logged-in user.
func (c *Client) Received(ctx context.Context, userID string, limit int) ([]Kudos, error) {
	if userID == "" {
		me, err := c.me()
		if err != nil {
			return nil, err
		}
		userID = me.ID
	}

	var out struct {
		KudosReceived []Kudos `json:"kudosReceived"`
	}
	vars := map[string]interface{}{"userId": userID, "limit": orDefault(limit, DefaultUsersLimit)}
	if err := c.gql.Do(ctx, receivedQuery, vars, &out); err != nil {
		return nil, fmt.Errorf("load received kudos: %w", err)
	}
	return out.KudosReceived, nil
}

// Send sends a kudos from the logged-in user. The message is trimmed and
// the amount defaults to 1.
func (c *Client) Send(ctx context.Context, in SendInput) (*Kudos, error) {
	me, err := c.me()
	if err != nil {
		return nil, err
	}

	in.ReceiverID = strings.TrimSpace(in.ReceiverID)
	in.Message = strings.TrimSpace(in.Message)
	if in.Amount == 0 {
		in.Amount = 1
	}
	if err := c.validate.Struct(in); err != nil {
		return nil, invalidKudos(err)
	}
	if in.ReceiverID == me.ID {
		return nil, ErrSelfKudos
	}

	var out struct {
		SendKudos *Kudos `json:"sendKudos"`
	}
	vars := map[string]interface{}{
		"senderId":   me.ID,
		"receiverId": in.ReceiverID,
		"message":    in.Message,
		"amount":     in.Amount,
	}
	if err := c.gql.Do(ctx, sendMutation, vars, &out); err != nil {
		return nil, fmt.Errorf("send kudos: %w", err)
	}
	if out.SendKudos == nil {
		return nil, errors.New("send kudos: empty response")
	}
	c.logger.WithFields(logrus.Fields{
		"kudos_id":    out.SendKudos.ID,
		"receiver_id": in.ReceiverID,
	}).Info("kudos sent")
	return out.SendKudos, nil
}

// ToggleReaction adds the logged-in user's emoji reaction to a kudos, or
// removes it if already present.
func (c *Client) ToggleReaction(ctx context.Context, kudosID, emoji string) (*Reaction, error) {
	me, err := c.me()
	if err != nil {
		return nil, err
	}
	if !ValidReaction(emoji) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReaction, emoji)
	}
	if strings.TrimSpace(kudosID) == "" {
		return nil, fmt.Errorf("%w: kudos id is required", ErrInvalidKudos)
	}

	var out struct {
		ToggleReaction *Reaction `json:"toggleReaction"`
	}
	vars := map[string]interface{}{"kudosId": kudosID, "userId": me.ID, "reactionType": emoji}
	if err := c.gql.Do(ctx, toggleReactionMutation, vars, &out); err != nil {
		return nil, fmt.Errorf("toggle reaction: %w", err)
	}
	if out.ToggleReaction == nil {
		return nil, errors.New("toggle reaction: empty response")
	}
	return out.ToggleReaction, nil
}

// Dashboard loads teammates, the feed and the logged-in user's received
// kudos concurrently.
func (c *Client) Dashboard(ctx context.Context) (*Dashboard, error) {
	me, err := c.me()
	if err != nil {
		return nil, err
	}

	var d Dashboard
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		users, err := c.Users(ctx, DefaultUsersLimit)
		d.Users = users
		return err
	})
	g.Go(func() error {
		feed, err := c.Feed(ctx, DefaultFeedLimit)
		d.Feed = feed
		return err
	})
	g.Go(func() error {
		received, err := c.Received(ctx, me.ID, DefaultUsersLimit)
		d.Received = received
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) me() (*peerbonus.User, error) {
	if c.session == nil || !c.session.IsLoggedIn() {
		return nil, ErrNotLoggedIn
	}
	u := c.session.User()
	if u == nil {
		return nil, ErrNotLoggedIn
	}
	return u, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func invalidKudos(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidKudos, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Field() {
		case "ReceiverID":
			msgs = append(msgs, "receiver is required")
		case "Message":
			if fe.Tag() == "max" {
				msgs = append(msgs, "message must be at most "+fe.Param()+" characters")
			} else {
				msgs = append(msgs, "message is required")
			}
		case "Amount":
			msgs = append(msgs, "amount must be at least 1")
		default:
			msgs = append(msgs, strings.ToLower(fe.Field())+" is invalid")
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidKudos, strings.Join(msgs, "; "))
}
