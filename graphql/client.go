package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrUnauthorized is returned when the endpoint answers 401.
	ErrUnauthorized = errors.New("graphql: unauthorized")
	// ErrUnavailable classifies transport failures and non-2xx answers.
	ErrUnavailable = errors.New("graphql: unavailable")
)

// Message is one entry of a GraphQL errors array.
type Message struct {
	Message string        `json:"message"`
	Path    []interface{} `json:"path,omitempty"`
}

// Error is a GraphQL response that carried errors.
type Error struct {
	Messages []Message
}

func (e *Error) Error() string {
	msgs := make([]string, 0, len(e.Messages))
	for _, m := range e.Messages {
		msgs = append(msgs, m.Message)
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

// Config configures a Client.
type Config struct {
	Endpoint string
	Timeout  time.Duration
	// HTTPClient carries the transport, typically a bearer transport.
	HTTPClient *http.Client
	UserAgent  string
	Logger     logrus.FieldLogger
}

// Client executes GraphQL operations.
type Client struct {
	rest     *resty.Client
	endpoint string
	logger   logrus.FieldLogger
}

type request struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []Message       `json:"errors"`
}

// NewClient returns a Client for cfg.Endpoint.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("graphql: endpoint required")
	}

	var rest *resty.Client
	if cfg.HTTPClient != nil {
		rest = resty.NewWithClient(cfg.HTTPClient)
	} else {
		rest = resty.New()
	}
	rest.SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		rest.SetTimeout(cfg.Timeout)
	}
	if cfg.UserAgent != "" {
		rest.SetHeader("User-Agent", cfg.UserAgent)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{rest: rest, endpoint: cfg.Endpoint, logger: logger}, nil
}

// Do runs query with vars and decodes the data object into out, which may
// be nil.
func (c *Client) Do(ctx context.Context, query string, vars map[string]interface{}, out interface{}) error {
	requestID := uuid.NewString()
	log := c.logger.WithFields(logrus.Fields{
		"operation":  operationName(query),
		"request_id": requestID,
	})

	var body response
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", requestID).
		SetBody(request{Query: query, Variables: vars}).
		ForceContentType("application/json").
		SetResult(&body).
		SetError(&body).
		Post(c.endpoint)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.WithError(err).Warn("graphql request failed")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized:
		return ErrUnauthorized
	case len(body.Errors) > 0:
		log.WithField("errors", len(body.Errors)).Debug("graphql errors in response")
		return &Error{Messages: body.Errors}
	case resp.IsError():
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode())
	}

	if out == nil || len(body.Data) == 0 || string(body.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(body.Data, out); err != nil {
		return fmt.Errorf("graphql: decode data: %w", err)
	}
	log.Debug("graphql request completed")
	return nil
}

// operationName returns the first word after the operation keyword, for
// logging only.
func operationName(query string) string {
	fields := strings.Fields(query)
	for i, f := range fields {
		if (f == "query" || f == "mutation") && i+1 < len(fields) {
			return strings.TrimRight(strings.SplitN(fields[i+1], "(", 2)[0], "{")
		}
	}
	return "anonymous"
}
