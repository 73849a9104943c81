package authapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultBasePath is where the backend mounts the auth router.
const DefaultBasePath = "/api/auth"

// Config configures a Client.
type Config struct {
	BaseURL    string
	BasePath   string
	Timeout    time.Duration
	RetryCount int
	UserAgent  string
	// HTTPClient, when set, is used for all requests.
	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

// Client is the HTTP Auth API client.
type Client struct {
	rest     *resty.Client
	basePath string
	logger   logrus.FieldLogger
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("authapi: base url required")
	}
	if cfg.Timeout < 0 || cfg.RetryCount < 0 {
		return nil, errors.New("authapi: negative timeout or retry count")
	}

	var rest *resty.Client
	if cfg.HTTPClient != nil {
		rest = resty.NewWithClient(cfg.HTTPClient)
	} else {
		rest = resty.New()
	}
	rest.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Only idempotent lookups are retried, and only on 5xx or transport errors.
			if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || r.StatusCode() >= 500
		})
	if cfg.Timeout > 0 {
		rest.SetTimeout(cfg.Timeout)
	}
	if cfg.UserAgent != "" {
		rest.SetHeader("User-Agent", cfg.UserAgent)
	}

	basePath := cfg.BasePath
	if basePath == "" {
		basePath = DefaultBasePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Client{
		rest:     rest,
		basePath: "/" + strings.Trim(basePath, "/"),
		logger:   logger,
	}, nil
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, email, password string) (Token, error) {
	var tok Token
	_, err := c.do(ctx, http.MethodPost, "/login", "", loginRequest{Email: email, Password: password}, &tok)
	if err != nil {
		return Token{}, err
	}
	if tok.AccessToken == "" {
		return Token{}, fmt.Errorf("%w: access_token missing", ErrMalformedResponse)
	}
	return tok, nil
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, name, email, password string) (Profile, error) {
	var p Profile
	_, err := c.do(ctx, http.MethodPost, "/register", "", registerRequest{Email: email, Name: name, Password: password}, &p)
	if err != nil {
		return Profile{}, err
	}
	return p, nil
}

// CurrentUser resolves the profile that owns accessToken.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (Profile, error) {
	var p Profile
	_, err := c.do(ctx, http.MethodGet, "/me", accessToken, nil, &p)
	if err != nil {
		return Profile{}, err
	}
	if p.ID == "" {
		return Profile{}, fmt.Errorf("%w: profile id missing", ErrMalformedResponse)
	}
	return p, nil
}

// Health reports whether the backend answers its health probe. The probe is
// served at the API root, outside BasePath.
func (c *Client) Health(ctx context.Context) error {
	var h health
	if _, err := c.execute(ctx, http.MethodGet, "/health", "", nil, &h); err != nil {
		return err
	}
	if h.Status != "ok" {
		return fmt.Errorf("%w: status %q", ErrUnavailable, h.Status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body, result interface{}) (*resty.Response, error) {
	return c.execute(ctx, method, c.basePath+path, bearer, body, result)
}

func (c *Client) execute(ctx context.Context, method, url, bearer string, body, result interface{}) (*resty.Response, error) {
	requestID := uuid.NewString()
	req := c.rest.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", requestID).
		SetResult(result)
	if bearer != "" {
		req.SetAuthToken(bearer)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, url)
	log := c.logger.WithFields(logrus.Fields{
		"method":     method,
		"path":       url,
		"request_id": requestID,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.WithError(err).Warn("auth api request failed")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.IsError() {
		apiErr := convertError(resp.StatusCode(), resp.Body(), requestID)
		log.WithField("status", apiErr.Status).Debug("auth api rejected request")
		return resp, apiErr
	}
	log.WithField("status", resp.StatusCode()).Debug("auth api request completed")
	return resp, nil
}
