package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/novafeed/sessionkit-go/pkg/sesserr"
	"github.com/novafeed/sessionkit-go/pkg/version"
)

// Grant is the backend's answer to a refresh request.
type Grant struct {
	// AccessSecret is the newly issued access secret.
	AccessSecret string

	// RefreshSecret is the newly issued refresh secret. Empty means the
	// current refresh secret stays valid.
	RefreshSecret string

	// ExpiresIn is how long AccessSecret remains valid.
	ExpiresIn time.Duration
}

// API is the narrow backend surface the session consumes.
type API interface {
	// Refresh exchanges a refresh secret for a new grant.
	// A rejection of the refresh secret itself must be classified as an
	// authorization error.
	Refresh(ctx context.Context, refreshSecret string) (Grant, error)

	// Logout invalidates the access secret server-side. Best-effort:
	// callers treat failure as non-fatal.
	Logout(ctx context.Context, accessSecret string) error
}

// DefaultRequestTimeout bounds each API call.
const DefaultRequestTimeout = 15 * time.Second

// RestAPIConfig configures the REST credential API client.
type RestAPIConfig struct {
	// BaseURL of the auth backend, e.g. "https://api.example.com".
	BaseURL string

	// RefreshPath is the refresh endpoint path (default: "/auth/refresh").
	RefreshPath string

	// LogoutPath is the logout endpoint path (default: "/auth/logout").
	LogoutPath string

	// Timeout per request (default: 15s).
	Timeout time.Duration
}

// RestAPI talks to the auth backend over HTTPS.
type RestAPI struct {
	config RestAPIConfig
	client *resty.Client
}

// NewRestAPI creates a REST credential API client.
func NewRestAPI(config RestAPIConfig) (*RestAPI, error) {
	if config.BaseURL == "" {
		return nil, errors.New("BaseURL is required")
	}
	if config.RefreshPath == "" {
		config.RefreshPath = "/auth/refresh"
	}
	if config.LogoutPath == "" {
		config.LogoutPath = "/auth/logout"
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultRequestTimeout
	}

	client := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(config.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", version.UserAgent())

	return &RestAPI{
		config: config,
		client: client,
	}, nil
}

// refreshRequest is the refresh endpoint request body.
type refreshRequest struct {
	RefreshSecret string `json:"refresh_token"`
}

// refreshResponse is the refresh endpoint response body.
type refreshResponse struct {
	AccessSecret  string `json:"access_token"`
	RefreshSecret string `json:"refresh_token,omitempty"`
	ExpiresIn     int64  `json:"expires_in"` // seconds
}

// Refresh exchanges a refresh secret for a new grant.
func (a *RestAPI) Refresh(ctx context.Context, refreshSecret string) (Grant, error) {
	var out refreshResponse

	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(refreshRequest{RefreshSecret: refreshSecret}).
		SetResult(&out).
		Post(a.config.RefreshPath)
	if err != nil {
		return Grant{}, sesserr.Transport(fmt.Errorf("refresh request: %w", err))
	}

	if err := classifyStatus(resp.StatusCode(), "refresh"); err != nil {
		return Grant{}, err
	}
	if out.AccessSecret == "" {
		return Grant{}, sesserr.Transport(fmt.Errorf("refresh response missing access token"))
	}

	return Grant{
		AccessSecret:  out.AccessSecret,
		RefreshSecret: out.RefreshSecret,
		ExpiresIn:     time.Duration(out.ExpiresIn) * time.Second,
	}, nil
}

// Logout invalidates the access secret server-side.
func (a *RestAPI) Logout(ctx context.Context, accessSecret string) error {
	resp, err := a.client.R().
		SetContext(ctx).
		SetAuthToken(accessSecret).
		Post(a.config.LogoutPath)
	if err != nil {
		return sesserr.Transport(fmt.Errorf("logout request: %w", err))
	}
	return classifyStatus(resp.StatusCode(), "logout")
}

// classifyStatus maps HTTP status classes onto the error taxonomy.
func classifyStatus(status int, op string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return sesserr.Authorization(fmt.Errorf("%s rejected: status %d", op, status))
	case status >= 400 && status < 500:
		return sesserr.Malformed(fmt.Errorf("%s invalid: status %d", op, status))
	default:
		return sesserr.Transport(fmt.Errorf("%s failed: status %d", op, status))
	}
}

// Compile-time interface satisfaction check.
var _ API = (*RestAPI)(nil)
