package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// authPath is the provider's auth API mount point.
	authPath = "/auth/v1"

	// DefaultTimeout bounds a single provider call. The form shows a busy
	// state for the whole span, so this is kept short.
	DefaultTimeout = 15 * time.Second

	// maxErrorBodySize caps how much of an error response we read.
	maxErrorBodySize = 64 * 1024
)

// Config contains configuration for the HTTP provider client.
type Config struct {
	BaseURL string
	AnonKey string
	Timeout time.Duration
}

// HTTPClient implements Client against a GoTrue-style auth API.
type HTTPClient struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// NewHTTPClient creates a provider client. BaseURL and AnonKey are
// required; Timeout defaults to DefaultTimeout.
func NewHTTPClient(config Config, logger *slog.Logger) (*HTTPClient, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("provider base URL is required")
	}
	if config.AnonKey == "" {
		return nil, fmt.Errorf("provider anon key is required")
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &HTTPClient{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}, nil
}

// authResponse covers both response shapes the provider returns on
// success: a session envelope (token grant, auto-confirmed signup) or a
// bare user record (signup pending email confirmation).
type authResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`

	// Bare user fields, set when the response is the user record itself.
	ID               string `json:"id"`
	Email            string `json:"email"`
	EmailConfirmedAt string `json:"email_confirmed_at"`
}

func (r *authResponse) toResult() *AuthResult {
	if r.AccessToken != "" {
		session := &Session{
			AccessToken:  r.AccessToken,
			TokenType:    r.TokenType,
			ExpiresIn:    r.ExpiresIn,
			RefreshToken: r.RefreshToken,
			User:         r.User,
		}
		return &AuthResult{User: r.User, Session: session}
	}
	if r.ID != "" {
		return &AuthResult{
			User: &User{ID: r.ID, Email: r.Email, EmailConfirmedAt: r.EmailConfirmedAt},
		}
	}
	return &AuthResult{}
}

// SignUp registers a new account with the provider.
func (c *HTTPClient) SignUp(ctx context.Context, email, password, redirectTo string) (*AuthResult, error) {
	endpoint := c.endpoint("/signup", url.Values{"redirect_to": {redirectTo}})
	body := map[string]string{"email": email, "password": password}

	var resp authResponse
	if err := c.post(ctx, endpoint, body, &resp); err != nil {
		return nil, err
	}
	return resp.toResult(), nil
}

// SignInWithPassword exchanges credentials for a session via the password
// grant.
func (c *HTTPClient) SignInWithPassword(ctx context.Context, email, password string) (*AuthResult, error) {
	endpoint := c.endpoint("/token", url.Values{"grant_type": {"password"}})
	body := map[string]string{"email": email, "password": password}

	var resp authResponse
	if err := c.post(ctx, endpoint, body, &resp); err != nil {
		return nil, err
	}
	return resp.toResult(), nil
}

// SignInWithOTP asks the provider to email a one-time sign-in link.
func (c *HTTPClient) SignInWithOTP(ctx context.Context, email, redirectTo string) error {
	endpoint := c.endpoint("/otp", url.Values{"redirect_to": {redirectTo}})
	body := map[string]any{"email": email, "create_user": true}

	return c.post(ctx, endpoint, body, nil)
}

// SignInWithOAuth builds the provider's authorize URL. No request is made;
// the browser navigates to the returned URL and the provider takes over.
func (c *HTTPClient) SignInWithOAuth(ctx context.Context, oauthProvider, redirectTo string) (string, error) {
	if oauthProvider == "" {
		return "", &Error{Message: "oauth provider name is required"}
	}
	query := url.Values{
		"provider":    {oauthProvider},
		"redirect_to": {redirectTo},
	}
	return c.endpoint("/authorize", query), nil
}

// GetSession reconstructs session metadata from an access token. The token
// is issued and signed by the provider; we only read its registered claims
// to reject expired or malformed tokens before calling GetUser.
func (c *HTTPClient) GetSession(ctx context.Context, accessToken string) (*Session, error) {
	if accessToken == "" {
		return nil, &Error{Message: "missing access token"}
	}

	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return nil, &Error{Message: fmt.Sprintf("malformed access token: %v", err), Err: err}
	}

	var expiresIn int64
	if claims.ExpiresAt != nil {
		expiresIn = int64(time.Until(claims.ExpiresAt.Time).Seconds())
		if expiresIn <= 0 {
			return nil, &Error{Message: "session expired"}
		}
	}

	return &Session{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresIn:   expiresIn,
	}, nil
}

// GetUser fetches the account behind an access token.
func (c *HTTPClient) GetUser(ctx context.Context, accessToken string) (*User, error) {
	endpoint := c.endpoint("/user", nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, newTransportError(err)
	}
	c.setHeaders(req)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var user User
	if err := c.do(req, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, &Error{Message: "provider returned no user"}
	}
	return &user, nil
}

func (c *HTTPClient) endpoint(path string, query url.Values) string {
	endpoint := c.config.BaseURL + authPath + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return endpoint
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.config.AnonKey)
	req.Header.Set("Authorization", "Bearer "+c.config.AnonKey)
	req.Header.Set("Content-Type", "application/json")
}

func (c *HTTPClient) post(ctx context.Context, endpoint string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return newTransportError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return newTransportError(err)
	}
	c.setHeaders(req)

	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return newTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.readError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return newTransportError(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// errorBody covers the shapes the provider uses for error payloads across
// endpoints and versions.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (b errorBody) text() string {
	for _, candidate := range []string{b.ErrorDescription, b.Msg, b.Message, b.Error} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

func (c *HTTPClient) readError(resp *http.Response) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		return newStatusError(resp.StatusCode, "")
	}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		if text := body.text(); text != "" {
			return newStatusError(resp.StatusCode, text)
		}
	}

	c.logger.Debug("unparseable provider error body", "status", resp.StatusCode)
	return newStatusError(resp.StatusCode, strings.TrimSpace(string(raw)))
}
