// Package identity delegates credential checks to the external identity
// provider and normalises its answer into a token or a typed failure.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"segportal/internal/pkg/apperr"
	"segportal/internal/pkg/logger"
)

// maxBodyLog bounds how much of a provider response ends up in the logs.
const maxBodyLog = 2048

type AuthResult struct {
	Token string
}

type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*AuthResult, error)
}

type Config struct {
	BaseURL    string
	LoginPath  string
	TokenField string
	Timeout    time.Duration
}

type Client struct {
	log        *logger.Logger
	baseURL    string
	loginPath  string
	tokenField string
	httpClient *http.Client
}

var _ Authenticator = (*Client)(nil)

func NewClient(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("identity base url required")
	}
	loginPath := cfg.LoginPath
	if loginPath == "" {
		loginPath = "/api/auth/login"
	}
	if !strings.HasPrefix(loginPath, "/") {
		loginPath = "/" + loginPath
	}
	tokenField := cfg.TokenField
	if tokenField == "" {
		tokenField = "key"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		log:        log.With("service", "IdentityClient"),
		baseURL:    baseURL,
		loginPath:  loginPath,
		tokenField: tokenField,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Authenticate makes exactly one provider call. Retrying is left to the caller.
func (c *Client) Authenticate(ctx context.Context, username, password string) (*AuthResult, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, apperr.Validation("username and password are required")
	}

	body, err := json.Marshal(loginRequest{Username: username, Password: password})
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrTransport, "failed to encode login request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.loginPath, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrTransport, "failed to build login request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.log.Debug("sending authentication request", "username", username)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("identity provider unreachable", "username", username, "error", err.Error())
		return nil, apperr.Wrap(apperr.ErrTransport, "identity provider unreachable", err)
	}
	raw, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrTransport, "failed to read identity provider response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Info("identity provider rejected credentials",
			"username", username,
			"status", resp.StatusCode,
			"body", truncate(string(raw), maxBodyLog),
		)
		return nil, apperr.New(apperr.ErrAuthentication, "invalid credentials")
	}

	token, err := c.extractToken(raw)
	if err != nil {
		c.log.Error("identity provider response violates contract",
			"username", username,
			"status", resp.StatusCode,
			"body", truncate(string(raw), maxBodyLog),
			"error", err.Error(),
		)
		return nil, err
	}
	return &AuthResult{Token: token}, nil
}

func (c *Client) extractToken(raw []byte) (string, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", apperr.Wrap(apperr.ErrProtocol, "identity provider returned malformed JSON", err)
	}
	for _, field := range []string{c.tokenField, "token"} {
		if v, ok := payload[field].(string); ok && strings.TrimSpace(v) != "" {
			return v, nil
		}
	}
	return "", apperr.New(apperr.ErrProtocol, fmt.Sprintf("identity provider response has no %q field", c.tokenField))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
