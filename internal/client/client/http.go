package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/aivedhaguard/internal/client/models"
	"github.com/google/uuid"
)

const maxErrorBody = 4 << 10

type HTTPClient struct {
	baseURL string
	hc      *http.Client

	mu        sync.RWMutex
	authToken string
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient returns a client for the API rooted at baseURL. A nil hc
// uses a client with a 30 second overall timeout.
func NewHTTPClient(baseURL string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), hc: hc}
}

func (c *HTTPClient) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

func (c *HTTPClient) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

type authResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Error   string      `json:"error"`
	User    models.User `json:"user"`
	Token   string      `json:"token"`
}

func (c *HTTPClient) EmailLogin(ctx context.Context, email, password string) (*AuthResult, error) {
	return c.signIn(ctx, "/api/auth/login", map[string]string{"email": email, "password": password})
}

func (c *HTTPClient) GoogleLogin(ctx context.Context, credential string) (*AuthResult, error) {
	return c.signIn(ctx, "/api/auth/google", map[string]string{"credential": credential})
}

func (c *HTTPClient) GitHubLogin(ctx context.Context, code, redirectURI string) (*AuthResult, error) {
	return c.signIn(ctx, "/api/auth/github", map[string]string{"code": code, "redirectUri": redirectURI})
}

func (c *HTTPClient) signIn(ctx context.Context, path string, body any) (*AuthResult, error) {
	var resp authResponse
	if err := c.do(ctx, http.MethodPost, path, nil, "", body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.Token == "" {
		return nil, rejected(resp.Message, resp.Error)
	}
	if strings.TrimSpace(resp.User.Email) == "" {
		return nil, fmt.Errorf("%w: response carries no user email", ErrRejected)
	}
	return &AuthResult{User: resp.User, Token: resp.Token}, nil
}

// CurrentSubscription fetches the subscription snapshot for userID. The
// request is cache-busted and marked no-store so intermediaries never answer
// from cache.
func (c *HTTPClient) CurrentSubscription(ctx context.Context, userID string) (*SubscriptionPayload, error) {
	q := url.Values{}
	q.Set("userId", userID)
	q.Set("_t", uuid.NewString())

	var resp struct {
		Subscription *SubscriptionPayload `json:"subscription"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/subscription/current", q, c.bearer(), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Subscription == nil {
		return nil, fmt.Errorf("%w: response carries no subscription", ErrRejected)
	}
	return resp.Subscription, nil
}

func (c *HTTPClient) ActivateSubscription(ctx context.Context, subscriptionID, userID string) error {
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	body := map[string]string{"subscriptionId": subscriptionID, "userId": userID}
	if err := c.do(ctx, http.MethodPost, "/api/subscription/activate", nil, c.bearer(), body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return rejected(resp.Message, resp.Error)
	}
	return nil
}

func (c *HTTPClient) StartAudit(ctx context.Context, req AuditRequest) (*AuditStarted, error) {
	var resp struct {
		AuditStarted
		Success bool   `json:"success"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/audit/start", nil, c.bearer(), req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, rejected(resp.Message, resp.Error)
	}
	return &resp.AuditStarted, nil
}

// AdminVerify confirms token server-side. An answer other than
// success && valid is ErrUnauthorized.
func (c *HTTPClient) AdminVerify(ctx context.Context, token string) (*models.AdminUser, error) {
	var resp struct {
		Success bool              `json:"success"`
		Valid   bool              `json:"valid"`
		User    *models.AdminUser `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/admin/auth/verify", nil, token, struct{}{}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || !resp.Valid || resp.User == nil {
		return nil, ErrUnauthorized
	}
	return resp.User, nil
}

func (c *HTTPClient) AdminLogin(ctx context.Context, email, password string) (*AdminSession, error) {
	var resp struct {
		Success   bool             `json:"success"`
		Message   string           `json:"message"`
		Error     string           `json:"error"`
		Token     string           `json:"token"`
		User      models.AdminUser `json:"user"`
		ExpiresIn int64            `json:"expires_in"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/admin/auth/login", nil, "", body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.Token == "" {
		return nil, rejected(resp.Message, resp.Error)
	}
	return &AdminSession{Token: resp.Token, User: resp.User, ExpiresIn: resp.ExpiresIn}, nil
}

func (c *HTTPClient) AdminLogout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/admin/auth/logout", nil, token, struct{}{}, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, q url.Values, token string, body, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return c.mapError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return c.mapStatus(resp.StatusCode, msg)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// mapError maps transport failures, including deadlines and cancellation,
// to ErrUnavailable while keeping the cause in the chain.
func (c *HTTPClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func (c *HTTPClient) mapStatus(code int, body []byte) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return ErrUnavailable
	default:
		return &StatusError{Code: code, Message: errorMessage(body)}
	}
}

func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil {
		if m := firstNonEmpty(e.Message, e.Error); m != "" {
			return m
		}
	}
	return strings.TrimSpace(string(body))
}

func rejected(message, errText string) error {
	if m := firstNonEmpty(message, errText); m != "" {
		return fmt.Errorf("%w: %s", ErrRejected, m)
	}
	return ErrRejected
}
