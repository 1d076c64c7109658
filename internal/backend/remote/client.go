// Package remote implements backend.Backend against the directory HTTP API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ceskapp/directory/internal/backend"
	"github.com/ceskapp/directory/internal/domain"
	domainerrors "github.com/ceskapp/directory/internal/errors"
)

const apiPrefix = "/api/v1"

// Client talks to a directory server over HTTP and SSE.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	stream  *http.Client
	logger  *slog.Logger

	reconnectMin time.Duration
	reconnectMax time.Duration

	mu    sync.RWMutex
	token string
}

var _ backend.Backend = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the client used for request/response calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sets the bearer token sent for authenticated viewers.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithReconnectBackoff bounds the delay between change stream reconnect attempts.
func WithReconnectBackoff(minDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.reconnectMin = minDelay
		c.reconnectMax = maxDelay
	}
}

// New creates a client for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q must be http or https", baseURL)
	}

	c := &Client{
		baseURL:      u,
		http:         &http.Client{Timeout: 15 * time.Second},
		stream:       &http.Client{},
		logger:       slog.Default(),
		reconnectMin: 500 * time.Millisecond,
		reconnectMax: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetToken replaces the bearer token. An empty token signs the client out.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User        domain.User `json:"user"`
	AccessToken string      `json:"access_token"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

// Login signs in and keeps the issued token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (*domain.Session, error) {
	var resp authResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, nil, loginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.AccessToken)
	return resp.User.Session(), nil
}

type itemsResponse struct {
	Items []domain.Item `json:"items"`
}

// Query implements backend.Backend.
func (c *Client) Query(ctx context.Context, q backend.Query) ([]domain.Item, error) {
	params := url.Values{}
	setParam(params, "region", q.Region)
	setParam(params, "search", q.Search)
	setParam(params, "category", q.Category)
	setParam(params, "author_id", q.AuthorID)
	if len(q.IDs) > 0 {
		params.Set("ids", strings.Join(q.IDs, ","))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	var resp itemsResponse
	if err := c.do(ctx, http.MethodGet, "/items/"+url.PathEscape(string(q.Resource)), params, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// EngagementState implements backend.Backend.
func (c *Client) EngagementState(ctx context.Context, itemID string, viewer domain.Viewer) (domain.EngagementState, error) {
	var state domain.EngagementState
	err := c.do(ctx, http.MethodGet, "/engagements/"+url.PathEscape(itemID), nil, &viewer, nil, &state)
	return state, err
}

type outcomeResponse struct {
	Outcome string `json:"outcome"`
}

// Upsert implements backend.Backend.
func (c *Client) Upsert(ctx context.Context, e domain.Engagement) (backend.Outcome, error) {
	return c.write(ctx, http.MethodPut, e.Key())
}

// Delete implements backend.Backend.
func (c *Client) Delete(ctx context.Context, key domain.EngagementKey) (backend.Outcome, error) {
	return c.write(ctx, http.MethodDelete, key)
}

func (c *Client) write(ctx context.Context, method string, key domain.EngagementKey) (backend.Outcome, error) {
	path := "/engagements/" + url.PathEscape(key.ItemID) + "/" + url.PathEscape(string(key.Kind))

	var resp outcomeResponse
	if err := c.do(ctx, method, path, nil, &key.Viewer, nil, &resp); err != nil {
		return "", err
	}
	outcome, ok := domain.ParseOutcome(resp.Outcome)
	if !ok {
		return "", domainerrors.Internalf("server returned unknown outcome %q", resp.Outcome)
	}
	return outcome, nil
}

// SessionIdentity implements backend.Backend. Without a token, or when the server
// rejects it, the client is signed out.
func (c *Client) SessionIdentity(ctx context.Context) (*domain.Session, error) {
	if c.Token() == "" {
		return nil, nil
	}
	var session domain.Session
	err := c.do(ctx, http.MethodGet, "/session", nil, nil, nil, &session)
	if errors.Is(err, domainerrors.ErrUnauthorized) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func setParam(params url.Values, key, value string) {
	if value != "" {
		params.Set(key, value)
	}
}

func (c *Client) endpoint(path string, params url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + apiPrefix + path
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return u.String()
}

// authorize sets identity headers. A guest viewer is sent as a guest even when a
// token is held; anything else gets the bearer token when there is one.
func (c *Client) authorize(req *http.Request, viewer *domain.Viewer) {
	if viewer != nil && viewer.IsGuest() {
		req.Header.Set(backend.GuestIDHeader, viewer.ID)
		return
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, viewer *domain.Viewer, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, params), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req, viewer)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return domainerrors.Transient("directory server unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domainerrors.Transient("malformed server response", err)
	}
	return nil
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// decodeError turns a non-2xx response into a domain error, keeping the server's code
// when it sent one.
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var body apiError
	if err := json.Unmarshal(data, &body); err != nil || body.Code == "" {
		code := domainerrors.CodeFromStatus(resp.StatusCode)
		return domainerrors.Wrapf(nil, code, "server responded %s", resp.Status)
	}

	e := domainerrors.Wrap(nil, domainerrors.Code(body.Code), body.Message)
	if body.Details != nil {
		e = e.WithDetails(body.Details)
	}
	return e
}
