// Package client is a thin REST client for the smtparts API, used by the
// terminal tools. Every mutation invalidates the cached listings of the
// resource it touched.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"smtparts/internal/models"
)

// APIError is a non-2xx response. Message is the server's error text
// verbatim so it can be shown to the user as-is.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }

// Client talks to one smtparts server.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string

	Cache *Cache
}

// New creates a client with a cookie jar, so the session cookie set by
// Login is replayed on every request.
func New(baseURL string, timeout time.Duration) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout, Jar: jar},
		Cache:      NewCache(30 * time.Second),
	}
}

// BaseURL returns the client's base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current session token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type envelope struct {
	Data json.RawMessage `json:"data"`
	Meta *models.Meta    `json:"meta"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

// raw performs a request and returns the body of a 2xx response.
func (c *Client) raw(ctx context.Context, method, path string, body any) ([]byte, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 300 {
		return nil, decodeError(resp.StatusCode, data)
	}
	return data, nil
}

func decodeError(status int, data []byte) *APIError {
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return &APIError{Status: status, Message: body.Error}
	}
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{Status: status, Message: msg}
}

// do performs a request and decodes the envelope's data into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) (*models.Meta, error) {
	data, err := c.raw(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if result != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return env.Meta, nil
}

// get serves GETs from the cache, keyed by path, under resource.
func (c *Client) get(ctx context.Context, resource, path string, result any) (*models.Meta, error) {
	if data, ok := c.Cache.Get(resource, path); ok {
		var env envelope
		if json.Unmarshal(data, &env) == nil && json.Unmarshal(env.Data, result) == nil {
			return env.Meta, nil
		}
	}
	data, err := c.raw(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode GET %s: %w", path, err)
	}
	if err := json.Unmarshal(env.Data, result); err != nil {
		return nil, fmt.Errorf("decode GET %s: %w", path, err)
	}
	c.Cache.Put(resource, path, data)
	return env.Meta, nil
}

// mutate performs a write and invalidates every listed resource, even on
// failure, since a failed write may still have partially applied.
func (c *Client) mutate(ctx context.Context, method, path string, body, result any, resources ...string) error {
	defer c.Cache.Invalidate(resources...)
	_, err := c.do(ctx, method, path, body, result)
	return err
}

// Login authenticates and keeps the session token for later requests.
func (c *Client) Login(ctx context.Context, username, password string) (*models.User, error) {
	var resp struct {
		User  models.User `json:"user"`
		Token string      `json:"token"`
	}
	_, err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{"username": username, "password": password}, &resp)
	if err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	c.Cache.Clear()
	return &resp.User, nil
}

// Logout ends the session.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
	c.SetToken("")
	c.Cache.Clear()
	return err
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var resp struct {
		User models.User `json:"user"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/auth/me", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// query builds "?k=v&..." from non-empty values.
func query(kv ...string) string {
	v := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			v.Set(kv[i], kv[i+1])
		}
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}
