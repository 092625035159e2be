// Package remote is a client for the hosted auth and REST backend used for
// best-effort sync.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"aqualog/internal/models"

	"github.com/redis/go-redis/v9"
)

// refreshLeeway is how close to expiry a token gets refreshed before use.
const refreshLeeway = 30 * time.Second

// Client talks to the backend's auth (/auth/v1) and table (/rest/v1) APIs.
// It holds at most one session.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration

	mu        sync.RWMutex
	session   *Session
	onSession func(*Session)
}

// NewClient constructs a client for baseURL authenticating with apiKey.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// UseRedisCache configures optional Redis caching for profile reads.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// OnSessionChange registers fn to be called whenever the session is set,
// refreshed or cleared. fn receives nil on sign-out.
func (c *Client) OnSessionChange(fn func(*Session)) {
	c.mu.Lock()
	c.onSession = fn
	c.mu.Unlock()
}

// APIError is a non-2xx backend response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend http %d", e.StatusCode)
	}
	return fmt.Sprintf("backend http %d: %s", e.StatusCode, e.Message)
}

// Unwrap makes rejected credentials match models.ErrAuth.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return models.ErrAuth
	}
	return nil
}

// FetchProfile returns the profile of userID, or ErrNotFound.
func (c *Client) FetchProfile(ctx context.Context, userID string) (*models.RemoteProfile, error) {
	cacheKey := "profile:" + userID
	var cached models.RemoteProfile
	if c.readCache(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	q := url.Values{}
	q.Set("id", "eq."+userID)
	q.Set("select", "*")

	var rows []models.RemoteProfile
	if err := c.authorized(ctx, http.MethodGet, "/rest/v1/profiles?"+q.Encode(), nil, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("profile %s: %w", userID, models.ErrNotFound)
	}

	c.writeCache(ctx, cacheKey, rows[0])
	return &rows[0], nil
}

// UpsertProfile creates or replaces the profile with p.ID.
func (c *Client) UpsertProfile(ctx context.Context, p models.RemoteProfile) error {
	headers := map[string]string{"Prefer": "resolution=merge-duplicates,return=minimal"}
	if err := c.authorized(ctx, http.MethodPost, "/rest/v1/profiles", headers, p, nil); err != nil {
		return err
	}
	c.dropCache(ctx, "profile:"+p.ID)
	return nil
}

// InsertLog stores one hydration record.
func (c *Client) InsertLog(ctx context.Context, log models.RemoteHydrationLog) error {
	headers := map[string]string{"Prefer": "return=minimal"}
	return c.authorized(ctx, http.MethodPost, "/rest/v1/hydration_logs", headers, log, nil)
}

// ListLogs returns every hydration record of userID, oldest first.
func (c *Client) ListLogs(ctx context.Context, userID string) ([]models.RemoteHydrationLog, error) {
	q := url.Values{}
	q.Set("user_id", "eq."+userID)
	q.Set("select", "*")
	q.Set("order", "timestamp_ms.asc")

	var logs []models.RemoteHydrationLog
	if err := c.authorized(ctx, http.MethodGet, "/rest/v1/hydration_logs?"+q.Encode(), nil, nil, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// HealthCheck checks if the auth API is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/health", http.NoBody)
	if err != nil {
		return err
	}
	c.addHeaders(req, "")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}

// authorized sends a request on behalf of the signed-in user, refreshing the
// access token first when it is about to expire.
func (c *Client) authorized(ctx context.Context, method, path string, headers map[string]string, body, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	return c.send(ctx, method, path, token, headers, body, out)
}

func (c *Client) send(ctx context.Context, method, path, token string, headers map[string]string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	c.addHeaders(req, token)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) addHeaders(req *http.Request, token string) {
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if token == "" {
		token = c.apiKey
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// errorMessage extracts the human-readable message from an error body. Auth
// and table APIs use different field names.
func errorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Error            string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	for _, m := range []string{payload.ErrorDescription, payload.Msg, payload.Message, payload.Error} {
		if m != "" {
			return m
		}
	}
	return ""
}

// BackendMessage returns the backend-provided message carried by err, if any.
func BackendMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(val), out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) dropCache(ctx context.Context, key string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, key).Err()
}
