package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the mangrovewatch HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// SubmitReport scores a damage report and returns what it earned.
func (c *Client) SubmitReport(ctx context.Context, r Report) (SubmitResult, error) {
	if strings.TrimSpace(string(r.UserID)) == "" {
		return SubmitResult{}, ErrEmptyUserID
	}
	var res SubmitResult
	err := c.do(ctx, http.MethodPost, "/reports", nil, r, &res)
	return res, err
}

// ChangeReportStatus moves a report through triage.
func (c *Client) ChangeReportStatus(ctx context.Context, userID, reportID, from, to string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrEmptyUserID
	}
	body := map[string]string{"user_id": userID, "from": from, "to": to}
	return c.do(ctx, http.MethodPost, "/reports/"+url.PathEscape(reportID)+"/status", nil, body, nil)
}

// GetUser fetches the current gamification state for a user.
func (c *Client) GetUser(ctx context.Context, userID string) (UserState, error) {
	if strings.TrimSpace(userID) == "" {
		return UserState{}, ErrEmptyUserID
	}
	var st UserState
	err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), nil, nil, &st)
	return st, err
}

// Progress fetches the profile view: level progress, rank and achievements.
func (c *Client) Progress(ctx context.Context, userID string) (Progress, error) {
	if strings.TrimSpace(userID) == "" {
		return Progress{}, ErrEmptyUserID
	}
	var p Progress
	err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID)+"/progress", nil, nil, &p)
	return p, err
}

// AdjustPoints applies an administrative correction and returns the new state.
func (c *Client) AdjustPoints(ctx context.Context, userID string, delta int64, reason string) (UserState, error) {
	if strings.TrimSpace(userID) == "" {
		return UserState{}, ErrEmptyUserID
	}
	q := url.Values{}
	q.Set("delta", strconv.FormatInt(delta, 10))
	if reason != "" {
		q.Set("reason", reason)
	}
	var st UserState
	err := c.do(ctx, http.MethodPost, "/users/"+url.PathEscape(userID)+"/points", q, nil, &st)
	return st, err
}

// DeleteUser removes a user's gamification state.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrEmptyUserID
	}
	return c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(userID), nil, nil, nil)
}

// Leaderboard returns the top limit standings of the latest snapshot.
// A limit of zero uses the server default.
func (c *Client) Leaderboard(ctx context.Context, limit int) (Leaderboard, error) {
	return c.leaderboard(ctx, "", limit)
}

// RegionalLeaderboard ranks users who reported from region.
func (c *Client) RegionalLeaderboard(ctx context.Context, region string, limit int) (Leaderboard, error) {
	if strings.TrimSpace(region) == "" {
		return Leaderboard{}, errors.New("region is required")
	}
	return c.leaderboard(ctx, region, limit)
}

func (c *Client) leaderboard(ctx context.Context, region string, limit int) (Leaderboard, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if region != "" {
		q.Set("region", region)
	}
	var lb Leaderboard
	err := c.do(ctx, http.MethodGet, "/leaderboard", q, nil, &lb)
	return lb, err
}

// RefreshLeaderboard asks the server to recompute ranks and badges now.
func (c *Client) RefreshLeaderboard(ctx context.Context) (Leaderboard, error) {
	var lb Leaderboard
	err := c.do(ctx, http.MethodPost, "/leaderboard/refresh", nil, nil, &lb)
	return lb, err
}

// Achievements lists the achievement catalog.
func (c *Client) Achievements(ctx context.Context) ([]AchievementDefinition, error) {
	var defs []AchievementDefinition
	err := c.do(ctx, http.MethodGet, "/achievements", nil, nil, &defs)
	return defs, err
}

// Levels lists the level thresholds.
func (c *Client) Levels(ctx context.Context) ([]LevelTier, error) {
	var tiers []LevelTier
	err := c.do(ctx, http.MethodGet, "/levels", nil, nil, &tiers)
	return tiers, err
}

// Stats fetches the community headline numbers.
func (c *Client) Stats(ctx context.Context) (CommunityStats, error) {
	var s CommunityStats
	err := c.do(ctx, http.MethodGet, "/stats", nil, nil, &s)
	return s, err
}

// Health probes /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return HealthStatus{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HealthStatus{}, err
	}
	defer resp.Body.Close()

	// an unhealthy server still describes its checks
	var hs HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		return HealthStatus{}, err
	}
	return hs, nil
}

// SubscribeEvents connects to the WebSocket stream and emits events. A
// non-empty userID narrows the stream to that user plus community events.
// The returned channel closes when ctx is done or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context, userID string) (<-chan Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	target := c.wsURL
	if userID != "" {
		target += "?user=" + url.QueryEscape(userID)
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, target, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan Event, 32)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		defer close(done)
		for {
			var evt Event
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			default:
				// drop if consumer is slow
			}
		}
	}()
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	target := c.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	var payload *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(b)
	} else {
		payload = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, out)
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
