// Package cloudsink is the contract and minimal client for the cloud
// telemetry uploader (spec §6's external collaborator): an authenticated
// HTTPS POST no more often than sendInterval, with token expiry observed
// at a 5-minute safety margin. Grounded on the pack's internal/auth JWT
// handling (bittertea97-microgrid-cloud/internal/auth/jwt.go), reused here
// to parse (not verify — the engine is a token holder, not an issuer) the
// expiry claim of tokens minted by the cloud auth server.
package cloudsink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiryMargin is the safety margin spec §6 requires: a token is treated
// as expired this long before its actual expiry.
const ExpiryMargin = 5 * time.Minute

// httpTimeout and authTimeout mirror spec §5's cloud timeouts.
const (
	httpTimeout = 10 * time.Second
	authTimeout = 15 * time.Second
)

// Token wraps a bearer token string with its parsed expiry.
type Token struct {
	Raw       string
	ExpiresAt time.Time
}

// ParseToken extracts the expiry claim from a JWT without verifying its
// signature — the engine trusts the auth server that issued it and only
// needs to know when to ask for a new one.
func ParseToken(raw string) (Token, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return Token{}, fmt.Errorf("cloudsink: parse token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return Token{}, errors.New("cloudsink: token has no expiry")
	}
	return Token{Raw: raw, ExpiresAt: exp.Time}, nil
}

// NeedsRefresh reports whether the token should be renewed now, applying
// the 5-minute safety margin.
func (t Token) NeedsRefresh(now time.Time) bool {
	return t.Raw == "" || !now.Before(t.ExpiresAt.Add(-ExpiryMargin))
}

// Refresher exchanges credentials for a fresh token. Concrete auth flows
// (e-mail/password, custom-token, refresh-token) are external
// collaborators that satisfy this narrow contract, per spec §9's
// cyclic-reference guidance.
type Refresher interface {
	Refresh(ctx context.Context) (Token, error)
}

// StaticTokenRefresher wraps a single pre-issued JWT (e.g. a long-lived
// service token configured by the operator) as a Refresher. It re-parses
// the token's own expiry on every call rather than contacting an auth
// server, since there is no concrete e-mail/password or custom-token
// exchange collaborator in this deployment — an operator rotating the
// configured token is the refresh mechanism.
type StaticTokenRefresher struct {
	Raw string
}

func (s StaticTokenRefresher) Refresh(context.Context) (Token, error) {
	return ParseToken(s.Raw)
}

// Sample is the telemetry payload spec §6 defines.
type Sample struct {
	Temperature       float64 `json:"temperature"`
	TargetTemperature float64 `json:"targetTemperature"`
	PIDOutput         float64 `json:"pidOutput"`
	Status            string  `json:"status"`
	Hostname          string  `json:"hostname"`
	SessionID         int64   `json:"sessionId"`
}

// Client posts samples to the cloud endpoint, refreshing its token as
// needed and rate-limiting sends to sendInterval.
type Client struct {
	endpoint     string
	httpClient   *http.Client
	refresher    Refresher
	sendInterval time.Duration

	mu       sync.Mutex
	token    Token
	lastSend time.Time
}

// New constructs a Client. sendInterval of zero disables rate limiting.
func New(endpoint string, refresher Refresher, sendInterval time.Duration) *Client {
	return &Client{
		endpoint:     endpoint,
		httpClient:   &http.Client{Timeout: httpTimeout},
		refresher:    refresher,
		sendInterval: sendInterval,
	}
}

// Send posts sample if the rate limit allows it, transparently refreshing
// the token first when it is missing or within the safety margin of
// expiry. A rate-limited call is a silent no-op, per spec §7 ("no
// blocking of the control loops").
func (c *Client) Send(ctx context.Context, sample Sample) error {
	c.mu.Lock()
	now := time.Now()
	if !c.lastSend.IsZero() && now.Sub(c.lastSend) < c.sendInterval {
		c.mu.Unlock()
		return nil
	}
	token := c.token
	c.mu.Unlock()

	if token.NeedsRefresh(now) {
		refreshed, err := c.refreshToken(ctx)
		if err != nil {
			return fmt.Errorf("cloudsink: refresh token: %w", err)
		}
		token = refreshed
	}

	body, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("cloudsink: marshal sample: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("cloudsink: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token.Raw)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cloudsink: post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("cloudsink: post: unexpected status %d", resp.StatusCode)
	}

	c.mu.Lock()
	c.lastSend = now
	c.mu.Unlock()
	return nil
}

func (c *Client) refreshToken(ctx context.Context) (Token, error) {
	if c.refresher == nil {
		return Token{}, errors.New("cloudsink: no refresher configured")
	}
	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()
	token, err := c.refresher.Refresh(ctx)
	if err != nil {
		return Token{}, err
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return token, nil
}
