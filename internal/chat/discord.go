// Package chat – Discord REST implementation of the Messenger interface.
//
// The client talks to the Discord-style HTTP API directly (bot token auth):
// DMs require resolving the user's DM channel first, then posting to it like
// any other channel. All outbound calls share one token-bucket budget so a
// notification burst cannot trip the gateway's global limit.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DiscordClient implements Messenger against the Discord REST API.
// Construct with NewDiscordClient; the zero value is not usable.
type DiscordClient struct {
	base    string
	token   string
	appID   string
	http    *http.Client
	limiter *rate.Limiter

	// dmChannels caches user id -> DM channel id so repeat notifications
	// skip the create-DM round trip.
	mu         sync.Mutex
	dmChannels map[string]string
}

// DiscordOptions configures a DiscordClient.
type DiscordOptions struct {
	// APIBase is the REST base URL (e.g. "https://discord.com/api/v10").
	APIBase string
	// Token is the bot token (sent as "Bot <token>").
	Token string
	// ApplicationID is required for slash-command registration.
	ApplicationID string
	// SendRPS and SendBurst bound outbound message calls.
	SendRPS   float64
	SendBurst int
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration
}

// NewDiscordClient returns a ready-to-use client with the given options.
// Zero-valued limits fall back to 5 rps / burst 5 and a 10s timeout.
func NewDiscordClient(opts DiscordOptions) *DiscordClient {
	if opts.SendRPS <= 0 {
		opts.SendRPS = 5
	}
	if opts.SendBurst <= 0 {
		opts.SendBurst = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &DiscordClient{
		base:       opts.APIBase,
		token:      opts.Token,
		appID:      opts.ApplicationID,
		http:       &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.SendRPS), opts.SendBurst),
		dmChannels: make(map[string]string),
	}
}

// SendDM resolves (and caches) the user's DM channel, then posts content
// to it. A user who blocked DMs surfaces as ErrRecipientUnavailable.
func (c *DiscordClient) SendDM(ctx context.Context, userID, content string) error {
	ch, err := c.dmChannel(ctx, userID)
	if err != nil {
		return err
	}
	return c.SendChannel(ctx, ch, content)
}

// SendChannel posts content to a channel. Gateway 429 responses map to
// *RateLimitedError; 403 (missing access / blocked) maps to
// ErrRecipientUnavailable.
func (c *DiscordClient) SendChannel(ctx context.Context, channelID, content string) error {
	body := map[string]string{"content": content}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/channels/%s/messages", channelID), body, nil)
}

// RegisterCommand registers a global application command.
func (c *DiscordClient) RegisterCommand(ctx context.Context, spec CommandSpec) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/applications/%s/commands", c.appID), spec, nil)
}

// dmChannel returns the DM channel id for a user, creating it on first use.
func (c *DiscordClient) dmChannel(ctx context.Context, userID string) (string, error) {
	c.mu.Lock()
	if ch, ok := c.dmChannels[userID]; ok {
		c.mu.Unlock()
		return ch, nil
	}
	c.mu.Unlock()

	var resp struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/users/@me/channels", map[string]string{"recipient_id": userID}, &resp)
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("create dm channel for %s: empty channel id", userID)
	}

	c.mu.Lock()
	c.dmChannels[userID] = resp.ID
	c.mu.Unlock()
	return resp.ID, nil
}

// do executes one authenticated JSON call against the gateway, blocking on
// the shared rate budget first. Non-2xx statuses map onto the package error
// taxonomy so the dispatcher's retry policy can branch on them.
func (c *DiscordClient) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var rdr io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitedError{RetryAfter: parseRetryAfter(resp)}
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %d: %w", method, path, resp.StatusCode, ErrRecipientUnavailable)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// parseRetryAfter reads the Retry-After header (seconds, possibly
// fractional) from a 429 response.
func parseRetryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return 0
}
