// Package chat defines the chat-delivery abstraction the dispatcher sends
// through, together with the error taxonomy the retry policy reacts to, and
// provides a REST implementation for a Discord-style gateway.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Messenger is the delivery boundary between the notification engine and
// the chat gateway. Implementations must be safe for concurrent use and
// honor the provided context for cancellation and timeouts.
type Messenger interface {
	// SendDM delivers content to a user's direct-message channel.
	SendDM(ctx context.Context, userID, content string) error

	// SendChannel delivers content to a shared channel.
	SendChannel(ctx context.Context, channelID, content string) error

	// RegisterCommand registers a slash command with the gateway so users
	// can reach the request workflow from chat.
	RegisterCommand(ctx context.Context, spec CommandSpec) error
}

// CommandSpec describes a slash command to register with the gateway.
type CommandSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrRecipientUnavailable is the permanent-failure sentinel: the recipient
// cannot be reached at all (blocked DMs, deleted account, unknown channel).
// The dispatcher drops such intents immediately and does not retry.
var ErrRecipientUnavailable = errors.New("recipient unavailable")

// RateLimitedError is the distinguishable rate-limit condition raised by
// the gateway. It is transient; RetryAfter carries the gateway's suggested
// wait when it provided one.
type RateLimitedError struct {
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
	}
	return "rate limited"
}

// IsPermanent reports whether err is a permanent delivery failure: the
// intent is undeliverable and retrying cannot help.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrRecipientUnavailable)
}

// RetryAfter extracts the gateway-suggested wait from a rate-limit error,
// or zero when err carries no such hint.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}
