package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newDiscord(base string) *DiscordClient {
	return NewDiscordClient(DiscordOptions{
		APIBase:       base,
		Token:         "tok",
		ApplicationID: "app-1",
		SendRPS:       1000,
		SendBurst:     1000,
	})
}

func TestDiscord_SendChannel(t *testing.T) {
	var gotAuth, gotContent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/channels/chan-1/messages" {
			t.Fatalf("unexpected call %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotContent = body["content"]
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newDiscord(srv.URL)
	if err := c.SendChannel(context.Background(), "chan-1", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAuth != "Bot tok" {
		t.Fatalf("bad auth header %q", gotAuth)
	}
	if gotContent != "hello" {
		t.Fatalf("content not forwarded: %q", gotContent)
	}
}

func TestDiscord_SendDMResolvesAndCachesChannel(t *testing.T) {
	var creates, posts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/users/@me/channels":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["recipient_id"] != "user-1" {
				t.Fatalf("wrong recipient %q", body["recipient_id"])
			}
			creates.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "dm-77"})
		case r.Method == http.MethodPost && r.URL.Path == "/channels/dm-77/messages":
			posts.Add(1)
			w.WriteHeader(http.StatusOK)
		default:
			t.Fatalf("unexpected call %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := newDiscord(srv.URL)
	for i := 0; i < 3; i++ {
		if err := c.SendDM(context.Background(), "user-1", "ping"); err != nil {
			t.Fatalf("send dm %d: %v", i, err)
		}
	}
	if creates.Load() != 1 {
		t.Fatalf("dm channel must be created once, got %d", creates.Load())
	}
	if posts.Load() != 3 {
		t.Fatalf("expected 3 message posts, got %d", posts.Load())
	}
}

func TestDiscord_RateLimitedSurfacesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "1.5")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newDiscord(srv.URL)
	err := c.SendChannel(context.Background(), "chan-1", "x")
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected *RateLimitedError, got %v", err)
	}
	if rl.RetryAfter != 1500*time.Millisecond {
		t.Fatalf("retry-after not parsed: %v", rl.RetryAfter)
	}
}

func TestDiscord_BlockedRecipient(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusNotFound} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))
		c := newDiscord(srv.URL)
		if err := c.SendDM(context.Background(), "user-1", "x"); !errors.Is(err, ErrRecipientUnavailable) {
			t.Fatalf("status %d: expected ErrRecipientUnavailable, got %v", status, err)
		}
		srv.Close()
	}
}

func TestDiscord_RegisterCommand(t *testing.T) {
	var gotPath string
	var gotSpec CommandSpec
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotSpec)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := newDiscord(srv.URL)
	spec := CommandSpec{Name: "request", Description: "search and request media"}
	if err := c.RegisterCommand(context.Background(), spec); err != nil {
		t.Fatalf("register: %v", err)
	}
	if gotPath != "/applications/app-1/commands" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotSpec.Name != "request" {
		t.Fatalf("spec not forwarded: %+v", gotSpec)
	}
}
