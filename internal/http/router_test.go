package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-media-notify/internal/arr"
	"github.com/tbourn/go-media-notify/internal/config"
	"github.com/tbourn/go-media-notify/internal/domain"
	"github.com/tbourn/go-media-notify/internal/notify"
)

// --- tiny fakes satisfying the handler interfaces ---

type fakeIngestor struct{ outcome notify.Outcome }

func (f fakeIngestor) Ingest(context.Context, string, []byte) (notify.Outcome, error) {
	return f.outcome, nil
}

type fakeRequester struct{}

func (fakeRequester) Search(context.Context, string, string) ([]arr.Candidate, error) {
	return nil, nil
}
func (fakeRequester) Select(context.Context, string, arr.Candidate) (*domain.Subscription, error) {
	return &domain.Subscription{ID: "sub-1"}, nil
}

type fakePreferences struct{}

func (fakePreferences) EnsureUser(context.Context, string, string) (*domain.User, error) {
	return &domain.User{ID: "u1"}, nil
}
func (fakePreferences) SetPreferences(context.Context, string, bool, bool) (*domain.User, error) {
	return &domain.User{ID: "u1"}, nil
}
func (fakePreferences) SetOverride(context.Context, string, string, bool) error { return nil }
func (fakePreferences) OptOut(context.Context, string) error                    { return nil }
func (fakePreferences) Unsubscribe(context.Context, string, string) error       { return nil }

type fakeCatalog struct{}

func (fakeCatalog) ListPage(context.Context, int, int) ([]domain.MediaItem, int64, error) {
	return nil, 0, nil
}

func testDeps() Deps {
	return Deps{
		Ingest:  fakeIngestor{outcome: notify.OutcomeAccepted},
		ReqSvc:  fakeRequester{},
		PrefSvc: fakePreferences{},
		Catalog: fakeCatalog{},
	}
}

func TestRegisterRoutes_HealthMetricsFallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     100,
		RateBurst:   10,
		CORS:        config.CORSConfig{AllowedOrigins: nil}, // AllowAllOrigins branch
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
	}
	RegisterRoutes(r, testDeps(), cfg)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/health", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_WebhookBypassesRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     0.0001, // the API group exhausts after one request
		RateBurst:   1,
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
	}
	RegisterRoutes(r, testDeps(), cfg)

	// Backends may deliver bursts; every webhook must get through.
	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook/radarr", strings.NewReader(`{}`))
		req.RemoteAddr = "203.0.113.7:4000"
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("webhook %d throttled: %d", i, w.Code)
		}
	}

	// The API group is rate limited with the same client identity.
	var last int
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/media", nil)
		req.RemoteAddr = "203.0.113.7:4000"
		r.ServeHTTP(w, req)
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("API group should throttle, got %d", last)
	}
}

func TestRegisterRoutes_CORSWithOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     50,
		RateBurst:   5,
		CORS:        config.CORSConfig{AllowedOrigins: []string{"http://example.com"}},
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
	}
	RegisterRoutes(r, testDeps(), cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected origin echo, got %q", got)
	}
}

func TestGroupWithPrefix_RootVariants(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, prefix := range []string{"", "/"} {
		r := gin.New()
		g := groupWithPrefix(r, prefix)
		g.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("prefix %q: /ping = %d", prefix, w.Code)
		}
	}
}
