package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tbourn/go-media-notify/internal/domain"
	"github.com/tbourn/go-media-notify/internal/services"
)

func TestMe_ReturnsUser(t *testing.T) {
	pref := &stubPreferences{user: &domain.User{ID: "u1", DisplayName: "Neo", DMInstead: true}}
	r := newTestRouter(New(nil, nil, pref, nil))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("X-User-ID", "u1")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	var resp UserResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "u1" || !resp.DMInstead {
		t.Fatalf("unexpected user: %+v", resp)
	}
}

func TestUpdatePreferences_OK(t *testing.T) {
	pref := &stubPreferences{user: &domain.User{ID: "u1", AutoSubscribe: true}}
	r := newTestRouter(New(nil, nil, pref, nil))

	body := []byte(`{"auto_subscribe":true,"dm_instead":false}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/users/me/preferences", bytes.NewReader(body))
	req.Header.Set("X-User-ID", "u1")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestUpdatePreferences_MissingFlagIs400(t *testing.T) {
	r := newTestRouter(New(nil, nil, &stubPreferences{}, nil))

	// dm_instead absent: a PUT must describe the full state.
	body := []byte(`{"auto_subscribe":true}`)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/users/me/preferences", bytes.NewReader(body)))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestUpdatePreferences_UnknownUserIs404(t *testing.T) {
	r := newTestRouter(New(nil, nil, &stubPreferences{err: services.ErrUserNotFound}, nil))

	body := []byte(`{"auto_subscribe":true,"dm_instead":false}`)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/users/me/preferences", bytes.NewReader(body)))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestUpdateOverride_NoContent(t *testing.T) {
	r := newTestRouter(New(nil, nil, &stubPreferences{}, nil))

	body := []byte(`{"enabled":false}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/users/me/overrides/Grabbed", bytes.NewReader(body))
	req.Header.Set("X-User-ID", "u1")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestUpdateOverride_MissingEnabledIs400(t *testing.T) {
	r := newTestRouter(New(nil, nil, &stubPreferences{}, nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/users/me/overrides/Grabbed", bytes.NewReader([]byte(`{}`))))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestUpdateOverride_UnknownEventTypeIs400(t *testing.T) {
	r := newTestRouter(New(nil, nil, &stubPreferences{overrideErr: services.ErrUnknownEventType}, nil))

	body := []byte(`{"enabled":false}`)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/users/me/overrides/Bogus", bytes.NewReader(body)))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestOptOut_NoContent(t *testing.T) {
	pref := &stubPreferences{}
	r := newTestRouter(New(nil, nil, pref, nil))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/users/me", nil)
	req.Header.Set("X-User-ID", "u1")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d (%s)", w.Code, w.Body.String())
	}
	if pref.optedOut != "u1" {
		t.Fatalf("opt-out did not reach the service for u1, got %q", pref.optedOut)
	}
}

func TestOptOut_UnknownUserIs404(t *testing.T) {
	r := newTestRouter(New(nil, nil, &stubPreferences{optOutErr: services.ErrUserNotFound}, nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/users/me", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
