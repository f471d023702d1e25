// User preference HTTP handlers.
//
// This file exposes the endpoints a chat user manages their delivery
// settings through:
//   - GET  /users/me                      (fetch or lazily create the record)
//   - PUT  /users/me/preferences          (auto-subscribe / DM flags)
//   - PUT  /users/me/overrides/{event}    (per-event-type mute/unmute)
//   - DELETE /users/me                     (full opt-out)
//   - DELETE /users/me/subscriptions/{ref} (unsubscribe from one item)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-media-notify/internal/domain"
	"github.com/tbourn/go-media-notify/internal/services"
)

// UserResponse is the JSON shape of a user record.
type UserResponse struct {
	ID            string `json:"id"`
	DisplayName   string `json:"display_name,omitempty"`
	AutoSubscribe bool   `json:"auto_subscribe"`
	DMInstead     bool   `json:"dm_instead"`
}

func toUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:            u.ID,
		DisplayName:   u.DisplayName,
		AutoSubscribe: u.AutoSubscribe,
		DMInstead:     u.DMInstead,
	}
}

// Me returns the calling user's record, creating it with defaults on first
// contact. The optional X-Display-Name header refreshes the stored name.
func (h *Handlers) Me(c *gin.Context) {
	u, err := h.prefSvc.EnsureUser(c.Request.Context(), userID(c), c.GetHeader("X-Display-Name"))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, toUserResponse(u))
}

// UpdatePreferencesRequest is the JSON payload for PUT /users/me/preferences.
// Both flags are required so a PUT always describes the full desired state.
type UpdatePreferencesRequest struct {
	AutoSubscribe *bool `json:"auto_subscribe" binding:"required"`
	DMInstead     *bool `json:"dm_instead"     binding:"required"`
}

// UpdatePreferences replaces the caller's delivery preference flags.
func (h *Handlers) UpdatePreferences(c *gin.Context) {
	var req UpdatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "auto_subscribe and dm_instead are required")
		return
	}

	u, err := h.prefSvc.SetPreferences(c.Request.Context(), userID(c), *req.AutoSubscribe, *req.DMInstead)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, toUserResponse(u))
}

// UpdateOverrideRequest is the JSON payload for PUT /users/me/overrides/{event}.
type UpdateOverrideRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// UpdateOverride sets a per-event-type notification override for the caller.
// The path parameter is an event type name, normalized ("Grabbed",
// "Download") or a backend's raw spelling ("Grab", "MovieAdded").
func (h *Handlers) UpdateOverride(c *gin.Context) {
	var req UpdateOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "enabled is required")
		return
	}

	event := c.Param("event")
	if err := h.prefSvc.SetOverride(c.Request.Context(), userID(c), event, *req.Enabled); err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
		case errors.Is(err, services.ErrUnknownEventType):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown event type")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	noContent(c)
}

// OptOut deletes the caller's record along with all their subscriptions and
// stops all future notifications. A later interaction re-creates the user
// with defaults.
func (h *Handlers) OptOut(c *gin.Context) {
	if err := h.prefSvc.OptOut(c.Request.Context(), userID(c)); err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	noContent(c)
}

// Unsubscribe removes the caller's subscription for one media item,
// identified by its backend reference path parameter.
func (h *Handlers) Unsubscribe(c *gin.Context) {
	ref := c.Param("ref")
	if err := h.prefSvc.Unsubscribe(c.Request.Context(), userID(c), ref); err != nil {
		switch {
		case errors.Is(err, services.ErrItemNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "media item not found")
		case errors.Is(err, services.ErrNotSubscribed):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "not subscribed")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	noContent(c)
}
