package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/ssharvesh-steep/cracoe-social-media/internal/api/middleware"
	"github.com/ssharvesh-steep/cracoe-social-media/internal/live"
	"github.com/ssharvesh-steep/cracoe-social-media/internal/store"
)

// usernameRegex validates usernames: alphanumeric, dots and underscores, 3-30 chars.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._]{3,30}$`)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db        store.DataStore
	redis     *store.RedisStore // nil when running without Redis
	publisher live.Publisher
	hub       *live.Hub
	auth      *middleware.AuthMiddleware
	logger    zerolog.Logger
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(db store.DataStore, redis *store.RedisStore, publisher live.Publisher, hub *live.Hub, auth *middleware.AuthMiddleware, logger zerolog.Logger) *Handler {
	return &Handler{db: db, redis: redis, publisher: publisher, hub: hub, auth: auth, logger: logger}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// sanitizeName trims and limits a display name to 100 characters, removing
// control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Limit to 100 characters
	if len(name) > 100 {
		name = name[:100]
	}

	return name
}

// isValidUsername validates handle format.
func isValidUsername(username string) bool {
	return usernameRegex.MatchString(username)
}
