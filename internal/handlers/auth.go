package handlers

import (
	"encoding/json"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/ssharvesh-steep/cracoe-social-media/internal/api/middleware"
	"github.com/ssharvesh-steep/cracoe-social-media/internal/metrics"
	"github.com/ssharvesh-steep/cracoe-social-media/internal/models"
)

// SignupRequest represents the signup request body.
type SignupRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url"`
}

// AuthResponse represents a successful signup or login.
type AuthResponse struct {
	Token string         `json:"token"`
	User  models.Profile `json:"user"`
}

// Signup handles account creation.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if !isValidUsername(req.Username) {
		h.Error(w, http.StatusBadRequest, "username must be 3-30 characters, alphanumeric with dots and underscores only")
		return
	}
	if len(req.Password) < 8 {
		h.Error(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	existing, err := h.db.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if existing != nil {
		h.Error(w, http.StatusConflict, "username already taken")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user, err := h.db.CreateUser(r.Context(), req.Username, sanitizeName(req.FullName), req.AvatarURL, string(hash))
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	token, err := h.auth.IssueToken(user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	metrics.UsersRegistered.Inc()

	h.JSON(w, http.StatusCreated, AuthResponse{Token: token, User: user.Profile()})
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles credential verification and token issuance.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := h.db.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		h.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.auth.IssueToken(user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	h.JSON(w, http.StatusOK, AuthResponse{Token: token, User: user.Profile()})
}

// Me returns the authenticated caller's identity.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	h.JSON(w, http.StatusOK, user.Profile())
}
