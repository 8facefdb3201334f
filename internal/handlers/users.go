package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GetUser returns a user's public profile projection.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if !isValidUsername(username) {
		h.Error(w, http.StatusBadRequest, "invalid username format")
		return
	}

	user, err := h.db.GetUserByUsername(r.Context(), username)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	h.JSON(w, http.StatusOK, user.Profile())
}
