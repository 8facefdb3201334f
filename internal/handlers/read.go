package handlers

import (
	"net/http"
	"time"

	"github.com/ssharvesh-steep/cracoe-social-media/internal/api/middleware"
	"github.com/ssharvesh-steep/cracoe-social-media/internal/metrics"
)

// MarkReadResponse represents the mark-read response.
type MarkReadResponse struct {
	Marked int64 `json:"marked"`
}

// MarkRead transitions every unread message in the conversation that was not
// sent by the caller to read (authenticated, participants only). Idempotent:
// a second call with nothing left to mark reports zero.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetUserFromContext(r.Context())
	if caller == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conv := h.conversationForParticipant(w, r, caller)
	if conv == nil {
		return
	}

	marked, err := h.db.MarkMessagesRead(r.Context(), conv.ID, caller.ID, time.Now().UTC())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to mark messages read")
		return
	}

	if marked > 0 {
		metrics.MessagesMarkedRead.Add(float64(marked))
	}

	h.JSON(w, http.StatusOK, MarkReadResponse{Marked: marked})
}
