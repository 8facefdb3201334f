package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ssharvesh-steep/cracoe-social-media/internal/api/middleware"
	"github.com/ssharvesh-steep/cracoe-social-media/internal/live"
	"github.com/ssharvesh-steep/cracoe-social-media/internal/metrics"
	"github.com/ssharvesh-steep/cracoe-social-media/internal/models"
)

// ResolveConversationRequest represents the resolve request body.
type ResolveConversationRequest struct {
	OtherUserID string `json:"other_user_id"`
}

// ResolveConversationResponse represents the resolve response.
type ResolveConversationResponse struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
}

// ResolveConversation finds or creates the conversation between the caller
// and the given user (authenticated).
func (h *Handler) ResolveConversation(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetUserFromContext(r.Context())
	if caller == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req ResolveConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	otherID, err := uuid.Parse(req.OtherUserID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid other_user_id format")
		return
	}
	if otherID == caller.ID {
		h.Error(w, http.StatusBadRequest, "cannot open a conversation with yourself")
		return
	}

	other, err := h.db.GetUserByID(r.Context(), otherID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if other == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	conv, created, err := h.db.ResolveConversation(r.Context(), caller.ID, otherID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to resolve conversation")
		return
	}

	if created {
		metrics.ConversationsResolved.WithLabelValues("created").Inc()
		h.publishConversationChange(r.Context(), conv, live.EventInsert)
	} else {
		metrics.ConversationsResolved.WithLabelValues("found").Inc()
	}

	h.JSON(w, http.StatusOK, ResolveConversationResponse{
		ID:      conv.ID.String(),
		Created: created,
	})
}

// ConversationListResponse represents the conversation list response.
type ConversationListResponse struct {
	Conversations []models.Conversation `json:"conversations"`
}

// ListConversations returns the caller's conversations, most recent last
// message first (authenticated).
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetUserFromContext(r.Context())
	if caller == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	convs, err := h.db.ListConversations(r.Context(), caller.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch conversations")
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}

	h.JSON(w, http.StatusOK, ConversationListResponse{Conversations: convs})
}

// publishConversationChange notifies both participants' conversation-list
// channels. Events are wake-up signals; subscribers re-fetch their list.
func (h *Handler) publishConversationChange(ctx context.Context, conv *models.Conversation, eventType string) {
	metrics.LiveEventsPublished.WithLabelValues("conversations").Inc()
	for _, userID := range []uuid.UUID{conv.Participant1ID, conv.Participant2ID} {
		ev := live.Event{
			Channel:   live.ConversationChannel(userID),
			Table:     "conversations",
			Type:      eventType,
			RowID:     conv.ID.String(),
			Timestamp: time.Now().UnixMilli(),
		}
		if err := h.publisher.Publish(ctx, ev); err != nil {
			h.logger.Warn().Err(err).Str("channel", ev.Channel).Msg("failed to publish conversation event")
		}
	}
}
