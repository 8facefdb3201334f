package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/ssharvesh-steep/cracoe-social-media/internal/api/middleware"
	"github.com/ssharvesh-steep/cracoe-social-media/internal/live"
	"github.com/ssharvesh-steep/cracoe-social-media/internal/metrics"
	"github.com/ssharvesh-steep/cracoe-social-media/internal/models"
)

const maxMessageBytes = 4096

// MessageListResponse represents the message list response.
type MessageListResponse struct {
	Messages []models.Message `json:"messages"`
}

// conversationForParticipant loads the conversation and verifies the caller
// is one of its two participants. Writes the error response itself and
// returns nil when the caller should not proceed.
func (h *Handler) conversationForParticipant(w http.ResponseWriter, r *http.Request, caller *models.User) *models.Conversation {
	convID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid conversation ID format")
		return nil
	}

	conv, err := h.db.GetConversation(r.Context(), convID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return nil
	}
	if conv == nil {
		h.Error(w, http.StatusNotFound, "conversation not found")
		return nil
	}
	if !conv.HasParticipant(caller.ID) {
		h.Error(w, http.StatusForbidden, "not a participant of this conversation")
		return nil
	}
	return conv
}

// ListMessages returns a conversation's messages oldest first (authenticated,
// participants only).
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetUserFromContext(r.Context())
	if caller == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conv := h.conversationForParticipant(w, r, caller)
	if conv == nil {
		return
	}

	msgs, err := h.db.ListMessages(r.Context(), conv.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	h.JSON(w, http.StatusOK, MessageListResponse{Messages: msgs})
}

// GetMessage returns a single message with its sender projection. The live
// bridge's message stream carries row IDs only, so clients fetch the
// authoritative row here.
func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetUserFromContext(r.Context())
	if caller == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conv := h.conversationForParticipant(w, r, caller)
	if conv == nil {
		return
	}

	msgID := chi.URLParam(r, "msgID")
	if _, err := ulid.Parse(msgID); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid message ID format")
		return
	}

	msg, err := h.db.GetMessage(r.Context(), conv.ID, msgID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if msg == nil {
		h.Error(w, http.StatusNotFound, "message not found")
		return
	}

	h.JSON(w, http.StatusOK, msg)
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessage appends a message to the conversation (authenticated,
// participants only). On success the parent conversation's last-message
// summary is updated and live events go out to both participants.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetUserFromContext(r.Context())
	if caller == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conv := h.conversationForParticipant(w, r, caller)
	if conv == nil {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		h.Error(w, http.StatusBadRequest, "content is required")
		return
	}
	if len(content) > maxMessageBytes {
		h.Error(w, http.StatusUnprocessableEntity, "content too long (max 4096 bytes)")
		return
	}

	msg := &models.Message{
		ID:             ulid.Make().String(),
		ConversationID: conv.ID,
		SenderID:       caller.ID,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}

	if err := h.db.AppendMessage(r.Context(), msg); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to store message")
		return
	}
	msg.Sender = &models.Profile{
		ID:        caller.ID,
		Username:  caller.Username,
		FullName:  caller.FullName,
		AvatarURL: caller.AvatarURL,
	}

	metrics.MessagesSent.Inc()
	metrics.LiveEventsPublished.WithLabelValues("messages").Inc()

	ev := live.Event{
		Channel:        live.MessageChannel(conv.ID),
		Table:          "messages",
		Type:           live.EventInsert,
		RowID:          msg.ID,
		ConversationID: conv.ID.String(),
		SenderID:       caller.ID.String(),
		Timestamp:      msg.CreatedAt.UnixMilli(),
	}
	if err := h.publisher.Publish(r.Context(), ev); err != nil {
		h.logger.Warn().Err(err).Str("channel", ev.Channel).Msg("failed to publish message event")
	}

	// The append moved the conversation's last-message summary; wake up both
	// participants' list views.
	h.publishConversationChange(r.Context(), conv, live.EventUpdate)

	h.JSON(w, http.StatusCreated, msg)
}

// UnreadCountResponse represents the unread count response.
type UnreadCountResponse struct {
	Count int64 `json:"count"`
}

// UnreadCount returns the number of unread messages addressed to the caller
// across all conversations (authenticated).
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetUserFromContext(r.Context())
	if caller == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	count, err := h.db.CountUnread(r.Context(), caller.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count unread messages")
		return
	}

	h.JSON(w, http.StatusOK, UnreadCountResponse{Count: count})
}
