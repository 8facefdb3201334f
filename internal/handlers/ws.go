package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/ssharvesh-steep/cracoe-social-media/internal/api/middleware"
	"github.com/ssharvesh-steep/cracoe-social-media/internal/live"
	"github.com/ssharvesh-steep/cracoe-social-media/internal/metrics"
	"github.com/ssharvesh-steep/cracoe-social-media/internal/models"
)

// SubscribeCommand is a channel management frame sent by the client.
type SubscribeCommand struct {
	Action  string `json:"action"` // "subscribe" or "unsubscribe"
	Channel string `json:"channel"`
}

// LiveSocket upgrades to a WebSocket and serves the change-notification
// bridge (authenticated; the token rides the "token" query parameter because
// browsers cannot set headers on WebSocket upgrades).
func (h *Handler) LiveSocket(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetUserFromContext(r.Context())
	if caller == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket accept failed")
		return
	}

	conn := h.hub.Add(caller.ID, ws)
	metrics.LiveConnections.Inc()
	defer func() {
		released := h.hub.Remove(conn)
		metrics.LiveConnections.Dec()
		metrics.LiveSubscriptions.Sub(float64(released))
	}()

	for {
		var cmd SubscribeCommand
		if err := wsjson.Read(r.Context(), ws, &cmd); err != nil {
			return
		}

		switch cmd.Action {
		case "subscribe":
			if !h.authorizeChannel(r.Context(), caller, cmd.Channel) {
				conn.Notify(live.Frame{Type: "error", Chan: cmd.Channel, Error: "channel not allowed"})
				continue
			}
			if h.hub.Subscribe(conn, cmd.Channel) {
				metrics.LiveSubscriptions.Inc()
			}
			conn.Notify(live.Frame{Type: "subscribed", Chan: cmd.Channel})
		case "unsubscribe":
			if h.hub.Unsubscribe(conn, cmd.Channel) {
				metrics.LiveSubscriptions.Dec()
			}
			conn.Notify(live.Frame{Type: "unsubscribed", Chan: cmd.Channel})
		default:
			conn.Notify(live.Frame{Type: "error", Error: "unknown action"})
		}
	}
}

// authorizeChannel decides whether the caller may attach to a channel: their
// own conversation-list stream, or the message stream of a conversation they
// participate in.
func (h *Handler) authorizeChannel(ctx context.Context, caller *models.User, channel string) bool {
	switch {
	case strings.HasPrefix(channel, "conversations:"):
		return channel == live.ConversationChannel(caller.ID)
	case strings.HasPrefix(channel, "messages:"):
		convID, err := uuid.Parse(strings.TrimPrefix(channel, "messages:"))
		if err != nil {
			return false
		}
		conv, err := h.db.GetConversation(ctx, convID)
		if err != nil || conv == nil {
			return false
		}
		return conv.HasParticipant(caller.ID)
	default:
		return false
	}
}
