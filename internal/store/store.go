package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ssharvesh-steep/cracoe-social-media/internal/models"
)

// DataStore defines the interface for persistent storage of users,
// conversations and messages. Both PostgresStore and SQLiteStore implement
// this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, username, fullName, avatarURL, passwordHash string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CountUsers(ctx context.Context) (int64, error)

	// Conversation operations
	//
	// ResolveConversation atomically finds or creates the single conversation
	// for the unordered pair (userA, userB). Safe against two simultaneous
	// first-contact attempts. The bool reports whether a new row was created.
	ResolveConversation(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, bool, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	// ListConversations returns every conversation where the user is either
	// participant, both profiles embedded, ordered by last message time
	// descending.
	ListConversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error)

	// Message operations
	//
	// AppendMessage inserts the message and, in the same transaction, updates
	// the parent conversation's denormalized last-message summary. The summary
	// update is guarded so an older message never overwrites a newer summary.
	AppendMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, conversationID uuid.UUID, msgID string) (*models.Message, error)
	// ListMessages returns the conversation's messages ascending by creation
	// time, sender profile embedded.
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error)
	// MarkMessagesRead flips is_read and stamps read_at on every unread
	// message in the conversation not sent by readerID. Returns the number of
	// rows transitioned; calling it again with nothing to mark returns 0.
	MarkMessagesRead(ctx context.Context, conversationID, readerID uuid.UUID, readAt time.Time) (int64, error)
	// CountUnread returns the number of unread messages addressed to the user
	// across all their conversations.
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)
}
