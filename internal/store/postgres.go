package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ssharvesh-steep/cracoe-social-media/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser creates a new user record.
func (s *PostgresStore) CreateUser(ctx context.Context, username, fullName, avatarURL, passwordHash string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, full_name, avatar_url, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id, username, full_name, avatar_url, password_hash, created_at, updated_at
	`, username, fullName, avatarURL, passwordHash).Scan(
		&user.ID,
		&user.Username,
		&user.FullName,
		&user.AvatarURL,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, full_name, avatar_url, password_hash, created_at, updated_at
		FROM users WHERE id = $1
	`, id).Scan(
		&user.ID,
		&user.Username,
		&user.FullName,
		&user.AvatarURL,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username.
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, full_name, avatar_url, password_hash, created_at, updated_at
		FROM users WHERE username = $1
	`, username).Scan(
		&user.ID,
		&user.Username,
		&user.FullName,
		&user.AvatarURL,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// CountUsers returns the total number of registered users.
func (s *PostgresStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// ResolveConversation atomically finds or creates the conversation for the
// pair. The no-op ON CONFLICT update makes the insert return the existing row,
// so concurrent first-contact attempts both land on the same conversation.
func (s *PostgresStore) ResolveConversation(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, bool, error) {
	p1, p2 := models.NormalizePair(userA, userB)

	conv := &models.Conversation{}
	var created bool
	// (xmax = 0) distinguishes a fresh insert from the conflict path.
	err := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, participant_1_id, participant_2_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (participant_1_id, participant_2_id)
		DO UPDATE SET participant_1_id = conversations.participant_1_id
		RETURNING id, participant_1_id, participant_2_id, created_at, updated_at,
		          last_message_at, last_message_content, last_message_sender_id,
		          (xmax = 0)
	`, uuid.New(), p1, p2).Scan(
		&conv.ID,
		&conv.Participant1ID,
		&conv.Participant2ID,
		&conv.CreatedAt,
		&conv.UpdatedAt,
		&conv.LastMessageAt,
		&conv.LastMessageContent,
		&conv.LastMessageSenderID,
		&created,
	)
	if err != nil {
		return nil, false, err
	}
	return conv, created, nil
}

// GetConversation retrieves a conversation by ID.
func (s *PostgresStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, participant_1_id, participant_2_id, created_at, updated_at,
		       last_message_at, last_message_content, last_message_sender_id
		FROM conversations WHERE id = $1
	`, id).Scan(
		&conv.ID,
		&conv.Participant1ID,
		&conv.Participant2ID,
		&conv.CreatedAt,
		&conv.UpdatedAt,
		&conv.LastMessageAt,
		&conv.LastMessageContent,
		&conv.LastMessageSenderID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return conv, nil
}

// ListConversations retrieves every conversation where the user is either
// participant, with both participant profiles embedded, most recent first.
func (s *PostgresStore) ListConversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.participant_1_id, c.participant_2_id, c.created_at, c.updated_at,
		       c.last_message_at, c.last_message_content, c.last_message_sender_id,
		       u1.id, u1.username, u1.full_name, u1.avatar_url,
		       u2.id, u2.username, u2.full_name, u2.avatar_url
		FROM conversations c
		JOIN users u1 ON u1.id = c.participant_1_id
		JOIN users u2 ON u2.id = c.participant_2_id
		WHERE c.participant_1_id = $1 OR c.participant_2_id = $1
		ORDER BY c.last_message_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		var conv models.Conversation
		var p1, p2 models.Profile
		err := rows.Scan(
			&conv.ID,
			&conv.Participant1ID,
			&conv.Participant2ID,
			&conv.CreatedAt,
			&conv.UpdatedAt,
			&conv.LastMessageAt,
			&conv.LastMessageContent,
			&conv.LastMessageSenderID,
			&p1.ID, &p1.Username, &p1.FullName, &p1.AvatarURL,
			&p2.ID, &p2.Username, &p2.FullName, &p2.AvatarURL,
		)
		if err != nil {
			return nil, err
		}
		conv.Participant1 = &p1
		conv.Participant2 = &p2
		convs = append(convs, conv)
	}

	return convs, rows.Err()
}

// AppendMessage inserts the message and updates the parent conversation's
// denormalized last-message summary in one transaction. The timestamp guard
// keeps a near-simultaneous older send from overwriting a newer summary.
func (s *PostgresStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, created_at, is_read)
		VALUES ($1, $2, $3, $4, $5, FALSE)
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.CreatedAt)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE conversations
		SET last_message_at = $2,
		    last_message_content = $3,
		    last_message_sender_id = $4,
		    updated_at = NOW()
		WHERE id = $1 AND last_message_at <= $2
	`, msg.ConversationID, msg.CreatedAt, msg.Content, msg.SenderID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetMessage retrieves a single message with its sender projection.
func (s *PostgresStore) GetMessage(ctx context.Context, conversationID uuid.UUID, msgID string) (*models.Message, error) {
	msg := &models.Message{}
	var sender models.Profile
	err := s.pool.QueryRow(ctx, `
		SELECT m.id, m.conversation_id, m.sender_id, m.content, m.created_at, m.is_read, m.read_at,
		       u.id, u.username, u.full_name, u.avatar_url
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id = $1 AND m.id = $2
	`, conversationID, msgID).Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.Content,
		&msg.CreatedAt,
		&msg.IsRead,
		&msg.ReadAt,
		&sender.ID, &sender.Username, &sender.FullName, &sender.AvatarURL,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	msg.Sender = &sender
	return msg, nil
}

// ListMessages retrieves a conversation's messages oldest first, sender
// profiles embedded.
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.conversation_id, m.sender_id, m.content, m.created_at, m.is_read, m.read_at,
		       u.id, u.username, u.full_name, u.avatar_url
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id = $1
		ORDER BY m.created_at ASC, m.id ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var msg models.Message
		var sender models.Profile
		err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.SenderID,
			&msg.Content,
			&msg.CreatedAt,
			&msg.IsRead,
			&msg.ReadAt,
			&sender.ID, &sender.Username, &sender.FullName, &sender.AvatarURL,
		)
		if err != nil {
			return nil, err
		}
		msg.Sender = &sender
		msgs = append(msgs, msg)
	}

	return msgs, rows.Err()
}

// MarkMessagesRead transitions every unread message in the conversation not
// sent by readerID to read. Idempotent.
func (s *PostgresStore) MarkMessagesRead(ctx context.Context, conversationID, readerID uuid.UUID, readAt time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET is_read = TRUE, read_at = $3
		WHERE conversation_id = $1 AND sender_id <> $2 AND is_read = FALSE
	`, conversationID, readerID, readAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountUnread returns the number of unread messages addressed to the user.
func (s *PostgresStore) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE (c.participant_1_id = $1 OR c.participant_2_id = $1)
		  AND m.sender_id <> $1
		  AND m.is_read = FALSE
	`, userID).Scan(&count)
	return count, err
}
