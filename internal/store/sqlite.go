package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ssharvesh-steep/cracoe-social-media/internal/models"
)

// SQLiteStore handles SQLite database operations. It backs development
// setups and tests; production runs on PostgresStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/cracoe.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/cracoe.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		full_name TEXT DEFAULT '',
		avatar_url TEXT DEFAULT '',
		password_hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		participant_1_id TEXT NOT NULL REFERENCES users(id),
		participant_2_id TEXT NOT NULL REFERENCES users(id),
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_message_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_message_content TEXT,
		last_message_sender_id TEXT,
		UNIQUE (participant_1_id, participant_2_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		sender_id TEXT NOT NULL REFERENCES users(id),
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		is_read INTEGER DEFAULT 0,
		read_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_participant_1 ON conversations(participant_1_id);
	CREATE INDEX IF NOT EXISTS idx_conversations_participant_2 ON conversations(participant_2_id);
	CREATE INDEX IF NOT EXISTS idx_conversations_last_message ON conversations(last_message_at);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(conversation_id, is_read);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, fullName, avatarURL, passwordHash string) (*models.User, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, full_name, avatar_url, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, username, fullName, avatarURL, passwordHash, now, now)
	if err != nil {
		return nil, err
	}

	return s.GetUserByID(ctx, uuid.MustParse(id))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var idStr string
	err := row.Scan(
		&idStr,
		&user.Username,
		&user.FullName,
		&user.AvatarURL,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.ID = uuid.MustParse(idStr)
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, full_name, avatar_url, password_hash, created_at, updated_at
		FROM users WHERE id = ?
	`, id.String()))
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, full_name, avatar_url, password_hash, created_at, updated_at
		FROM users WHERE username = ?
	`, username))
}

// CountUsers returns the total number of registered users.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// ResolveConversation atomically finds or creates the conversation for the
// pair. INSERT OR IGNORE plus the unique pair index means concurrent
// first-contact attempts converge on one row.
func (s *SQLiteStore) ResolveConversation(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, bool, error) {
	p1, p2 := models.NormalizePair(userA, userB)
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO conversations (id, participant_1_id, participant_2_id, created_at, updated_at, last_message_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.New().String(), p1.String(), p2.String(), now, now, now)
	if err != nil {
		return nil, false, err
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	conv, err := s.getConversationByPair(ctx, p1, p2)
	if err != nil {
		return nil, false, err
	}
	return conv, inserted == 1, nil
}

func (s *SQLiteStore) scanConversation(scanner interface{ Scan(...any) error }) (*models.Conversation, error) {
	conv := &models.Conversation{}
	var idStr, p1Str, p2Str string
	var lastSenderStr *string
	err := scanner.Scan(
		&idStr,
		&p1Str,
		&p2Str,
		&conv.CreatedAt,
		&conv.UpdatedAt,
		&conv.LastMessageAt,
		&conv.LastMessageContent,
		&lastSenderStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	conv.ID = uuid.MustParse(idStr)
	conv.Participant1ID = uuid.MustParse(p1Str)
	conv.Participant2ID = uuid.MustParse(p2Str)
	if lastSenderStr != nil {
		senderID := uuid.MustParse(*lastSenderStr)
		conv.LastMessageSenderID = &senderID
	}
	return conv, nil
}

func (s *SQLiteStore) getConversationByPair(ctx context.Context, p1, p2 uuid.UUID) (*models.Conversation, error) {
	return s.scanConversation(s.db.QueryRowContext(ctx, `
		SELECT id, participant_1_id, participant_2_id, created_at, updated_at,
		       last_message_at, last_message_content, last_message_sender_id
		FROM conversations WHERE participant_1_id = ? AND participant_2_id = ?
	`, p1.String(), p2.String()))
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	return s.scanConversation(s.db.QueryRowContext(ctx, `
		SELECT id, participant_1_id, participant_2_id, created_at, updated_at,
		       last_message_at, last_message_content, last_message_sender_id
		FROM conversations WHERE id = ?
	`, id.String()))
}

// ListConversations retrieves every conversation where the user is either
// participant, with both participant profiles embedded, most recent first.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.participant_1_id, c.participant_2_id, c.created_at, c.updated_at,
		       c.last_message_at, c.last_message_content, c.last_message_sender_id,
		       u1.id, u1.username, u1.full_name, u1.avatar_url,
		       u2.id, u2.username, u2.full_name, u2.avatar_url
		FROM conversations c
		JOIN users u1 ON u1.id = c.participant_1_id
		JOIN users u2 ON u2.id = c.participant_2_id
		WHERE c.participant_1_id = ? OR c.participant_2_id = ?
		ORDER BY c.last_message_at DESC
	`, userID.String(), userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		var conv models.Conversation
		var idStr, p1Str, p2Str string
		var lastSenderStr *string
		var p1, p2 models.Profile
		var p1ID, p2ID string

		err := rows.Scan(
			&idStr,
			&p1Str,
			&p2Str,
			&conv.CreatedAt,
			&conv.UpdatedAt,
			&conv.LastMessageAt,
			&conv.LastMessageContent,
			&lastSenderStr,
			&p1ID, &p1.Username, &p1.FullName, &p1.AvatarURL,
			&p2ID, &p2.Username, &p2.FullName, &p2.AvatarURL,
		)
		if err != nil {
			return nil, err
		}

		conv.ID = uuid.MustParse(idStr)
		conv.Participant1ID = uuid.MustParse(p1Str)
		conv.Participant2ID = uuid.MustParse(p2Str)
		if lastSenderStr != nil {
			senderID := uuid.MustParse(*lastSenderStr)
			conv.LastMessageSenderID = &senderID
		}
		p1.ID = uuid.MustParse(p1ID)
		p2.ID = uuid.MustParse(p2ID)
		conv.Participant1 = &p1
		conv.Participant2 = &p2
		convs = append(convs, conv)
	}

	return convs, rows.Err()
}

// AppendMessage inserts the message and updates the parent conversation's
// denormalized last-message summary in one transaction. The timestamp guard
// keeps a near-simultaneous older send from overwriting a newer summary.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, created_at, is_read)
		VALUES (?, ?, ?, ?, ?, 0)
	`, msg.ID, msg.ConversationID.String(), msg.SenderID.String(), msg.Content, msg.CreatedAt)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_at = ?,
		    last_message_content = ?,
		    last_message_sender_id = ?,
		    updated_at = ?
		WHERE id = ? AND last_message_at <= ?
	`, msg.CreatedAt, msg.Content, msg.SenderID.String(), time.Now().UTC(), msg.ConversationID.String(), msg.CreatedAt)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetMessage retrieves a single message with its sender projection.
func (s *SQLiteStore) GetMessage(ctx context.Context, conversationID uuid.UUID, msgID string) (*models.Message, error) {
	msg := &models.Message{}
	var sender models.Profile
	var convStr, senderStr, senderIDStr string
	var isReadInt int

	err := s.db.QueryRowContext(ctx, `
		SELECT m.id, m.conversation_id, m.sender_id, m.content, m.created_at, m.is_read, m.read_at,
		       u.id, u.username, u.full_name, u.avatar_url
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id = ? AND m.id = ?
	`, conversationID.String(), msgID).Scan(
		&msg.ID,
		&convStr,
		&senderStr,
		&msg.Content,
		&msg.CreatedAt,
		&isReadInt,
		&msg.ReadAt,
		&senderIDStr, &sender.Username, &sender.FullName, &sender.AvatarURL,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	msg.ConversationID = uuid.MustParse(convStr)
	msg.SenderID = uuid.MustParse(senderStr)
	msg.IsRead = isReadInt == 1
	sender.ID = uuid.MustParse(senderIDStr)
	msg.Sender = &sender
	return msg, nil
}

// ListMessages retrieves a conversation's messages oldest first, sender
// profiles embedded.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.conversation_id, m.sender_id, m.content, m.created_at, m.is_read, m.read_at,
		       u.id, u.username, u.full_name, u.avatar_url
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id = ?
		ORDER BY m.created_at ASC, m.id ASC
	`, conversationID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var msg models.Message
		var sender models.Profile
		var convStr, senderStr, senderIDStr string
		var isReadInt int

		err := rows.Scan(
			&msg.ID,
			&convStr,
			&senderStr,
			&msg.Content,
			&msg.CreatedAt,
			&isReadInt,
			&msg.ReadAt,
			&senderIDStr, &sender.Username, &sender.FullName, &sender.AvatarURL,
		)
		if err != nil {
			return nil, err
		}

		msg.ConversationID = uuid.MustParse(convStr)
		msg.SenderID = uuid.MustParse(senderStr)
		msg.IsRead = isReadInt == 1
		sender.ID = uuid.MustParse(senderIDStr)
		msg.Sender = &sender
		msgs = append(msgs, msg)
	}

	return msgs, rows.Err()
}

// MarkMessagesRead transitions every unread message in the conversation not
// sent by readerID to read. Idempotent.
func (s *SQLiteStore) MarkMessagesRead(ctx context.Context, conversationID, readerID uuid.UUID, readAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET is_read = 1, read_at = ?
		WHERE conversation_id = ? AND sender_id <> ? AND is_read = 0
	`, readAt, conversationID.String(), readerID.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountUnread returns the number of unread messages addressed to the user.
func (s *SQLiteStore) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE (c.participant_1_id = ? OR c.participant_2_id = ?)
		  AND m.sender_id <> ?
		  AND m.is_read = 0
	`, userID.String(), userID.String(), userID.String()).Scan(&count)
	return count, err
}
