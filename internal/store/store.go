// Package store persists user profiles, conversations and image analyses
// to SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrUserNotFound is returned when no profile exists for an identity
var ErrUserNotFound = errors.New("user not found")

// User is the persisted per-identity profile. Invariant: Verified is true
// iff Phone is non-nil.
type User struct {
	ChatID    string    `json:"chat_id"`
	FirstName string    `json:"first_name"`
	Username  string    `json:"username"`
	Phone     *string   `json:"phone,omitempty"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a persisted question/response pair
type Message struct {
	ID          string    `json:"id"`
	ChatID      string    `json:"chat_id"`
	UserMessage string    `json:"user_message"`
	BotResponse string    `json:"bot_response"`
	CreatedAt   time.Time `json:"created_at"`
}

// Image is a persisted image analysis result
type Image struct {
	ID          string    `json:"id"`
	ChatID      string    `json:"chat_id"`
	FileID      string    `json:"file_id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store manages the bot's SQLite database
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
// Use ":memory:" for an ephemeral database in tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ConfigureDatabase(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for shared use
func (s *Store) DB() *sql.DB {
	return s.db
}

// GetUser fetches the profile for an identity.
// Returns ErrUserNotFound if no profile exists.
func (s *Store) GetUser(ctx context.Context, chatID string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT chat_id, first_name, username, phone, verified, created_at
		FROM users WHERE chat_id = ?`, chatID)

	var user User
	var phone sql.NullString
	err := row.Scan(&user.ChatID, &user.FirstName, &user.Username, &phone, &user.Verified, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if phone.Valid {
		user.Phone = &phone.String
	}
	return &user, nil
}

// CreateUser inserts a new unverified profile. Creation is a no-op if the
// profile already exists (first contact wins for name fields).
func (s *Store) CreateUser(ctx context.Context, chatID, firstName, username string) (*User, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (chat_id, first_name, username, phone, verified)
		VALUES (?, ?, ?, NULL, 0)
		ON CONFLICT(chat_id) DO NOTHING`,
		chatID, firstName, username)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return s.GetUser(ctx, chatID)
}

// SetPhone upserts the profile for an identity, records the phone number
// and marks the user verified. Idempotent: repeated shares overwrite the
// phone and leave the user verified.
func (s *Store) SetPhone(ctx context.Context, chatID, phone, firstName, username string) (*User, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (chat_id, first_name, username, phone, verified)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(chat_id) DO UPDATE SET phone = excluded.phone, verified = 1`,
		chatID, firstName, username, phone)
	if err != nil {
		return nil, fmt.Errorf("failed to set phone: %w", err)
	}

	return s.GetUser(ctx, chatID)
}

// SaveMessage persists a question/response pair
func (s *Store) SaveMessage(ctx context.Context, chatID, userMessage, botResponse string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, user_message, bot_response)
		VALUES (?, ?, ?, ?)`,
		uuid.New().String(), chatID, userMessage, botResponse)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// SaveImage persists an image analysis result
func (s *Store) SaveImage(ctx context.Context, chatID, fileID, description string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO images (id, chat_id, file_id, description)
		VALUES (?, ?, ?, ?)`,
		uuid.New().String(), chatID, fileID, description)
	if err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}

// RecentMessages returns up to limit messages for an identity, newest first
func (s *Store) RecentMessages(ctx context.Context, chatID string, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, user_message, bot_response, created_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.UserMessage, &m.BotResponse, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}
