// Package sqlite provides the SQLite implementation of the profile and
// conversation stores.
//
// SQLite is a lightweight, file-based database suitable for local
// development and small deployments. Documents are stored as JSON strings
// in TEXT columns.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bwmarrin/snowflake"
	_ "github.com/mattn/go-sqlite3"

	"github.com/companionlabs/companion-go/pkg/core"
	"github.com/companionlabs/companion-go/pkg/store"
)

// Store implements store.Store using SQLite as the backend.
type Store struct {
	db *sql.DB

	// node generates unique IDs for inserted records.
	node *snowflake.Node
}

// Config contains configuration for creating a SQLite store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string
}

// NewStore creates a new SQLite store and initializes the schema.
func NewStore(cfg *Config) (*Store, error) {
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create id generator: %w", err)
	}

	s := &Store{db: db, node: node}
	if err := s.initTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// initTables initializes the database schema.
func (s *Store) initTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS user_profiles (
			id INTEGER PRIMARY KEY,
			user_id TEXT NOT NULL UNIQUE,
			document TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			document TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE(user_id, session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user_id ON conversations(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// GetProfile retrieves a profile by user ID, or (nil, nil) if absent.
func (s *Store) GetProfile(ctx context.Context, userID string) (*core.UserProfile, error) {
	query := `SELECT id, document, created_at, updated_at FROM user_profiles WHERE user_id = ?`

	var (
		id                   int64
		document             string
		createdAt, updatedAt time.Time
	)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&id, &document, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	profile, err := decodeProfile(id, document, createdAt, updatedAt)
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// SaveProfile inserts or updates a profile by user ID.
func (s *Store) SaveProfile(ctx context.Context, profile *core.UserProfile) error {
	now := time.Now()
	profile.UpdatedAt = now

	document, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	var existingID int64
	checkQuery := `SELECT id FROM user_profiles WHERE user_id = ?`
	err = s.db.QueryRowContext(ctx, checkQuery, profile.UserID).Scan(&existingID)

	switch {
	case err == nil:
		updateQuery := `UPDATE user_profiles SET document = ?, updated_at = ? WHERE user_id = ?`
		if _, err := s.db.ExecContext(ctx, updateQuery, string(document), now, profile.UserID); err != nil {
			return fmt.Errorf("failed to update profile: %w", err)
		}
		profile.ID = existingID
		return nil
	case err == sql.ErrNoRows:
		profile.ID = s.node.Generate().Int64()
		if profile.CreatedAt.IsZero() {
			profile.CreatedAt = now
		}
		insertQuery := `INSERT INTO user_profiles (id, user_id, document, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
		if _, err := s.db.ExecContext(ctx, insertQuery, profile.ID, profile.UserID, string(document), profile.CreatedAt, now); err != nil {
			return fmt.Errorf("failed to insert profile: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("failed to check existing profile: %w", err)
	}
}

// GetConversation retrieves one conversation, or (nil, nil) if absent.
func (s *Store) GetConversation(ctx context.Context, userID, sessionID string) (*core.Conversation, error) {
	query := `SELECT id, document, created_at, updated_at FROM conversations WHERE user_id = ? AND session_id = ?`

	var (
		id                   int64
		document             string
		createdAt, updatedAt time.Time
	)
	err := s.db.QueryRowContext(ctx, query, userID, sessionID).Scan(&id, &document, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return decodeConversation(id, document, createdAt, updatedAt)
}

// SaveConversation inserts or updates a conversation by (user, session).
// The whole document is replaced in a single statement.
func (s *Store) SaveConversation(ctx context.Context, conv *core.Conversation) error {
	now := time.Now()
	conv.UpdatedAt = now

	document, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	var existingID int64
	checkQuery := `SELECT id FROM conversations WHERE user_id = ? AND session_id = ?`
	err = s.db.QueryRowContext(ctx, checkQuery, conv.UserID, conv.SessionID).Scan(&existingID)

	switch {
	case err == nil:
		updateQuery := `UPDATE conversations SET document = ?, is_active = ?, updated_at = ? WHERE user_id = ? AND session_id = ?`
		if _, err := s.db.ExecContext(ctx, updateQuery, string(document), boolToInt(conv.IsActive), now, conv.UserID, conv.SessionID); err != nil {
			return fmt.Errorf("failed to update conversation: %w", err)
		}
		conv.ID = existingID
		return nil
	case err == sql.ErrNoRows:
		conv.ID = s.node.Generate().Int64()
		if conv.CreatedAt.IsZero() {
			conv.CreatedAt = now
		}
		insertQuery := `INSERT INTO conversations (id, user_id, session_id, document, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
		if _, err := s.db.ExecContext(ctx, insertQuery, conv.ID, conv.UserID, conv.SessionID, string(document), boolToInt(conv.IsActive), conv.CreatedAt, now); err != nil {
			return fmt.Errorf("failed to insert conversation: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("failed to check existing conversation: %w", err)
	}
}

// ListConversations returns a user's conversations, most recently updated
// first.
func (s *Store) ListConversations(ctx context.Context, userID string, opts *store.ListOptions) ([]*core.Conversation, error) {
	if opts == nil {
		opts = &store.ListOptions{}
	}

	query := `SELECT id, document, created_at, updated_at FROM conversations WHERE user_id = ?`
	args := []interface{}{userID}

	if !opts.UpdatedSince.IsZero() {
		query += ` AND updated_at >= ?`
		args = append(args, opts.UpdatedSince)
	}
	query += ` ORDER BY updated_at DESC`
	if opts.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var conversations []*core.Conversation
	for rows.Next() {
		var (
			id                   int64
			document             string
			createdAt, updatedAt time.Time
		)
		if err := rows.Scan(&id, &document, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conv, err := decodeConversation(id, document, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return conversations, nil
}

// DeleteConversation deletes one session's record.
func (s *Store) DeleteConversation(ctx context.Context, userID, sessionID string) error {
	query := `DELETE FROM conversations WHERE user_id = ? AND session_id = ?`
	if _, err := s.db.ExecContext(ctx, query, userID, sessionID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// DeleteUserConversations deletes all of a user's records.
func (s *Store) DeleteUserConversations(ctx context.Context, userID string) error {
	query := `DELETE FROM conversations WHERE user_id = ?`
	if _, err := s.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to delete conversations: %w", err)
	}
	return nil
}

// DeleteInactiveBefore deletes inactive conversations last updated before
// cutoff, returning the number of deleted records.
func (s *Store) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM conversations WHERE is_active = 0 AND updated_at < ?`
	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old conversations: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// decodeProfile unmarshals a profile document and restores row columns.
func decodeProfile(id int64, document string, createdAt, updatedAt time.Time) (*core.UserProfile, error) {
	var profile core.UserProfile
	if err := json.Unmarshal([]byte(document), &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	profile.ID = id
	profile.CreatedAt = createdAt
	profile.UpdatedAt = updatedAt
	return &profile, nil
}

// decodeConversation unmarshals a conversation document and restores row columns.
func decodeConversation(id int64, document string, createdAt, updatedAt time.Time) (*core.Conversation, error) {
	var conv core.Conversation
	if err := json.Unmarshal([]byte(document), &conv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	conv.ID = id
	conv.CreatedAt = createdAt
	conv.UpdatedAt = updatedAt
	return &conv, nil
}
