// Package mysql provides the MySQL implementation of the profile and
// conversation stores. Documents are stored in JSON columns.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	_ "github.com/go-sql-driver/mysql"

	"github.com/companionlabs/companion-go/pkg/core"
	"github.com/companionlabs/companion-go/pkg/store"
)

// Store implements store.Store using MySQL as the backend.
type Store struct {
	db   *sql.DB
	node *snowflake.Node
}

// Config contains configuration for creating a MySQL store.
type Config struct {
	// DSN is the go-sql-driver connection string, e.g.
	// "user:pass@tcp(localhost:3306)/companion?parseTime=true".
	DSN string
}

// NewStore creates a new MySQL store and initializes the schema.
func NewStore(cfg *Config) (*Store, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
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

func (s *Store) initTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS user_profiles (
			id BIGINT PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL UNIQUE,
			document JSON NOT NULL,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id BIGINT PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			session_id VARCHAR(255) NOT NULL,
			document JSON NOT NULL,
			is_active TINYINT(1) NOT NULL DEFAULT 1,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			UNIQUE KEY uniq_user_session (user_id, session_id),
			KEY idx_conversations_user_id (user_id),
			KEY idx_conversations_updated_at (updated_at)
		)`,
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
		document             []byte
		createdAt, updatedAt time.Time
	)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&id, &document, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	var profile core.UserProfile
	if err := json.Unmarshal(document, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	profile.ID = id
	profile.CreatedAt = createdAt
	profile.UpdatedAt = updatedAt
	return &profile, nil
}

// SaveProfile inserts or updates a profile by user ID.
func (s *Store) SaveProfile(ctx context.Context, profile *core.UserProfile) error {
	now := time.Now()
	profile.UpdatedAt = now
	if profile.ID == 0 {
		profile.ID = s.node.Generate().Int64()
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}

	document, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	query := `
		INSERT INTO user_profiles (id, user_id, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE document = VALUES(document), updated_at = VALUES(updated_at)
	`
	if _, err := s.db.ExecContext(ctx, query, profile.ID, profile.UserID, document, profile.CreatedAt, now); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// GetConversation retrieves one conversation, or (nil, nil) if absent.
func (s *Store) GetConversation(ctx context.Context, userID, sessionID string) (*core.Conversation, error) {
	query := `SELECT id, document, created_at, updated_at FROM conversations WHERE user_id = ? AND session_id = ?`

	var (
		id                   int64
		document             []byte
		createdAt, updatedAt time.Time
	)
	err := s.db.QueryRowContext(ctx, query, userID, sessionID).Scan(&id, &document, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	var conv core.Conversation
	if err := json.Unmarshal(document, &conv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	conv.ID = id
	conv.CreatedAt = createdAt
	conv.UpdatedAt = updatedAt
	return &conv, nil
}

// SaveConversation inserts or updates a conversation by (user, session) in
// a single upsert statement; concurrent saves are last-write-wins.
func (s *Store) SaveConversation(ctx context.Context, conv *core.Conversation) error {
	now := time.Now()
	conv.UpdatedAt = now
	if conv.ID == 0 {
		conv.ID = s.node.Generate().Int64()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}

	document, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	query := `
		INSERT INTO conversations (id, user_id, session_id, document, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE document = VALUES(document), is_active = VALUES(is_active), updated_at = VALUES(updated_at)
	`
	if _, err := s.db.ExecContext(ctx, query, conv.ID, conv.UserID, conv.SessionID, document, conv.IsActive, conv.CreatedAt, now); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// ListConversations returns a user's conversations, most recently updated first.
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
			document             []byte
			createdAt, updatedAt time.Time
		)
		if err := rows.Scan(&id, &document, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		var conv core.Conversation
		if err := json.Unmarshal(document, &conv); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
		}
		conv.ID = id
		conv.CreatedAt = createdAt
		conv.UpdatedAt = updatedAt
		conversations = append(conversations, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return conversations, nil
}

// DeleteConversation deletes one session's record.
func (s *Store) DeleteConversation(ctx context.Context, userID, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE user_id = ? AND session_id = ?`, userID, sessionID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// DeleteUserConversations deletes all of a user's records.
func (s *Store) DeleteUserConversations(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete conversations: %w", err)
	}
	return nil
}

// DeleteInactiveBefore deletes inactive conversations last updated before cutoff.
func (s *Store) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE is_active = 0 AND updated_at < ?`, cutoff)
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
