// Package store defines the persistence interfaces for user profiles and
// conversations.
//
// Implementations exist for SQLite, PostgreSQL, MySQL, and an in-memory map
// (used in tests). All backends store profile and conversation documents as
// serialized JSON rows keyed by user and session, the way the rest of the
// system treats them: whole-document reads and single-statement upserts.
package store

import (
	"context"
	"time"

	"github.com/companionlabs/companion-go/pkg/core"
)

// ProfileStore persists one UserProfile per user ID.
type ProfileStore interface {
	// GetProfile retrieves a profile by user ID.
	// Returns (nil, nil) when no profile exists for the user.
	GetProfile(ctx context.Context, userID string) (*core.UserProfile, error)

	// SaveProfile inserts or updates a profile (upsert by user ID).
	// On insert the store assigns profile.ID.
	SaveProfile(ctx context.Context, profile *core.UserProfile) error

	// Close closes the store and releases resources.
	Close() error
}

// ConversationStore persists conversation documents keyed by (user, session).
type ConversationStore interface {
	// GetConversation retrieves one conversation.
	// Returns (nil, nil) when no record exists.
	GetConversation(ctx context.Context, userID, sessionID string) (*core.Conversation, error)

	// SaveConversation inserts or updates a conversation (upsert by
	// user+session). Each save replaces the whole document in a single
	// statement; concurrent saves to one session are last-write-wins.
	SaveConversation(ctx context.Context, conv *core.Conversation) error

	// ListConversations returns a user's conversations sorted by UpdatedAt
	// descending, subject to the options.
	ListConversations(ctx context.Context, userID string, opts *ListOptions) ([]*core.Conversation, error)

	// DeleteConversation deletes one session's record.
	DeleteConversation(ctx context.Context, userID, sessionID string) error

	// DeleteUserConversations deletes all of a user's records.
	DeleteUserConversations(ctx context.Context, userID string) error

	// DeleteInactiveBefore deletes inactive conversations whose UpdatedAt
	// is before cutoff. Returns the number of deleted records.
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Close closes the store and releases resources.
	Close() error
}

// Store combines profile and conversation persistence over one backend.
type Store interface {
	ProfileStore
	ConversationStore
}

// ListOptions filters and paginates ListConversations.
type ListOptions struct {
	// UpdatedSince restricts results to conversations updated at or after
	// this instant. Zero means no restriction.
	UpdatedSince time.Time

	// Limit caps the number of results; 0 means no cap.
	Limit int
}
