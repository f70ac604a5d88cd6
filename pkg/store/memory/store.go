// Package memory provides an in-memory implementation of the profile and
// conversation stores, used in tests and for running without a database.
//
// Records are cloned through JSON on the way in and out, mirroring the
// serialize-whole-document behavior of the SQL backends.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/companionlabs/companion-go/pkg/core"
	"github.com/companionlabs/companion-go/pkg/store"
)

// Store implements store.Store with in-process maps.
// It is safe for concurrent use.
type Store struct {
	mu            sync.RWMutex
	profiles      map[string]*core.UserProfile   // userID -> profile
	conversations map[string]*core.Conversation  // userID + "\x00" + sessionID -> conversation
	node          *snowflake.Node
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	node, _ := snowflake.NewNode(1)
	return &Store{
		profiles:      make(map[string]*core.UserProfile),
		conversations: make(map[string]*core.Conversation),
		node:          node,
	}
}

func convKey(userID, sessionID string) string {
	return userID + "\x00" + sessionID
}

// GetProfile retrieves a profile by user ID, or (nil, nil) if absent.
func (s *Store) GetProfile(_ context.Context, userID string) (*core.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return cloneProfile(profile), nil
}

// SaveProfile inserts or updates a profile by user ID.
func (s *Store) SaveProfile(_ context.Context, profile *core.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	profile.UpdatedAt = now
	if existing, ok := s.profiles[profile.UserID]; ok {
		profile.ID = existing.ID
	} else {
		profile.ID = s.node.Generate().Int64()
		if profile.CreatedAt.IsZero() {
			profile.CreatedAt = now
		}
	}
	s.profiles[profile.UserID] = cloneProfile(profile)
	return nil
}

// GetConversation retrieves one conversation, or (nil, nil) if absent.
func (s *Store) GetConversation(_ context.Context, userID, sessionID string) (*core.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[convKey(userID, sessionID)]
	if !ok {
		return nil, nil
	}
	return cloneConversation(conv), nil
}

// SaveConversation inserts or updates a conversation by (user, session).
func (s *Store) SaveConversation(_ context.Context, conv *core.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	conv.UpdatedAt = now
	if existing, ok := s.conversations[convKey(conv.UserID, conv.SessionID)]; ok {
		conv.ID = existing.ID
	} else {
		conv.ID = s.node.Generate().Int64()
		if conv.CreatedAt.IsZero() {
			conv.CreatedAt = now
		}
	}
	s.conversations[convKey(conv.UserID, conv.SessionID)] = cloneConversation(conv)
	return nil
}

// ListConversations returns a user's conversations, most recently updated first.
func (s *Store) ListConversations(_ context.Context, userID string, opts *store.ListOptions) ([]*core.Conversation, error) {
	if opts == nil {
		opts = &store.ListOptions{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*core.Conversation
	for _, conv := range s.conversations {
		if conv.UserID != userID {
			continue
		}
		if !opts.UpdatedSince.IsZero() && conv.UpdatedAt.Before(opts.UpdatedSince) {
			continue
		}
		result = append(result, cloneConversation(conv))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// DeleteConversation deletes one session's record.
func (s *Store) DeleteConversation(_ context.Context, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conversations, convKey(userID, sessionID))
	return nil
}

// DeleteUserConversations deletes all of a user's records.
func (s *Store) DeleteUserConversations(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, conv := range s.conversations {
		if conv.UserID == userID {
			delete(s.conversations, key)
		}
	}
	return nil
}

// DeleteInactiveBefore deletes inactive conversations last updated before cutoff.
func (s *Store) DeleteInactiveBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for key, conv := range s.conversations {
		if !conv.IsActive && conv.UpdatedAt.Before(cutoff) {
			delete(s.conversations, key)
			deleted++
		}
	}
	return deleted, nil
}

// Backdate rewrites a stored conversation's UpdatedAt, bypassing the
// refresh SaveConversation applies. Test hook for age-sensitive queries.
func (s *Store) Backdate(userID, sessionID string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[convKey(userID, sessionID)]
	if !ok {
		return core.ErrNotFound
	}
	conv.UpdatedAt = updatedAt
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

func cloneProfile(p *core.UserProfile) *core.UserProfile {
	data, _ := json.Marshal(p)
	var clone core.UserProfile
	_ = json.Unmarshal(data, &clone)
	clone.ID = p.ID
	clone.CreatedAt = p.CreatedAt
	clone.UpdatedAt = p.UpdatedAt
	return &clone
}

func cloneConversation(c *core.Conversation) *core.Conversation {
	data, _ := json.Marshal(c)
	var clone core.Conversation
	_ = json.Unmarshal(data, &clone)
	clone.ID = c.ID
	clone.CreatedAt = c.CreatedAt
	clone.UpdatedAt = c.UpdatedAt
	return &clone
}
