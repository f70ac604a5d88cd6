package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/companionlabs/companion-go/pkg/cache"
	"github.com/companionlabs/companion-go/pkg/core"
	"github.com/companionlabs/companion-go/pkg/llm"
	"github.com/companionlabs/companion-go/pkg/store"
)

// extractedFactConfidence is assigned to facts merged from an extraction.
const extractedFactConfidence = 0.8

// defaultHistoryLimit bounds history queries that pass no limit.
const defaultHistoryLimit = 50

// Service is the memory layer: it owns profile and conversation persistence,
// the optional Redis cache in front of the store, and the merge of extracted
// information into profiles.
//
// The service degrades rather than fails: reads fall back to empty results
// or temporary profiles when the store is unreachable, and cache errors are
// logged and swallowed.
type Service struct {
	store  store.Store
	cache  *cache.Cache // nil when caching is disabled
	llm    llm.Provider // nil when no model is configured; used for summaries
	logger *log.Logger
}

// NewService creates the memory service. cache and provider may be nil.
func NewService(st store.Store, c *cache.Cache, provider llm.Provider, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{store: st, cache: c, llm: provider, logger: logger}
}

// UserProfile returns the user's profile, creating and persisting a default
// one on first contact.
//
// Lookup order is cache, then store. If the store is unreachable the call
// still succeeds with a temporary in-memory profile so the conversation can
// continue; temporary profiles are never persisted.
func (s *Service) UserProfile(ctx context.Context, userID string) (*core.UserProfile, error) {
	if userID == "" {
		return nil, core.NewChatError("memory.profile", core.ErrInvalidInput)
	}

	if s.cache != nil {
		if profile, err := s.cache.GetProfile(ctx, userID); err == nil && profile != nil {
			return profile, nil
		}
	}

	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		s.logger.Warn("profile load failed, using temporary profile", "user", userID, "err", err)
		return core.NewTemporaryProfile(userID), nil
	}
	if profile == nil {
		profile = core.NewProfile(userID)
		if err := s.store.SaveProfile(ctx, profile); err != nil {
			s.logger.Warn("profile create failed, using temporary profile", "user", userID, "err", err)
			return core.NewTemporaryProfile(userID), nil
		}
	}

	s.cacheProfile(ctx, profile)
	return profile, nil
}

// UpdateProfile applies a partial update to the user's profile and persists
// it. The profile is created first if the user is new.
func (s *Service) UpdateProfile(ctx context.Context, userID string, patch *core.ProfilePatch) (*core.UserProfile, error) {
	profile, err := s.UserProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	profile.Apply(patch)
	if err := s.SaveProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// SaveProfile persists a profile and refreshes its cache entry. Temporary
// profiles are not persisted.
func (s *Service) SaveProfile(ctx context.Context, profile *core.UserProfile) error {
	if profile.Temporary {
		return nil
	}
	if err := s.store.SaveProfile(ctx, profile); err != nil {
		return core.NewChatError("memory.save_profile", err)
	}
	s.cacheProfile(ctx, profile)
	return nil
}

// AddMemory merges an extraction into the user's profile and persists the
// result. The emotion analysis, when present, tags extracted experiences;
// aggregate emotion stats are owned by RecordExchange so each exchange counts
// once.
func (s *Service) AddMemory(ctx context.Context, userID string, extraction *core.Extraction, analysis *core.EmotionAnalysis) error {
	if extraction.Empty() {
		return nil
	}

	profile, err := s.UserProfile(ctx, userID)
	if err != nil {
		return err
	}

	if extraction != nil {
		for _, fact := range extraction.Facts {
			profile.AddFact(fact, "general", extractedFactConfidence)
			// A name fact also fills the identity so greetings can use it.
			if name, ok := strings.CutPrefix(fact, "Name is "); ok && profile.Identity.Name == "" {
				profile.Identity.Name = name
			}
		}
		profile.AddInterests(extraction.Interests...)
		for _, event := range extraction.Experiences {
			emotion := core.EmotionNeutral
			if analysis != nil {
				emotion = analysis.Emotion
			}
			profile.AddExperience(event, emotion, 5)
		}
		for _, rel := range extraction.Relationships {
			profile.AddRelationship(rel)
		}
		for key, value := range extraction.Preferences {
			applyPreference(profile, key, value)
		}
	}
	return s.SaveProfile(ctx, profile)
}

// applyPreference maps a loosely-typed extracted preference onto the profile.
// Unknown keys and invalid values are recorded as preferred topics so the
// information is not lost.
func applyPreference(profile *core.UserProfile, key, value string) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return
	}
	switch strings.ToLower(key) {
	case "communicationstyle", "communication_style":
		style := core.CommunicationStyle(value)
		if style.Valid() {
			profile.Identity.CommunicationStyle = style
		}
	case "conversationlength", "conversation_length":
		length := core.ConversationLength(value)
		if length.Valid() {
			profile.Preferences.ConversationLength = length
		}
	case "responsestyle", "response_style":
		style := core.ResponseStyle(value)
		if style.Valid() {
			profile.Preferences.ResponseStyle = style
		}
	default:
		for _, topic := range profile.Preferences.Topics {
			if strings.EqualFold(topic, value) {
				return
			}
		}
		profile.Preferences.Topics = append(profile.Preferences.Topics, value)
	}
}

// AppendMessage appends one message to a session's conversation, creating
// the conversation on first use, and persists it.
func (s *Service) AppendMessage(ctx context.Context, userID, sessionID string, msg core.Message) (*core.Conversation, error) {
	conv, err := s.conversation(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		conv = core.NewConversation(userID, sessionID)
	}

	conv.Append(msg)
	if err := s.store.SaveConversation(ctx, conv); err != nil {
		return nil, core.NewChatError("memory.append", err)
	}
	s.cacheConversation(ctx, conv)
	return conv, nil
}

// SetContext updates a session's rolling context (current mood, topic) and
// persists it. Missing conversations are ignored.
func (s *Service) SetContext(ctx context.Context, userID, sessionID string, convCtx core.ConversationContext) error {
	conv, err := s.conversation(ctx, userID, sessionID)
	if err != nil || conv == nil {
		return err
	}
	conv.Context = convCtx
	if err := s.store.SaveConversation(ctx, conv); err != nil {
		return core.NewChatError("memory.set_context", err)
	}
	s.cacheConversation(ctx, conv)
	return nil
}

// RecentMessages returns the newest messages of one session, oldest first.
// Store failures yield an empty slice so the conversation can proceed
// without history.
func (s *Service) RecentMessages(ctx context.Context, userID, sessionID string, limit int) []core.Message {
	conv, err := s.conversation(ctx, userID, sessionID)
	if err != nil {
		s.logger.Warn("history load failed, continuing without context", "user", userID, "session", sessionID, "err", err)
		return nil
	}
	if conv == nil {
		return nil
	}
	return conv.Recent(limit)
}

// History returns a user's message history, oldest first.
//
// With a session ID it returns that session's messages. Without one it
// merges all of the user's sessions, sorted by timestamp. limit <= 0 uses
// the default of 50 messages.
func (s *Service) History(ctx context.Context, userID, sessionID string, limit int) ([]core.Message, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	if sessionID != "" {
		conv, err := s.conversation(ctx, userID, sessionID)
		if err != nil {
			return []core.Message{}, nil
		}
		if conv == nil {
			return []core.Message{}, nil
		}
		return conv.Recent(limit), nil
	}

	convs, err := s.store.ListConversations(ctx, userID, nil)
	if err != nil {
		s.logger.Warn("history list failed, returning empty history", "user", userID, "err", err)
		return []core.Message{}, nil
	}

	var merged []core.Message
	for _, conv := range convs {
		merged = append(merged, conv.Messages...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	if len(merged) > limit {
		merged = merged[len(merged)-limit:]
	}
	if merged == nil {
		merged = []core.Message{}
	}
	return merged, nil
}

// Clear deletes conversation history. With a session ID it deletes that
// session; without one it deletes all of the user's sessions. Cache entries
// are invalidated either way.
func (s *Service) Clear(ctx context.Context, userID, sessionID string) error {
	if sessionID != "" {
		if err := s.store.DeleteConversation(ctx, userID, sessionID); err != nil {
			return core.NewChatError("memory.clear", err)
		}
		s.invalidateConversation(ctx, userID, sessionID)
		return nil
	}

	convs, err := s.store.ListConversations(ctx, userID, nil)
	if err == nil {
		for _, conv := range convs {
			s.invalidateConversation(ctx, userID, conv.SessionID)
		}
	}
	if err := s.store.DeleteUserConversations(ctx, userID); err != nil {
		return core.NewChatError("memory.clear", err)
	}
	return nil
}

// Analytics summarizes a user's activity over the trailing window.
//
// Sessions whose last update is older than the window are excluded from the
// session and message counts and from the emotional trends. Frequent topics
// come from the profile's lifetime counters.
func (s *Service) Analytics(ctx context.Context, userID string, windowDays int) (*core.Analytics, error) {
	if windowDays <= 0 {
		windowDays = 7
	}
	since := time.Now().AddDate(0, 0, -windowDays)

	convs, err := s.store.ListConversations(ctx, userID, &store.ListOptions{UpdatedSince: since})
	if err != nil {
		return nil, core.NewChatError("memory.analytics", err)
	}

	analytics := &core.Analytics{
		EmotionalTrends: []core.EmotionTrend{},
		FrequentTopics:  []string{},
	}

	emotionCounts := map[core.Emotion]int{}
	for _, conv := range convs {
		analytics.TotalSessions++
		analytics.TotalMessages += len(conv.Messages)
		for _, msg := range conv.Messages {
			if msg.Role == core.RoleUser && msg.Emotion != "" {
				emotionCounts[msg.Emotion]++
			}
		}
	}
	if analytics.TotalSessions > 0 {
		analytics.AverageSessionLength = int(math.Round(float64(analytics.TotalMessages) / float64(analytics.TotalSessions)))
	}

	for emotion, count := range emotionCounts {
		analytics.EmotionalTrends = append(analytics.EmotionalTrends, core.EmotionTrend{Emotion: emotion, Count: count})
	}
	sort.Slice(analytics.EmotionalTrends, func(i, j int) bool {
		if analytics.EmotionalTrends[i].Count != analytics.EmotionalTrends[j].Count {
			return analytics.EmotionalTrends[i].Count > analytics.EmotionalTrends[j].Count
		}
		return analytics.EmotionalTrends[i].Emotion < analytics.EmotionalTrends[j].Emotion
	})

	if profile, err := s.UserProfile(ctx, userID); err == nil {
		topics := append([]core.TopicCount(nil), profile.Stats.FrequentTopics...)
		sort.Slice(topics, func(i, j int) bool { return topics[i].Count > topics[j].Count })
		for i, topic := range topics {
			if i == 5 {
				break
			}
			analytics.FrequentTopics = append(analytics.FrequentTopics, topic.Topic)
		}
	}

	return analytics, nil
}

// Summarize produces a short summary of one session and stores it on the
// conversation. With a model configured the summary is generated; otherwise
// a counting fallback is used.
func (s *Service) Summarize(ctx context.Context, userID, sessionID string) (string, error) {
	conv, err := s.conversation(ctx, userID, sessionID)
	if err != nil {
		return "", core.NewChatError("memory.summarize", err)
	}
	if conv == nil || len(conv.Messages) == 0 {
		return "", core.NewChatError("memory.summarize", core.ErrNotFound)
	}

	summary := s.fallbackSummary(conv)
	if s.llm != nil {
		prompt := "Summarize this conversation in 2-3 sentences, focusing on what the user shared and how they felt:\n\n" +
			formatWindow(conv.Messages)
		if generated, err := s.llm.Generate(ctx, prompt, llm.WithMaxTokens(200)); err == nil {
			if generated = strings.TrimSpace(generated); generated != "" {
				summary = generated
			}
		} else {
			s.logger.Warn("summary generation failed, using fallback", "user", userID, "err", err)
		}
	}

	conv.Summary = summary
	if err := s.store.SaveConversation(ctx, conv); err != nil {
		s.logger.Warn("summary save failed", "user", userID, "session", sessionID, "err", err)
	} else {
		s.cacheConversation(ctx, conv)
	}
	return summary, nil
}

func (s *Service) fallbackSummary(conv *core.Conversation) string {
	topic := conv.Context.CurrentTopic
	if topic == "" {
		topic = "general conversation"
	}
	minutes := int(conv.UpdatedAt.Sub(conv.CreatedAt).Round(time.Minute) / time.Minute)
	return fmt.Sprintf("Conversation with %d messages about %s. Duration: %d minutes.",
		len(conv.Messages), topic, minutes)
}

// ContextualMemory returns the stored facts and experiences most relevant to
// the current message, scored by keyword overlap. It never fails; with no
// overlap it returns nil.
func (s *Service) ContextualMemory(ctx context.Context, userID, message string, limit int) []string {
	if limit <= 0 {
		limit = 3
	}
	profile, err := s.UserProfile(ctx, userID)
	if err != nil {
		return nil
	}

	words := keywords(message)
	if len(words) == 0 {
		return nil
	}

	type scored struct {
		text  string
		score int
	}
	var candidates []scored
	for _, fact := range profile.Memory.ImportantFacts {
		if score := overlap(words, fact.Fact); score > 0 {
			candidates = append(candidates, scored{fact.Fact, score})
		}
	}
	for _, exp := range profile.Memory.Experiences {
		if score := overlap(words, exp.Event); score > 0 {
			candidates = append(candidates, scored{exp.Event, score + exp.Importance/5})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	var result []string
	for i, c := range candidates {
		if i == limit {
			break
		}
		result = append(result, c.text)
	}
	return result
}

// RecordExchange updates the profile's aggregate stats after one completed
// exchange. Failures are logged and swallowed; stats are best-effort.
func (s *Service) RecordExchange(ctx context.Context, userID string, messageCount int, emotion core.Emotion, topic string) {
	profile, err := s.UserProfile(ctx, userID)
	if err != nil {
		return
	}
	profile.IncrementStats(messageCount)
	profile.RecordEmotion(emotion, topic)
	profile.RecordTopic(topic)
	if err := s.SaveProfile(ctx, profile); err != nil {
		s.logger.Warn("stats update failed", "user", userID, "err", err)
	}
}

// CleanupInactive deletes inactive conversations last updated before maxAge
// ago and returns how many were removed.
func (s *Service) CleanupInactive(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)
	deleted, err := s.store.DeleteInactiveBefore(ctx, cutoff)
	if err != nil {
		return 0, core.NewChatError("memory.cleanup", err)
	}
	return deleted, nil
}

// Close releases the underlying store and cache connections.
func (s *Service) Close() error {
	if s.cache != nil {
		_ = s.cache.Close()
	}
	return s.store.Close()
}

// conversation loads one session, cache first. A (nil, nil) return means the
// session does not exist yet.
func (s *Service) conversation(ctx context.Context, userID, sessionID string) (*core.Conversation, error) {
	if userID == "" || sessionID == "" {
		return nil, core.NewChatError("memory.conversation", core.ErrInvalidInput)
	}
	if s.cache != nil {
		if conv, err := s.cache.GetConversation(ctx, userID, sessionID); err == nil && conv != nil {
			return conv, nil
		}
	}
	conv, err := s.store.GetConversation(ctx, userID, sessionID)
	if err != nil {
		return nil, core.NewChatError("memory.conversation", err)
	}
	if conv != nil {
		s.cacheConversation(ctx, conv)
	}
	return conv, nil
}

func (s *Service) cacheProfile(ctx context.Context, profile *core.UserProfile) {
	if s.cache == nil || profile.Temporary {
		return
	}
	if err := s.cache.SetProfile(ctx, profile); err != nil {
		s.logger.Debug("profile cache write failed", "user", profile.UserID, "err", err)
	}
}

func (s *Service) cacheConversation(ctx context.Context, conv *core.Conversation) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetConversation(ctx, conv); err != nil {
		s.logger.Debug("conversation cache write failed", "user", conv.UserID, "session", conv.SessionID, "err", err)
	}
}

func (s *Service) invalidateConversation(ctx context.Context, userID, sessionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateConversation(ctx, userID, sessionID); err != nil {
		s.logger.Debug("conversation cache invalidate failed", "user", userID, "session", sessionID, "err", err)
	}
}

// stopwords excluded from contextual memory matching.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true,
	"with": true, "have": true, "what": true, "your": true, "about": true,
	"you": true, "are": true, "was": true, "but": true, "not": true,
}

func keywords(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	var words []string
	for _, field := range fields {
		word := strings.Trim(field, ".,!?'\"")
		if len(word) > 2 && !stopwords[word] {
			words = append(words, word)
		}
	}
	return words
}

func overlap(words []string, text string) int {
	lower := strings.ToLower(text)
	score := 0
	for _, word := range words {
		if strings.Contains(lower, word) {
			score++
		}
	}
	return score
}
