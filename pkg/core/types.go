// Package core provides the domain model and configuration for the companion
// chatbot backend: user profiles, accumulated memory, conversations, and the
// analysis results exchanged between components.
package core

import (
	"sort"
	"strings"
	"time"
)

// CommunicationStyle describes how a user prefers to communicate.
type CommunicationStyle string

const (
	StyleFormal  CommunicationStyle = "formal"
	StyleCasual  CommunicationStyle = "casual"
	StylePlayful CommunicationStyle = "playful"
	StyleSerious CommunicationStyle = "serious"
)

// Valid reports whether the value is one of the known styles.
func (s CommunicationStyle) Valid() bool {
	switch s {
	case StyleFormal, StyleCasual, StylePlayful, StyleSerious:
		return true
	}
	return false
}

// ConversationLength is the user's preferred reply length.
type ConversationLength string

const (
	LengthBrief    ConversationLength = "brief"
	LengthModerate ConversationLength = "moderate"
	LengthDetailed ConversationLength = "detailed"
)

// Valid reports whether the value is one of the known lengths.
func (l ConversationLength) Valid() bool {
	switch l {
	case LengthBrief, LengthModerate, LengthDetailed:
		return true
	}
	return false
}

// ResponseStyle is the tone the assistant should answer with.
type ResponseStyle string

const (
	ResponseDirect     ResponseStyle = "direct"
	ResponseEmpathetic ResponseStyle = "empathetic"
	ResponseHumorous   ResponseStyle = "humorous"
	ResponseAnalytical ResponseStyle = "analytical"
)

// Valid reports whether the value is one of the known styles.
func (s ResponseStyle) Valid() bool {
	switch s {
	case ResponseDirect, ResponseEmpathetic, ResponseHumorous, ResponseAnalytical:
		return true
	}
	return false
}

// ReminderFrequency controls how often the assistant volunteers remembered facts.
type ReminderFrequency string

const (
	RemindNever        ReminderFrequency = "never"
	RemindOccasionally ReminderFrequency = "occasionally"
	RemindFrequently   ReminderFrequency = "frequently"
)

// GoalStatus is the lifecycle state of a user goal.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalPaused    GoalStatus = "paused"
	GoalAbandoned GoalStatus = "abandoned"
)

// Emotion is a coarse emotion label attached to messages and experiences.
type Emotion string

const (
	EmotionHappy      Emotion = "happy"
	EmotionSad        Emotion = "sad"
	EmotionAngry      Emotion = "angry"
	EmotionExcited    Emotion = "excited"
	EmotionCurious    Emotion = "curious"
	EmotionFrustrated Emotion = "frustrated"
	EmotionNeutral    Emotion = "neutral"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Fact is a short, deduplicated, confidence-scored statement about a user.
type Fact struct {
	// Fact is the statement text, e.g. "Name is John".
	Fact string `json:"fact"`

	// Confidence is how certain the extraction was, in [0, 1].
	Confidence float64 `json:"confidence"`

	// LastMentioned is when the fact was last seen in conversation.
	LastMentioned time.Time `json:"lastMentioned"`

	// Category groups related facts ("general", "work", "health", ...).
	Category string `json:"category,omitempty"`
}

// Relationship is a person the user has mentioned.
type Relationship struct {
	Name     string `json:"name"`
	Relation string `json:"relationship,omitempty"`
	Details  string `json:"details,omitempty"`
}

// Experience is a significant event the user shared.
type Experience struct {
	Event string    `json:"event"`
	Date  time.Time `json:"date"`

	// Emotion is the emotion the user associated with the event.
	Emotion Emotion `json:"emotion,omitempty"`

	// Importance ranks the experience from 1 (trivial) to 10 (defining).
	Importance int `json:"importance"`
}

// Goal is something the user is working toward.
type Goal struct {
	Goal     string     `json:"goal"`
	Status   GoalStatus `json:"status"`
	Deadline *time.Time `json:"deadline,omitempty"`

	// Progress is completion in percent, 0-100.
	Progress int `json:"progress"`
}

// Identity holds the static attributes of a user.
type Identity struct {
	Name               string             `json:"name,omitempty"`
	PreferredName      string             `json:"preferredName,omitempty"`
	Age                int                `json:"age,omitempty"`
	Location           string             `json:"location,omitempty"`
	Occupation         string             `json:"occupation,omitempty"`
	Interests          []string           `json:"interests,omitempty"`
	Hobbies            []string           `json:"hobbies,omitempty"`
	PersonalityTraits  []string           `json:"personalityTraits,omitempty"`
	CommunicationStyle CommunicationStyle `json:"communicationStyle"`
}

// Preferences holds the user's stated conversational preferences.
type Preferences struct {
	Topics             []string           `json:"topics,omitempty"`
	ConversationLength ConversationLength `json:"conversationLength"`
	ResponseStyle      ResponseStyle      `json:"responseStyle"`
	ReminderFrequency  ReminderFrequency  `json:"reminderFrequency"`
}

// MemoryBank is the structured memory accumulated for one user.
type MemoryBank struct {
	ImportantFacts []Fact         `json:"importantFacts"`
	Relationships  []Relationship `json:"relationships"`
	Experiences    []Experience   `json:"experiences"`
	Goals          []Goal         `json:"goals"`
}

// TopicCount tracks how often a topic has come up.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// EmotionalPattern tracks how often an emotion has been observed.
type EmotionalPattern struct {
	Emotion   Emotion  `json:"emotion"`
	Frequency int      `json:"frequency"`
	Contexts  []string `json:"contexts,omitempty"`
}

// ConversationStats are aggregate statistics over all of a user's sessions.
//
// AverageSessionLength is derived: it is always recomputed as
// TotalMessages/TotalSessions by IncrementStats and never set independently.
type ConversationStats struct {
	TotalSessions        int                `json:"totalSessions"`
	TotalMessages        int                `json:"totalMessages"`
	AverageSessionLength float64            `json:"averageSessionLength"`
	LastActive           *time.Time         `json:"lastActive,omitempty"`
	FrequentTopics       []TopicCount       `json:"frequentTopics"`
	EmotionalPatterns    []EmotionalPattern `json:"emotionalPatterns"`
}

// Persona is the fixed identity the assistant presents to one user.
type Persona struct {
	Name                 string `json:"name"`
	Personality          string `json:"personality"`
	Backstory            string `json:"backstory"`
	RelationshipWithUser string `json:"relationshipWithUser"`
}

// UserProfile is the persistent per-user record of identity, preferences,
// and accumulated memory. There is exactly one profile per user ID.
//
// Profiles are created lazily on first contact and never hard-deleted in
// normal operation; only conversation records are subject to cleanup.
type UserProfile struct {
	// ID is the store-assigned record ID (zero for unsaved profiles).
	ID int64 `json:"-"`

	UserID      string            `json:"userId"`
	Identity    Identity          `json:"profile"`
	Preferences Preferences       `json:"preferences"`
	Memory      MemoryBank        `json:"memory"`
	Stats       ConversationStats `json:"conversationHistory"`

	// Persona is the generated chatbot persona, cached on the profile
	// once generated. Nil until persona generation runs for the user.
	Persona *Persona `json:"chatbotPersona,omitempty"`

	// Temporary marks an in-memory profile returned when the store is
	// unreachable. Temporary profiles are never persisted.
	Temporary bool `json:"isTemporary,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewProfile returns a default profile for the given user: casual
// communication style, empathetic response style, moderate conversation
// length, all memory lists empty, all stats zero.
func NewProfile(userID string) *UserProfile {
	now := time.Now()
	return &UserProfile{
		UserID: userID,
		Identity: Identity{
			CommunicationStyle: StyleCasual,
		},
		Preferences: Preferences{
			ConversationLength: LengthModerate,
			ResponseStyle:      ResponseEmpathetic,
			ReminderFrequency:  RemindOccasionally,
		},
		Memory: MemoryBank{
			ImportantFacts: []Fact{},
			Relationships:  []Relationship{},
			Experiences:    []Experience{},
			Goals:          []Goal{},
		},
		Stats: ConversationStats{
			FrequentTopics:    []TopicCount{},
			EmotionalPatterns: []EmotionalPattern{},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTemporaryProfile returns a default profile marked Temporary, used when
// the profile store is unreachable so conversation can proceed without
// persistent memory for the request.
func NewTemporaryProfile(userID string) *UserProfile {
	p := NewProfile(userID)
	p.Temporary = true
	return p
}

// DisplayName returns the name to address the user by: preferred name,
// then name, then "friend".
func (p *UserProfile) DisplayName() string {
	if p.Identity.PreferredName != "" {
		return p.Identity.PreferredName
	}
	if p.Identity.Name != "" {
		return p.Identity.Name
	}
	return "friend"
}

// AddFact records a fact about the user.
//
// Facts deduplicate case-insensitively by text: a repeated fact refreshes
// LastMentioned and raises Confidence to the max of old and new instead of
// creating a duplicate entry.
func (p *UserProfile) AddFact(fact, category string, confidence float64) {
	if fact == "" {
		return
	}
	now := time.Now()
	for i := range p.Memory.ImportantFacts {
		if strings.EqualFold(p.Memory.ImportantFacts[i].Fact, fact) {
			p.Memory.ImportantFacts[i].LastMentioned = now
			if confidence > p.Memory.ImportantFacts[i].Confidence {
				p.Memory.ImportantFacts[i].Confidence = confidence
			}
			return
		}
	}
	p.Memory.ImportantFacts = append(p.Memory.ImportantFacts, Fact{
		Fact:          fact,
		Category:      category,
		Confidence:    confidence,
		LastMentioned: now,
	})
}

// AddExperience appends an experience. Importance outside 1-10 is clamped.
func (p *UserProfile) AddExperience(event string, emotion Emotion, importance int) {
	if event == "" {
		return
	}
	if importance < 1 {
		importance = 1
	}
	if importance > 10 {
		importance = 10
	}
	if emotion == "" {
		emotion = EmotionNeutral
	}
	p.Memory.Experiences = append(p.Memory.Experiences, Experience{
		Event:      event,
		Date:       time.Now(),
		Emotion:    emotion,
		Importance: importance,
	})
}

// AddRelationship records a mentioned person, deduplicated by name
// (case-insensitive). Entries without a name are dropped.
func (p *UserProfile) AddRelationship(rel Relationship) {
	if rel.Name == "" {
		return
	}
	for _, existing := range p.Memory.Relationships {
		if strings.EqualFold(existing.Name, rel.Name) {
			return
		}
	}
	p.Memory.Relationships = append(p.Memory.Relationships, rel)
}

// AddInterests merges interests into the identity as a set (case-insensitive).
func (p *UserProfile) AddInterests(interests ...string) {
	for _, interest := range interests {
		interest = strings.TrimSpace(interest)
		if interest == "" {
			continue
		}
		found := false
		for _, existing := range p.Identity.Interests {
			if strings.EqualFold(existing, interest) {
				found = true
				break
			}
		}
		if !found {
			p.Identity.Interests = append(p.Identity.Interests, interest)
		}
	}
}

// IncrementStats records one completed exchange of messageCount messages.
// AverageSessionLength is recomputed from the totals.
func (p *UserProfile) IncrementStats(messageCount int) {
	p.Stats.TotalSessions++
	p.Stats.TotalMessages += messageCount
	now := time.Now()
	p.Stats.LastActive = &now
	if p.Stats.TotalSessions > 0 {
		p.Stats.AverageSessionLength = float64(p.Stats.TotalMessages) / float64(p.Stats.TotalSessions)
	}
}

// RecordEmotion bumps the frequency counter for an observed emotion.
func (p *UserProfile) RecordEmotion(emotion Emotion, context string) {
	if emotion == "" {
		return
	}
	for i := range p.Stats.EmotionalPatterns {
		if p.Stats.EmotionalPatterns[i].Emotion == emotion {
			p.Stats.EmotionalPatterns[i].Frequency++
			if context != "" {
				p.Stats.EmotionalPatterns[i].Contexts = append(p.Stats.EmotionalPatterns[i].Contexts, context)
			}
			return
		}
	}
	pattern := EmotionalPattern{Emotion: emotion, Frequency: 1}
	if context != "" {
		pattern.Contexts = []string{context}
	}
	p.Stats.EmotionalPatterns = append(p.Stats.EmotionalPatterns, pattern)
}

// RecordTopic bumps the frequency counter for a conversation topic.
func (p *UserProfile) RecordTopic(topic string) {
	if topic == "" {
		return
	}
	for i := range p.Stats.FrequentTopics {
		if strings.EqualFold(p.Stats.FrequentTopics[i].Topic, topic) {
			p.Stats.FrequentTopics[i].Count++
			return
		}
	}
	p.Stats.FrequentTopics = append(p.Stats.FrequentTopics, TopicCount{Topic: topic, Count: 1})
}

// ProfilePatch is a partial profile update. Nil fields are left unchanged;
// slice fields replace the existing value when non-nil.
type ProfilePatch struct {
	Name               *string             `json:"name,omitempty"`
	PreferredName      *string             `json:"preferredName,omitempty"`
	Age                *int                `json:"age,omitempty"`
	Location           *string             `json:"location,omitempty"`
	Occupation         *string             `json:"occupation,omitempty"`
	Interests          []string            `json:"interests,omitempty"`
	CommunicationStyle *CommunicationStyle `json:"communicationStyle,omitempty"`
	Topics             []string            `json:"topics,omitempty"`
	ConversationLength *ConversationLength `json:"conversationLength,omitempty"`
	ResponseStyle      *ResponseStyle      `json:"responseStyle,omitempty"`
	ReminderFrequency  *ReminderFrequency  `json:"reminderFrequency,omitempty"`
	Persona            *Persona            `json:"chatbotPersona,omitempty"`
}

// Apply merges the patch into the profile.
func (p *UserProfile) Apply(patch *ProfilePatch) {
	if patch == nil {
		return
	}
	if patch.Name != nil {
		p.Identity.Name = *patch.Name
	}
	if patch.PreferredName != nil {
		p.Identity.PreferredName = *patch.PreferredName
	}
	if patch.Age != nil {
		p.Identity.Age = *patch.Age
	}
	if patch.Location != nil {
		p.Identity.Location = *patch.Location
	}
	if patch.Occupation != nil {
		p.Identity.Occupation = *patch.Occupation
	}
	if patch.Interests != nil {
		p.Identity.Interests = patch.Interests
	}
	if patch.CommunicationStyle != nil {
		p.Identity.CommunicationStyle = *patch.CommunicationStyle
	}
	if patch.Topics != nil {
		p.Preferences.Topics = patch.Topics
	}
	if patch.ConversationLength != nil {
		p.Preferences.ConversationLength = *patch.ConversationLength
	}
	if patch.ResponseStyle != nil {
		p.Preferences.ResponseStyle = *patch.ResponseStyle
	}
	if patch.ReminderFrequency != nil {
		p.Preferences.ReminderFrequency = *patch.ReminderFrequency
	}
	if patch.Persona != nil {
		p.Persona = patch.Persona
	}
	p.UpdatedAt = time.Now()
}

// Message is a single message in a conversation.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Emotion is the classified emotion of the message, if it was analyzed.
	Emotion Emotion `json:"emotion,omitempty"`

	// Sentiment is the sentiment score in [-1, 1].
	Sentiment float64 `json:"sentiment,omitempty"`
}

// ConversationContext is the rolling context of one session.
type ConversationContext struct {
	CurrentTopic      string             `json:"currentTopic,omitempty"`
	UserMood          Emotion            `json:"userMood,omitempty"`
	ConversationStyle CommunicationStyle `json:"conversationStyle"`
	LastInteraction   time.Time          `json:"lastInteraction"`
}

// Conversation is one bounded conversation thread, keyed by user and session.
//
// Messages are append-only and non-decreasing in timestamp as stored, but
// retrieval sorts defensively to handle out-of-order inserts.
type Conversation struct {
	// ID is the store-assigned record ID (zero for unsaved conversations).
	ID int64 `json:"-"`

	UserID    string              `json:"userId"`
	SessionID string              `json:"sessionId"`
	Messages  []Message           `json:"messages"`
	Context   ConversationContext `json:"context"`
	Summary   string              `json:"summary,omitempty"`
	IsActive  bool                `json:"isActive"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// NewConversation returns an empty active conversation for a user session.
func NewConversation(userID, sessionID string) *Conversation {
	now := time.Now()
	return &Conversation{
		UserID:    userID,
		SessionID: sessionID,
		Messages:  []Message{},
		Context: ConversationContext{
			ConversationStyle: StyleCasual,
			LastInteraction:   now,
		},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a message and refreshes the interaction timestamps.
func (c *Conversation) Append(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	c.Messages = append(c.Messages, msg)
	c.Context.LastInteraction = msg.Timestamp
	c.IsActive = true
	c.UpdatedAt = time.Now()
}

// Recent returns the most recent limit messages in oldest-first order.
func (c *Conversation) Recent(limit int) []Message {
	msgs := make([]Message, len(c.Messages))
	copy(msgs, c.Messages)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs
}

// EmotionAnalysis is the result of classifying a message's emotional tone.
type EmotionAnalysis struct {
	Emotion   Emotion `json:"emotion"`
	Sentiment float64 `json:"sentiment"`
	Mood      string  `json:"mood"`
}

// Extraction is the structured information pulled from a conversation window.
type Extraction struct {
	Facts         []string          `json:"facts"`
	Interests     []string          `json:"interests"`
	Preferences   map[string]string `json:"preferences"`
	Experiences   []string          `json:"experiences"`
	Relationships []Relationship    `json:"relationships"`
}

// Empty reports whether the extraction carries no information.
func (e *Extraction) Empty() bool {
	return e == nil ||
		(len(e.Facts) == 0 && len(e.Interests) == 0 && len(e.Preferences) == 0 &&
			len(e.Experiences) == 0 && len(e.Relationships) == 0)
}

// EmotionTrend is one entry of the per-window emotion histogram.
type EmotionTrend struct {
	Emotion Emotion `json:"emotion"`
	Count   int     `json:"count"`
}

// Analytics summarizes a user's conversations over a time window.
type Analytics struct {
	TotalSessions        int            `json:"totalSessions"`
	TotalMessages        int            `json:"totalMessages"`
	AverageSessionLength int            `json:"averageSessionLength"`
	EmotionalTrends      []EmotionTrend `json:"emotionalTrends"`
	FrequentTopics       []string       `json:"frequentTopics"`
}
