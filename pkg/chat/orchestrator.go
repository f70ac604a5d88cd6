// Package chat orchestrates one conversational exchange: emotion analysis,
// memory recall, prompt composition, model invocation with fallback, and
// the persistence of both sides of the exchange.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/companionlabs/companion-go/pkg/core"
	"github.com/companionlabs/companion-go/pkg/emotion"
	"github.com/companionlabs/companion-go/pkg/llm"
	"github.com/companionlabs/companion-go/pkg/memory"
	"github.com/companionlabs/companion-go/pkg/prompt"
)

// recentWindow is how many prior messages feed the generation prompt.
const recentWindow = 10

// SendMessageRequest is one inbound user message.
type SendMessageRequest struct {
	Message   string `json:"message"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId,omitempty"`
}

// ResponseContext echoes the conversational state back to the client.
type ResponseContext struct {
	UserMood           core.Emotion `json:"userMood"`
	ConversationLength int          `json:"conversationLength"`
}

// SendMessageResponse is the assistant's reply plus analysis metadata.
type SendMessageResponse struct {
	Message         string               `json:"message"`
	SessionID       string               `json:"sessionId"`
	Timestamp       time.Time            `json:"timestamp"`
	EmotionAnalysis core.EmotionAnalysis `json:"emotionAnalysis"`
	Context         ResponseContext      `json:"context"`

	// Note is set when the exchange ran degraded, e.g. without persistence.
	Note string `json:"note,omitempty"`
}

// Orchestrator runs the send-message pipeline. The model provider is
// optional: without one, replies come from the fallback pool and analysis
// from the keyword classifier, but the exchange still completes.
type Orchestrator struct {
	memory     *memory.Service
	llm        llm.Provider // nil when no model is configured
	classifier *emotion.Classifier
	extractor  *memory.Extractor
	logger     *log.Logger
}

// NewOrchestrator wires the pipeline. provider may be nil.
func NewOrchestrator(svc *memory.Service, provider llm.Provider, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		memory:     svc,
		llm:        provider,
		classifier: emotion.NewClassifier(provider),
		extractor:  memory.NewExtractor(provider),
		logger:     logger,
	}
}

// SendMessage processes one user message end to end.
//
// The pipeline: validate, resolve the session, classify the message's
// emotion, load the profile and recent history, compose the prompt, generate
// a reply (falling back on any model failure), persist both messages, merge
// extracted information into the profile, and update aggregate stats.
//
// Persistence failures degrade the exchange instead of failing it: the reply
// is still returned, with Note set.
func (o *Orchestrator) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	if strings.TrimSpace(req.Message) == "" || req.UserID == "" {
		return nil, core.NewChatError("chat.send", core.ErrInvalidInput)
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	analysis := o.classifier.Classify(ctx, req.Message)

	profile, err := o.memory.UserProfile(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	history := o.memory.RecentMessages(ctx, req.UserID, sessionID, recentWindow)
	memories := o.memory.ContextualMemory(ctx, req.UserID, req.Message, 3)

	userMsg := core.Message{
		Role:      core.RoleUser,
		Content:   req.Message,
		Timestamp: time.Now(),
		Emotion:   analysis.Emotion,
		Sentiment: analysis.Sentiment,
	}
	window := append(append([]core.Message{}, history...), userMsg)

	convCtx := core.ConversationContext{
		UserMood:          analysis.Emotion,
		ConversationStyle: profile.Identity.CommunicationStyle,
		CurrentTopic:      topicOf(req.Message),
		LastInteraction:   time.Now(),
	}

	reply := o.generate(ctx, profile, convCtx, window, memories)

	assistantMsg := core.Message{
		Role:      core.RoleAssistant,
		Content:   reply,
		Timestamp: time.Now(),
	}

	note := o.persistExchange(ctx, req.UserID, sessionID, userMsg, assistantMsg, convCtx, window, analysis)

	return &SendMessageResponse{
		Message:         reply,
		SessionID:       sessionID,
		Timestamp:       time.Now(),
		EmotionAnalysis: analysis,
		Context: ResponseContext{
			UserMood:           analysis.Emotion,
			ConversationLength: len(window),
		},
		Note: note,
	}, nil
}

// generate produces the assistant's reply, falling back to a canned response
// on any model failure.
func (o *Orchestrator) generate(ctx context.Context, profile *core.UserProfile, convCtx core.ConversationContext, window []core.Message, memories []string) string {
	if o.llm == nil {
		return FallbackReply(profile)
	}

	composed := prompt.Compose(profile, convCtx, window, memories)
	reply, err := o.llm.Generate(ctx, composed)
	if err != nil {
		o.logger.Warn("generation failed, using fallback reply", "user", profile.UserID, "err", err)
		return FallbackReply(profile)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return FallbackReply(profile)
	}
	return reply
}

// persistExchange stores both messages, merges extracted memory, and updates
// stats. Any failure is logged and reported through the returned note.
func (o *Orchestrator) persistExchange(ctx context.Context, userID, sessionID string, userMsg, assistantMsg core.Message, convCtx core.ConversationContext, window []core.Message, analysis core.EmotionAnalysis) string {
	if _, err := o.memory.AppendMessage(ctx, userID, sessionID, userMsg); err != nil {
		o.logger.Warn("could not save conversation", "user", userID, "session", sessionID, "err", err)
		return "Conversation not saved"
	}
	if _, err := o.memory.AppendMessage(ctx, userID, sessionID, assistantMsg); err != nil {
		o.logger.Warn("could not save assistant reply", "user", userID, "session", sessionID, "err", err)
		return "Conversation not saved"
	}
	if err := o.memory.SetContext(ctx, userID, sessionID, convCtx); err != nil {
		o.logger.Warn("could not update conversation context", "user", userID, "session", sessionID, "err", err)
	}

	extraction := o.extractor.Extract(ctx, window)
	if err := o.memory.AddMemory(ctx, userID, extraction, &analysis); err != nil {
		o.logger.Warn("could not update user memory", "user", userID, "err", err)
	}

	o.memory.RecordExchange(ctx, userID, 2, analysis.Emotion, convCtx.CurrentTopic)
	return ""
}

// GeneratePersona creates a chatbot persona matched to the user and stores
// it on the profile. Without a model, or when generation fails, the default
// persona is returned.
func (o *Orchestrator) GeneratePersona(ctx context.Context, userID string) (core.Persona, error) {
	profile, err := o.memory.UserProfile(ctx, userID)
	if err != nil {
		return core.Persona{}, err
	}

	persona := prompt.DefaultPersona()
	if o.llm != nil {
		reply, err := o.llm.Generate(ctx, prompt.PersonaPrompt(profile), llm.WithJSONOnly())
		if err != nil {
			o.logger.Warn("persona generation failed, using default", "user", userID, "err", err)
		} else {
			persona = prompt.ParsePersona(reply)
		}
	}

	if !profile.Temporary {
		if _, err := o.memory.UpdateProfile(ctx, userID, &core.ProfilePatch{Persona: &persona}); err != nil {
			o.logger.Warn("could not save persona to profile", "user", userID, "err", err)
		}
	}
	return persona, nil
}

// Summarize produces and stores a summary of one session.
func (o *Orchestrator) Summarize(ctx context.Context, userID, sessionID string) (string, error) {
	return o.memory.Summarize(ctx, userID, sessionID)
}

// topicOf derives a rough current topic from the message: the first
// non-trivial word, lowercased. Good enough for the frequent-topics counter.
func topicOf(message string) string {
	for _, field := range strings.Fields(strings.ToLower(message)) {
		word := strings.Trim(field, ".,!?'\"")
		if len(word) > 3 {
			return word
		}
	}
	return "general conversation"
}
