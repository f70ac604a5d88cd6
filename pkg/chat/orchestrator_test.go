package chat_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/companionlabs/companion-go/pkg/chat"
	"github.com/companionlabs/companion-go/pkg/core"
	"github.com/companionlabs/companion-go/pkg/llm"
	"github.com/companionlabs/companion-go/pkg/memory"
	memstore "github.com/companionlabs/companion-go/pkg/store/memory"
)

// scriptedProvider replies from a fixed map keyed on prompt substrings and
// records every prompt it saw.
type scriptedProvider struct {
	replies map[string]string // substring -> reply
	prompts []string
	failing bool
}

func (p *scriptedProvider) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return p.GenerateWithMessages(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

func (p *scriptedProvider) GenerateWithMessages(_ context.Context, messages []llm.Message, _ ...llm.GenerateOption) (string, error) {
	var prompt string
	for _, msg := range messages {
		prompt += msg.Content + "\n"
	}
	p.prompts = append(p.prompts, prompt)
	if p.failing {
		return "", errors.New("model unavailable")
	}
	for substring, reply := range p.replies {
		if strings.Contains(prompt, substring) {
			return reply, nil
		}
	}
	return `{"facts": [], "interests": [], "preferences": {}, "experiences": [], "relationships": []}`, nil
}

func (p *scriptedProvider) Close() error { return nil }

func newTestOrchestrator(provider llm.Provider) (*chat.Orchestrator, *memory.Service) {
	svc := memory.NewService(memstore.NewStore(), nil, provider, nil)
	return chat.NewOrchestrator(svc, provider, nil), svc
}

func TestSendMessageValidation(t *testing.T) {
	orchestrator, _ := newTestOrchestrator(nil)
	ctx := context.Background()

	_, err := orchestrator.SendMessage(ctx, &chat.SendMessageRequest{Message: "", UserID: "u"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidInput))

	_, err = orchestrator.SendMessage(ctx, &chat.SendMessageRequest{Message: "hi", UserID: ""})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidInput))

	_, err = orchestrator.SendMessage(ctx, &chat.SendMessageRequest{Message: "   ", UserID: "u"})
	require.Error(t, err)
}

func TestSendMessageWithoutModelUsesFallback(t *testing.T) {
	orchestrator, svc := newTestOrchestrator(nil)
	ctx := context.Background()

	resp, err := orchestrator.SendMessage(ctx, &chat.SendMessageRequest{
		Message: "Hi, my name is John and I love guitar!",
		UserID:  "user-1",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Message)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, resp.EmotionAnalysis.Emotion, resp.Context.UserMood)
	assert.Equal(t, 1, resp.Context.ConversationLength)
	assert.Empty(t, resp.Note)

	// Both sides of the exchange were persisted.
	messages := svc.RecentMessages(ctx, "user-1", resp.SessionID, 10)
	require.Len(t, messages, 2)
	assert.Equal(t, core.RoleUser, messages[0].Role)
	assert.Equal(t, core.RoleAssistant, messages[1].Role)
	assert.Equal(t, resp.Message, messages[1].Content)

	// Pattern extraction ran and the profile learned the name.
	profile, err := svc.UserProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "John", profile.Identity.Name)
	assert.Contains(t, profile.Identity.Interests, "guitar")
	assert.Equal(t, 1, profile.Stats.TotalSessions)
	assert.Equal(t, 2, profile.Stats.TotalMessages)
}

func TestSendMessageSessionContinuity(t *testing.T) {
	orchestrator, svc := newTestOrchestrator(nil)
	ctx := context.Background()

	first, err := orchestrator.SendMessage(ctx, &chat.SendMessageRequest{
		Message: "hello there", UserID: "user-1",
	})
	require.NoError(t, err)

	second, err := orchestrator.SendMessage(ctx, &chat.SendMessageRequest{
		Message: "still here", UserID: "user-1", SessionID: first.SessionID,
	})
	require.NoError(t, err)

	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, 3, second.Context.ConversationLength)
	assert.Len(t, svc.RecentMessages(ctx, "user-1", first.SessionID, 10), 4)
}

func TestSendMessageRecallsMemoryInPrompt(t *testing.T) {
	provider := &scriptedProvider{replies: map[string]string{
		"Generate a natural, empathetic response": "Of course I remember your guitar, John!",
	}}
	orchestrator, svc := newTestOrchestrator(provider)
	ctx := context.Background()

	require.NoError(t, svc.AddMemory(ctx, "user-1", &core.Extraction{
		Facts:     []string{"Name is John", "Plays guitar in a band"},
		Interests: []string{"guitar"},
	}, nil))

	resp, err := orchestrator.SendMessage(ctx, &chat.SendMessageRequest{
		Message: "do you remember my guitar hobby", UserID: "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Of course I remember your guitar, John!", resp.Message)

	var generationPrompt string
	for _, prompt := range provider.prompts {
		if strings.Contains(prompt, "Generate a natural, empathetic response") {
			generationPrompt = prompt
		}
	}
	require.NotEmpty(t, generationPrompt)
	assert.Contains(t, generationPrompt, "- Name: John")
	assert.Contains(t, generationPrompt, "- Plays guitar in a band")
	assert.Contains(t, generationPrompt, "RELEVANT MEMORIES FOR THIS MESSAGE:")
}

func TestSendMessageFallsBackWhenModelFails(t *testing.T) {
	provider := &scriptedProvider{failing: true}
	orchestrator, _ := newTestOrchestrator(provider)

	resp, err := orchestrator.SendMessage(context.Background(), &chat.SendMessageRequest{
		Message: "hello", UserID: "user-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Message)
}

func TestSendMessageClassifiesEmotion(t *testing.T) {
	orchestrator, _ := newTestOrchestrator(nil)

	resp, err := orchestrator.SendMessage(context.Background(), &chat.SendMessageRequest{
		Message: "I'm feeling really sad today", UserID: "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, core.EmotionSad, resp.EmotionAnalysis.Emotion)
	assert.InDelta(t, -0.7, resp.EmotionAnalysis.Sentiment, 0.001)
}

func TestSendMessageRecordsEmotionOnce(t *testing.T) {
	orchestrator, svc := newTestOrchestrator(nil)
	ctx := context.Background()

	_, err := orchestrator.SendMessage(ctx, &chat.SendMessageRequest{
		Message: "I'm feeling really sad today", UserID: "user-1",
	})
	require.NoError(t, err)

	profile, err := svc.UserProfile(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, profile.Stats.EmotionalPatterns, 1)
	assert.Equal(t, core.EmotionSad, profile.Stats.EmotionalPatterns[0].Emotion)
	assert.Equal(t, 1, profile.Stats.EmotionalPatterns[0].Frequency)
}

func TestGeneratePersonaWithoutModel(t *testing.T) {
	orchestrator, svc := newTestOrchestrator(nil)
	ctx := context.Background()

	persona, err := orchestrator.GeneratePersona(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Alex", persona.Name)

	// The default persona was saved onto the profile.
	profile, err := svc.UserProfile(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, profile.Persona)
	assert.Equal(t, "Alex", profile.Persona.Name)
}

func TestGeneratePersonaWithModel(t *testing.T) {
	provider := &scriptedProvider{replies: map[string]string{
		"create a unique chatbot persona": `{"name": "Maya", "personality": "curious", "backstory": "a traveler", "relationshipWithUser": "pen pal"}`,
	}}
	orchestrator, svc := newTestOrchestrator(provider)
	ctx := context.Background()

	persona, err := orchestrator.GeneratePersona(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Maya", persona.Name)

	profile, err := svc.UserProfile(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, profile.Persona)
	assert.Equal(t, "Maya", profile.Persona.Name)
}

func TestFallbackReplyPersonalization(t *testing.T) {
	profile := core.NewProfile("user-1")
	profile.Identity.PreferredName = "Jon"

	// Some replies carry the name slot; all must come back non-empty and
	// without a leftover placeholder.
	for i := 0; i < 20; i++ {
		reply := chat.FallbackReply(profile)
		assert.NotEmpty(t, reply)
		assert.NotContains(t, reply, "{name}")
	}

	reply := chat.FallbackReply(nil)
	assert.NotContains(t, reply, "{name}")
}
