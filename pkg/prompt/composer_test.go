package prompt_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/companionlabs/companion-go/pkg/core"
	"github.com/companionlabs/companion-go/pkg/prompt"
)

func TestSystemPromptDefaults(t *testing.T) {
	profile := core.NewProfile("user-1")

	system := prompt.SystemPrompt(profile, core.ConversationContext{}, nil)

	assert.True(t, strings.HasPrefix(system, "You are Alex, a warm, empathetic"))
	assert.Contains(t, system, "- Name: friend")
	assert.Contains(t, system, "- Communication Style: casual")
	assert.Contains(t, system, "- Interests: getting to know them better")
	assert.Contains(t, system, "- This is our first conversation")
	assert.Contains(t, system, "- No recent experiences shared")
	assert.Contains(t, system, "- User Mood: neutral")
	assert.Contains(t, system, "- Current Topic: general conversation")
	assert.Contains(t, system, "1. Stay completely in character as Alex")
	assert.Contains(t, system, "10. Remember: you're a real person")
	assert.NotContains(t, system, "RELEVANT MEMORIES")
}

func TestSystemPromptUsesProfileAndPersona(t *testing.T) {
	profile := core.NewProfile("user-1")
	profile.Identity.PreferredName = "Jon"
	profile.Identity.Interests = []string{"guitar", "hiking"}
	profile.Persona = &core.Persona{
		Name:      "Maya",
		Backstory: "Grew up by the sea.",
	}
	profile.AddFact("Name is Jon", "general", 0.9)
	for i := 0; i < 4; i++ {
		profile.AddExperience("event "+string(rune('a'+i)), core.EmotionHappy, 5)
	}

	ctx := core.ConversationContext{
		UserMood:          core.EmotionExcited,
		CurrentTopic:      "travel",
		ConversationStyle: core.StylePlayful,
	}
	system := prompt.SystemPrompt(profile, ctx, []string{"Plays guitar in a band"})

	assert.Contains(t, system, "You are Maya,")
	assert.Contains(t, system, "- Name: Jon")
	assert.Contains(t, system, "- Interests: guitar, hiking")
	assert.Contains(t, system, "- Name is Jon")
	assert.Contains(t, system, "YOUR BACKSTORY: Grew up by the sea.")
	assert.Contains(t, system, "- User Mood: excited")
	assert.Contains(t, system, "- Current Topic: travel")
	assert.Contains(t, system, "RELEVANT MEMORIES FOR THIS MESSAGE:\n- Plays guitar in a band")

	// Only the last three experiences appear.
	assert.NotContains(t, system, "event a")
	assert.Contains(t, system, "event b")
	assert.Contains(t, system, "event d")
}

func TestComposeIncludesHistoryAndInstruction(t *testing.T) {
	profile := core.NewProfile("user-1")
	when := time.Date(2026, 3, 1, 15, 4, 5, 0, time.UTC)
	history := []core.Message{
		{Role: core.RoleUser, Content: "hi there", Timestamp: when},
		{Role: core.RoleAssistant, Content: "hello!", Timestamp: when.Add(time.Second)},
	}

	composed := prompt.Compose(profile, core.ConversationContext{}, history, nil)

	assert.Contains(t, composed, "Conversation History:\n[15:04:05] User: hi there\n[15:04:06] You: hello!")
	assert.True(t, strings.HasSuffix(composed, "Generate a natural, empathetic response that maintains your character and remembers previous context."))
}

func TestPersonaPrompt(t *testing.T) {
	profile := core.NewProfile("user-1")
	profile.Identity.Interests = []string{"chess"}
	profile.Identity.PersonalityTraits = []string{"thoughtful"}

	p := prompt.PersonaPrompt(profile)
	assert.Contains(t, p, "- Interests: chess")
	assert.Contains(t, p, "- Communication Style: casual")
	assert.Contains(t, p, "- Personality Traits: thoughtful")
	assert.Contains(t, p, "Return only valid JSON:")

	empty := prompt.PersonaPrompt(core.NewProfile("user-2"))
	assert.Contains(t, empty, "- Interests: unknown")
}

func TestParsePersona(t *testing.T) {
	persona := prompt.ParsePersona(`Here you go: {"name": "Maya", "personality": "curious", "backstory": "a traveler", "relationshipWithUser": "pen pal"}`)
	assert.Equal(t, "Maya", persona.Name)
	assert.Equal(t, "pen pal", persona.RelationshipWithUser)

	// Malformed or nameless replies fall back to the default persona.
	fallback := prompt.ParsePersona("not json at all")
	require.Equal(t, prompt.DefaultPersona(), fallback)

	fallback = prompt.ParsePersona(`{"personality": "curious"}`)
	require.Equal(t, prompt.DefaultPersona(), fallback)
}
