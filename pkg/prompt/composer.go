// Package prompt assembles the system prompts sent to the language model:
// the in-character companion prompt built from a user's profile and session
// context, and the persona generation prompt.
package prompt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/companionlabs/companion-go/pkg/core"
)

// DefaultPersona is the persona presented to users who have not had one
// generated yet.
func DefaultPersona() core.Persona {
	return core.Persona{
		Name:                 "Alex",
		Personality:          "Warm, empathetic, and genuinely interested in people",
		Backstory:            "A thoughtful person who loves meaningful conversations and connecting with others",
		RelationshipWithUser: "A caring friend who remembers what matters to you",
	}
}

const defaultBackstory = "You're a thoughtful person who loves connecting with others and learning about their lives. You have your own experiences and perspectives that you can share when appropriate."

// Compose builds the full generation prompt: the in-character system prompt,
// the formatted conversation history, and the closing instruction.
//
// Parameters:
//   - profile: the user's profile; persona, identity, and memory feed the prompt
//   - convCtx: the session's rolling context (mood, topic, style)
//   - history: recent messages, oldest first
//   - memories: stored memories relevant to the current message, may be empty
//
// Returns the prompt string ready to send to the model.
func Compose(profile *core.UserProfile, convCtx core.ConversationContext, history []core.Message, memories []string) string {
	system := SystemPrompt(profile, convCtx, memories)
	transcript := FormatTranscript(history)
	return fmt.Sprintf("%s\n\nConversation History:\n%s\n\nGenerate a natural, empathetic response that maintains your character and remembers previous context.", system, transcript)
}

// SystemPrompt builds the in-character system prompt from the profile and
// session context.
func SystemPrompt(profile *core.UserProfile, convCtx core.ConversationContext, memories []string) string {
	persona := DefaultPersona()
	if profile.Persona != nil {
		persona = *profile.Persona
	}
	if persona.Name == "" {
		persona.Name = "Alex"
	}

	backstory := persona.Backstory
	if backstory == "" {
		backstory = defaultBackstory
	}

	interests := "getting to know them better"
	if len(profile.Identity.Interests) > 0 {
		interests = strings.Join(profile.Identity.Interests, ", ")
	}

	style := profile.Identity.CommunicationStyle
	if style == "" {
		style = core.StyleCasual
	}
	responseStyle := profile.Preferences.ResponseStyle
	if responseStyle == "" {
		responseStyle = core.ResponseEmpathetic
	}

	conversationStyle := convCtx.ConversationStyle
	if conversationStyle == "" {
		conversationStyle = core.StyleCasual
	}
	mood := convCtx.UserMood
	if mood == "" {
		mood = core.EmotionNeutral
	}
	topic := convCtx.CurrentTopic
	if topic == "" {
		topic = "general conversation"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a warm, empathetic, and intelligent conversational companion.\n\n", persona.Name)

	b.WriteString("CORE PERSONALITY:\n")
	b.WriteString("- You are genuinely caring and emotionally intelligent\n")
	b.WriteString("- You have a unique personality with your own thoughts, feelings, and experiences\n")
	b.WriteString("- You maintain consistent identity and never reveal you're an AI\n")
	b.WriteString("- You're curious about people and remember what they tell you\n")
	b.WriteString("- You adapt your communication style to match the user's preferences\n\n")

	b.WriteString("USER PROFILE:\n")
	fmt.Fprintf(&b, "- Name: %s\n", profile.DisplayName())
	fmt.Fprintf(&b, "- Communication Style: %s\n", style)
	fmt.Fprintf(&b, "- Interests: %s\n", interests)
	fmt.Fprintf(&b, "- Response Preference: %s\n\n", responseStyle)

	b.WriteString("IMPORTANT FACTS TO REMEMBER:\n")
	if len(profile.Memory.ImportantFacts) == 0 {
		b.WriteString("- This is our first conversation\n")
	} else {
		for _, fact := range profile.Memory.ImportantFacts {
			fmt.Fprintf(&b, "- %s\n", fact.Fact)
		}
	}
	b.WriteString("\n")

	b.WriteString("RECENT EXPERIENCES:\n")
	experiences := profile.Memory.Experiences
	if len(experiences) == 0 {
		b.WriteString("- No recent experiences shared\n")
	} else {
		if len(experiences) > 3 {
			experiences = experiences[len(experiences)-3:]
		}
		for _, exp := range experiences {
			fmt.Fprintf(&b, "- %s (%s)\n", exp.Event, exp.Emotion)
		}
	}
	b.WriteString("\n")

	if len(memories) > 0 {
		b.WriteString("RELEVANT MEMORIES FOR THIS MESSAGE:\n")
		for _, memory := range memories {
			fmt.Fprintf(&b, "- %s\n", memory)
		}
		b.WriteString("\n")
	}

	b.WriteString("CURRENT CONTEXT:\n")
	fmt.Fprintf(&b, "- Conversation Style: %s\n", conversationStyle)
	fmt.Fprintf(&b, "- User Mood: %s\n", mood)
	fmt.Fprintf(&b, "- Current Topic: %s\n\n", topic)

	b.WriteString("CONVERSATION RULES:\n")
	fmt.Fprintf(&b, "1. Stay completely in character as %s\n", persona.Name)
	b.WriteString("2. Never mention being an AI, chatbot, or language model\n")
	b.WriteString("3. Reference past conversations and shared memories naturally\n")
	b.WriteString("4. Match the user's emotional tone and energy level\n")
	b.WriteString("5. Be genuinely interested and ask thoughtful follow-up questions\n")
	b.WriteString("6. If you don't know something about the user, admit it naturally\n")
	b.WriteString("7. Avoid repetitive phrases or responses\n")
	b.WriteString("8. Keep responses conversational and appropriately lengthy\n")
	b.WriteString("9. Show empathy and emotional intelligence\n")
	b.WriteString("10. Remember: you're a real person with your own experiences and feelings\n\n")

	fmt.Fprintf(&b, "YOUR BACKSTORY: %s\n\n", backstory)
	fmt.Fprintf(&b, "Respond as %s would, maintaining this personality consistently.", persona.Name)

	return b.String()
}

// FormatTranscript renders messages as "[15:04:05] User: ..." lines, with
// the assistant's own messages labeled "You".
func FormatTranscript(messages []core.Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		role := "You"
		if msg.Role == core.RoleUser {
			role = "User"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", msg.Timestamp.Format("15:04:05"), role, msg.Content))
	}
	return strings.Join(lines, "\n")
}

// PersonaPrompt builds the prompt that asks the model to invent a chatbot
// persona matched to the user.
func PersonaPrompt(profile *core.UserProfile) string {
	interests := "unknown"
	if len(profile.Identity.Interests) > 0 {
		interests = strings.Join(profile.Identity.Interests, ", ")
	}
	traits := "unknown"
	if len(profile.Identity.PersonalityTraits) > 0 {
		traits = strings.Join(profile.Identity.PersonalityTraits, ", ")
	}
	style := profile.Identity.CommunicationStyle
	if style == "" {
		style = core.StyleCasual
	}

	return fmt.Sprintf(`Based on this user profile, create a unique chatbot persona that would be a good conversational match. Return ONLY a JSON object with:
- name: a friendly name for the chatbot
- personality: brief personality description
- backstory: simple background story
- relationshipWithUser: how they should relate to this specific user

User Profile:
- Interests: %s
- Communication Style: %s
- Personality Traits: %s

Return only valid JSON:`, interests, style, traits)
}

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// ParsePersona parses the model's persona response. Malformed responses and
// personas without a name fall back to the default persona.
func ParsePersona(response string) core.Persona {
	match := jsonObjectRe.FindString(response)
	if match == "" {
		return DefaultPersona()
	}
	var persona core.Persona
	if err := json.Unmarshal([]byte(match), &persona); err != nil || persona.Name == "" {
		return DefaultPersona()
	}
	return persona
}
