// Package memory persists what the assistant learns about users: profiles,
// conversations, and the structured information extracted from them.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/companionlabs/companion-go/pkg/core"
	"github.com/companionlabs/companion-go/pkg/llm"
)

// Strategy extracts structured information from a conversation window.
type Strategy interface {
	// Extract pulls facts, interests, preferences, experiences, and
	// relationships out of the messages.
	Extract(ctx context.Context, messages []core.Message) (*core.Extraction, error)
}

// Extractor runs the model-backed strategy when a provider is available and
// falls back to pattern matching when it is not, or when the model fails.
// Extraction never surfaces an error to callers: a failed extraction yields
// whatever the patterns found, possibly nothing.
type Extractor struct {
	model   Strategy
	pattern Strategy
}

// NewExtractor creates an extractor. provider may be nil, in which case only
// pattern matching runs.
func NewExtractor(provider llm.Provider) *Extractor {
	e := &Extractor{pattern: &PatternStrategy{}}
	if provider != nil {
		e.model = &ModelStrategy{llm: provider}
	}
	return e
}

// Extract returns the structured information found in the messages. The
// result is never nil.
func (e *Extractor) Extract(ctx context.Context, messages []core.Message) *core.Extraction {
	if e.model != nil {
		extraction, err := e.model.Extract(ctx, messages)
		if err == nil {
			return extraction
		}
	}
	extraction, _ := e.pattern.Extract(ctx, messages)
	return extraction
}

// ModelStrategy extracts information by asking the LLM for a JSON summary of
// the conversation window.
type ModelStrategy struct {
	llm llm.Provider
}

// Extract calls the model with the extraction prompt and parses its JSON
// response.
//
// Parameters:
//   - ctx: Context for cancellation
//   - messages: Conversation window to extract from
//
// Returns:
//   - *core.Extraction: extracted information, possibly empty
//   - error: model or parse failure
func (s *ModelStrategy) Extract(ctx context.Context, messages []core.Message) (*core.Extraction, error) {
	transcript := formatWindow(messages)
	if transcript == "" {
		return &core.Extraction{Preferences: map[string]string{}}, nil
	}

	llmMessages := []llm.Message{
		{Role: "system", Content: extractionSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Conversation:\n%s", transcript)},
	}

	response, err := s.llm.GenerateWithMessages(ctx, llmMessages, llm.WithJSONOnly(), llm.WithTemperature(0.2))
	if err != nil {
		return nil, fmt.Errorf("failed to extract memory: %w", err)
	}

	extraction, err := parseExtraction(response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse extraction response: %w", err)
	}
	return extraction, nil
}

const extractionSystemPrompt = `You are a memory organizer for a personal companion chatbot. Extract information worth remembering about the user from the conversation.

Extract:
- facts: self-contained statements about the user ("Name is John", "Works as a nurse", "Lives in Austin")
- interests: topics or activities the user enjoys, as short lowercase phrases
- preferences: key/value pairs of stated conversational preferences
- experiences: significant events the user shared
- relationships: people the user mentioned, with name and relationship if stated

Rules:
- Only extract what the user actually said; never invent details
- Keep facts short and self-contained
- If nothing is worth remembering, return empty lists
- Return JSON only: {"facts": [], "interests": [], "preferences": {}, "experiences": [], "relationships": [{"name": "", "relationship": ""}]}`

// parseExtraction parses the model's JSON response, tolerating code fences
// and surrounding prose.
func parseExtraction(response string) (*core.Extraction, error) {
	response = stripCodeFences(response)
	if match := jsonObjectRe.FindString(response); match != "" {
		response = match
	}

	var extraction core.Extraction
	if err := json.Unmarshal([]byte(response), &extraction); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}
	if extraction.Preferences == nil {
		extraction.Preferences = map[string]string{}
	}
	return &extraction, nil
}

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

func stripCodeFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// formatWindow renders messages as "role: content" lines, skipping system
// messages.
func formatWindow(messages []core.Message) string {
	var parts []string
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}
	return strings.Join(parts, "\n")
}

// PatternStrategy extracts information with regular expressions over the
// user's messages. It catches the most common self-introductions and stated
// interests and never fails.
type PatternStrategy struct{}

var (
	nameRe     = regexp.MustCompile(`(?i)(?:name is|i'm|i am)\s+([a-zA-Z]+)`)
	interestRe = regexp.MustCompile(`(?i)(?:love|like|enjoy)\s+([a-zA-Z\s]+)`)
)

// Extract scans the user's messages for name introductions and interest
// statements. The error is always nil.
func (s *PatternStrategy) Extract(_ context.Context, messages []core.Message) (*core.Extraction, error) {
	extraction := &core.Extraction{Preferences: map[string]string{}}

	for _, msg := range messages {
		if msg.Role != core.RoleUser {
			continue
		}
		if match := nameRe.FindStringSubmatch(msg.Content); match != nil {
			name := capitalize(match[1])
			extraction.Facts = appendUnique(extraction.Facts, "Name is "+name)
		}
		if match := interestRe.FindStringSubmatch(msg.Content); match != nil {
			interest := strings.ToLower(strings.TrimSpace(match[1]))
			if interest != "" {
				extraction.Interests = appendUnique(extraction.Interests, interest)
			}
		}
	}
	return extraction, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func appendUnique(list []string, value string) []string {
	for _, existing := range list {
		if strings.EqualFold(existing, value) {
			return list
		}
	}
	return append(list, value)
}
