// Package emotion classifies free text into a coarse emotion label and a
// sentiment score in [-1, 1].
//
// The primary path delegates to the external language model with a
// JSON-constrained prompt. The fallback path is deterministic keyword
// matching and is used whenever the model is absent, fails, or returns
// output that cannot be parsed.
package emotion

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/companionlabs/companion-go/pkg/core"
	"github.com/companionlabs/companion-go/pkg/llm"
)

// jsonObjectRe extracts the first JSON object from a model reply.
var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// Classifier maps message text to an EmotionAnalysis.
type Classifier struct {
	// llm is the model provider; nil forces the keyword fallback.
	llm llm.Provider
}

// NewClassifier creates a classifier. provider may be nil, in which case
// every classification uses the keyword fallback.
func NewClassifier(provider llm.Provider) *Classifier {
	return &Classifier{llm: provider}
}

// Classify analyzes the emotional tone of text.
//
// Model failures and unparseable replies never surface as errors: the
// deterministic fallback result is returned instead.
func (c *Classifier) Classify(ctx context.Context, text string) core.EmotionAnalysis {
	if c.llm == nil {
		return FallbackClassify(text)
	}

	prompt := fmt.Sprintf(`Analyze the emotional tone of this message and return ONLY a JSON object with these fields:
- emotion: one of [happy, sad, angry, excited, neutral, frustrated, curious]
- sentiment: number between -1 (very negative) and 1 (very positive)
- mood: brief description of the user's mood

Message: %q

Return only valid JSON:`, text)

	reply, err := c.llm.Generate(ctx, prompt, llm.WithJSONOnly(), llm.WithTemperature(0))
	if err != nil {
		return FallbackClassify(text)
	}

	analysis, err := parseAnalysis(reply)
	if err != nil {
		return FallbackClassify(text)
	}
	return analysis
}

// parseAnalysis extracts an EmotionAnalysis from a model reply.
func parseAnalysis(reply string) (core.EmotionAnalysis, error) {
	match := jsonObjectRe.FindString(reply)
	if match == "" {
		return core.EmotionAnalysis{}, fmt.Errorf("no JSON object in reply")
	}

	var analysis core.EmotionAnalysis
	if err := json.Unmarshal([]byte(match), &analysis); err != nil {
		return core.EmotionAnalysis{}, fmt.Errorf("invalid JSON in reply: %w", err)
	}
	if !validEmotion(analysis.Emotion) {
		return core.EmotionAnalysis{}, fmt.Errorf("unknown emotion %q", analysis.Emotion)
	}
	if analysis.Sentiment < -1 {
		analysis.Sentiment = -1
	}
	if analysis.Sentiment > 1 {
		analysis.Sentiment = 1
	}
	if analysis.Mood == "" {
		analysis.Mood = string(analysis.Emotion)
	}
	return analysis, nil
}

func validEmotion(e core.Emotion) bool {
	switch e {
	case core.EmotionHappy, core.EmotionSad, core.EmotionAngry, core.EmotionExcited,
		core.EmotionCurious, core.EmotionFrustrated, core.EmotionNeutral:
		return true
	}
	return false
}

// keywordRule is one category of the fallback classifier.
type keywordRule struct {
	emotion   core.Emotion
	sentiment float64
	keywords  []string
}

// fallbackRules are evaluated in this exact order; the first category with a
// matching keyword wins. The ordering is part of the classifier's contract:
// a message containing both a sad and a happy keyword resolves to sad.
var fallbackRules = []keywordRule{
	{core.EmotionSad, -0.7, []string{"sad", "down", "upset", "depressed", "lonely", "miserable"}},
	{core.EmotionHappy, 0.8, []string{"happy", "great", "wonderful", "glad", "joy"}},
	{core.EmotionExcited, 0.9, []string{"excited", "thrilled", "can't wait", "cant wait", "amazing"}},
	{core.EmotionAngry, -0.8, []string{"angry", "mad", "furious", "annoyed", "hate"}},
	{core.EmotionCurious, 0.2, []string{"curious", "wondering", "how does", "why does"}},
}

// FallbackClassify is the deterministic keyword classifier.
//
// Categories are checked in fixed priority order (sad, happy, excited,
// angry, curious); a trailing question mark implies curious; anything else
// is neutral with a small positive sentiment.
func FallbackClassify(text string) core.EmotionAnalysis {
	lower := strings.ToLower(text)

	for _, rule := range fallbackRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return core.EmotionAnalysis{
					Emotion:   rule.emotion,
					Sentiment: rule.sentiment,
					Mood:      string(rule.emotion),
				}
			}
		}
	}

	if strings.HasSuffix(strings.TrimSpace(lower), "?") {
		return core.EmotionAnalysis{Emotion: core.EmotionCurious, Sentiment: 0.2, Mood: "curious"}
	}

	return core.EmotionAnalysis{Emotion: core.EmotionNeutral, Sentiment: 0.1, Mood: "neutral"}
}
