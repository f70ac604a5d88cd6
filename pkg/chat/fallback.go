package chat

import (
	"math/rand"
	"strings"

	"github.com/companionlabs/companion-go/pkg/core"
)

// fallbackReplies are used when no model is configured or generation fails.
// {name} slots are filled with the user's display name.
var fallbackReplies = []string{
	"That's really interesting, {name}! Tell me more about that.",
	"I can understand how you feel about that. It sounds important to you.",
	"Thanks for sharing that with me, {name}. I'll remember that about you.",
	"That reminds me of something you mentioned before. You seem to really care about these things.",
	"I appreciate you opening up to me. How does that make you feel?",
	"That's a great perspective! I can see why that matters to you.",
	"I'm here to listen, {name}. What's been on your mind lately?",
	"It sounds like you've got a lot going on. I'm glad you're sharing with me.",
}

// FallbackReply picks a canned reply, personalized with the user's name
// where the template has a slot for it.
func FallbackReply(profile *core.UserProfile) string {
	reply := fallbackReplies[rand.Intn(len(fallbackReplies))]
	name := "friend"
	if profile != nil {
		name = profile.DisplayName()
	}
	return strings.ReplaceAll(reply, "{name}", name)
}
