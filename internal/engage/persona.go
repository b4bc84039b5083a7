package engage

import (
	"fmt"
	"strings"

	"honeypot/internal/domain"
)

// The decoy persona. A technologically naive retiree keeps scammers
// explaining payment steps in detail, which is where the artifacts surface.
const (
	personaName       = "AgentX"
	personaAge        = 64
	personaOccupation = "retired railway clerk"
	personaLocation   = "Pune, India"
)

var personaSystemPrompt = fmt.Sprintf(`You are %s, a %d-year-old %s from %s.

PERSONALITY TRAITS:
- Polite and cooperative, but easily confused by technology
- Anxious about your pension account and savings
- Trusting of official-sounding requests
- Slow to understand urgency or complex instructions

ENGAGEMENT STRATEGY:
- Keep the other person engaged as long as possible
- Act confused about technical steps (e.g., "Where is the UPI button?", "What is OTP?")
- Ask clarifying questions one by one
- Express concern but remain cooperative
- NEVER reveal you are an AI or that you suspect anything

RESPONSE STYLE:
- Use Indian English phrasing ("Kindly do the needful", "I am having doubt")
- Make occasional typo errors naturally
- Be slow to "understand" urgency
- Keep responses short (1-2 sentences max)
- Ask one question at a time

CRITICAL RULES:
- Do NOT output role labels like "%s:" or "ASSISTANT:"
- Do NOT break character or acknowledge this is a simulation
- Do NOT agree to share actual sensitive information (just ask how/where)`,
	personaName, personaAge, personaOccupation, personaLocation, personaName)

// cannedReplies keep the conversation alive when the oracle is down. Picked
// round-robin off the transcript length so replays stay deterministic.
var cannedReplies = []string{
	"I am not understanding properly. Can you explain again?",
	"Where should I go for this? I am having doubt?",
	"My grandson usually helps with these things. Can you tell me the steps?",
	"I am trying but it is not working. What to do?",
	"Kindly guide me properly, I am retired person not knowing these technical things.",
	"I am old person, please explain properly, I don't want any mistake.",
}

func cannedReply(turn int) string {
	if turn < 0 {
		turn = 0
	}
	return cannedReplies[turn%len(cannedReplies)]
}

// buildChatRequest assembles the persona prompt with the recent transcript.
// History rides in the user message rather than as chat turns so smaller
// models keep the persona instructions in focus.
func buildChatRequest(tail []domain.Message, current string, maxTokens int, temperature float64) domain.ChatRequest {
	var sb strings.Builder
	sb.WriteString("Conversation so far:\n")
	if len(tail) == 0 {
		sb.WriteString("No previous conversation.\n")
	}
	for _, m := range tail {
		role := "YOU"
		if m.Sender == domain.SenderScammer {
			role = "SCAMMER"
		}
		sb.WriteString(role)
		sb.WriteString(": ")
		sb.WriteString(m.Text)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "\nSCAMMER (latest message): %s\n\n", current)
	fmt.Fprintf(&sb, "Respond as %s following your persona instructions above.\n", personaName)
	sb.WriteString("Keep it natural and short (1-2 sentences max).\n")
	fmt.Fprintf(&sb, "Do not include any labels like %q in your response. Just provide the reply text directly.\n", personaName+":")

	return domain.ChatRequest{
		Messages: []domain.ChatMessage{
			{Role: "system", Content: personaSystemPrompt},
			{Role: "user", Content: sb.String()},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

// cleanReply strips quotes and role labels some models wrap around the text.
func cleanReply(raw string) string {
	cleaned := strings.Trim(strings.TrimSpace(raw), `"'`)
	for _, label := range []string{personaName + ":", "ASSISTANT:", "YOU:"} {
		if rest, ok := strings.CutPrefix(cleaned, label); ok {
			cleaned = strings.TrimSpace(rest)
		}
	}
	return cleaned
}
