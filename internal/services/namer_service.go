package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	namerTimeout   = 10 * time.Second
	namerMaxLength = 60
	shortMessage   = 50 // Messages under this are used verbatim as the title
)

const namerPrompt = `Generate a concise 3-6 word session title for this user request.
Be descriptive but brief. No quotes, punctuation, or formatting.
Just output the title, nothing else.

User request: %s

Session title:`

// NamerService generates session titles from the first user message via a
// one-shot LLM call, falling back to a truncated message when the call is
// unavailable, rate-limited, or fails. Naming is advisory: a fallback title
// is a degraded name, never an error.
type NamerService struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

// NewNamerService creates the session namer. A nil client (no API key
// configured) means every title comes from the fallback.
func NewNamerService(apiKey, model string) *NamerService {
	var client *openai.Client
	if apiKey != "" {
		client = openai.NewClient(apiKey)
	}

	return &NamerService{
		client: client,
		model:  model,
		// Naming happens once per session; anything faster than a few
		// calls per minute is a misbehaving caller, not real traffic
		limiter: rate.NewLimiter(rate.Every(10*time.Second), 3),
	}
}

// GenerateName produces a short title for a session from its first message
func (n *NamerService) GenerateName(ctx context.Context, firstMessage string) string {
	trimmed := strings.TrimSpace(firstMessage)
	if len(trimmed) < shortMessage {
		return trimmed
	}

	if n.client == nil || !n.limiter.Allow() {
		return fallbackName(trimmed)
	}

	ctx, cancel := context.WithTimeout(ctx, namerTimeout)
	defer cancel()

	prompt := strings.Replace(namerPrompt, "%s", truncate(trimmed, 500), 1)

	resp, err := n.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     n.model,
		MaxTokens: 30,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		slog.Warn("session name generation failed, using fallback", "error", err)
		return fallbackName(trimmed)
	}
	if len(resp.Choices) == 0 {
		return fallbackName(trimmed)
	}

	name := cleanTitle(resp.Choices[0].Message.Content)
	if name == "" || len(name) > namerMaxLength {
		return fallbackName(trimmed)
	}

	return name
}

// cleanTitle strips quoting and label prefixes the model sometimes adds
func cleanTitle(raw string) string {
	name := strings.TrimSpace(raw)
	name = strings.ReplaceAll(name, `"`, "")
	name = strings.ReplaceAll(name, "'", "")

	for _, prefix := range []string{"Session title:", "Session:", "Title:"} {
		if strings.HasPrefix(strings.ToLower(name), strings.ToLower(prefix)) {
			name = strings.TrimSpace(name[len(prefix):])
		}
	}
	return name
}

// fallbackName derives a title from the message itself, breaking at a word
// boundary where possible.
func fallbackName(message string) string {
	name := strings.TrimSpace(truncate(message, shortMessage))
	if len(message) > shortMessage {
		if idx := strings.LastIndex(name, " "); idx > 20 {
			name = name[:idx]
		}
		name += "..."
	}
	return name
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
