// Package intent condenses free-form chat messages into a routable intent.
//
// The assistant pipeline runs condense, route, respond: an LLM classifies the
// message into one of the known intents and extracts the topic and details,
// then the router maps the intent to the feature that handles it. Practice
// requests are additionally parsed with plain regexes so a message like
// "I want to practice as Monica in S01E01 scene 2" can start a session without
// an LLM round trip.
package intent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/soyeonk/replique/pkg/provider/llm"
)

// Intent classifies what the user wants from the assistant.
type Intent string

const (
	EpisodeRecommendation Intent = "episode_recommendation"
	CharacterInfo         Intent = "character_info"
	PlotSummary           Intent = "plot_summary"
	SceneScript           Intent = "scene_script"
	CulturalContext       Intent = "cultural_context"
	PracticeSession       Intent = "practice_session"
	GeneralChat           Intent = "general_chat"
)

// Condensed is the structured form of a user message.
type Condensed struct {
	Intent  Intent
	Topic   string
	Details string

	// OriginalMessage is the raw user message the condensation came from.
	OriginalMessage string
}

// classifyPrompt instructs the model to emit a parseable Intent/Topic/Details
// block. Keep the field labels in sync with the extraction regexes below.
const classifyPrompt = `Analyze the user's message and determine their intent for a Friends English learning chatbot.

Possible intents:
1. episode_recommendation - Want episode suggestions for specific topics/situations
2. character_info - Ask about Friends characters
3. plot_summary - Want episode plot/summary
4. scene_script - Want to see specific scene dialogue
5. cultural_context - Need explanation of cultural references/expressions
6. practice_session - Want to practice conversation/dialogue
7. general_chat - General conversation about Friends

Return in this format:
Intent: [intent_type]
Topic: [main topic/subject]
Details: [any specific details like episode, character, etc.]`

var (
	intentRe  = regexp.MustCompile(`Intent:\s*(\w+)`)
	topicRe   = regexp.MustCompile(`Topic:\s*(.+)`)
	detailsRe = regexp.MustCompile(`Details:\s*(.+)`)
)

// historyWindow is how many recent messages are offered as classification
// context and scanned for practice-request fallbacks.
const historyWindow = 5

// Condenser classifies messages through an LLM provider.
type Condenser struct {
	llm llm.Provider
	log *slog.Logger
}

// NewCondenser returns a Condenser using the given provider. A nil logger
// falls back to slog.Default().
func NewCondenser(provider llm.Provider, log *slog.Logger) *Condenser {
	if log == nil {
		log = slog.Default()
	}
	return &Condenser{llm: provider, log: log}
}

// Condense classifies message into an Intent with topic and details. history
// holds recent conversation messages, oldest first; only the last few are sent
// to the model. Classification failures never fail the caller: on any error
// the whole message becomes the topic of a general_chat intent.
func (c *Condenser) Condense(ctx context.Context, message string, history []string) Condensed {
	fallback := Condensed{
		Intent:          GeneralChat,
		Topic:           message,
		OriginalMessage: message,
	}

	recent := history
	if len(recent) > historyWindow {
		recent = recent[len(recent)-historyWindow:]
	}

	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: classifyPrompt,
		Messages: []llm.Message{{
			Role:    "user",
			Content: fmt.Sprintf("Chat History:\n%s\n\nUser Message: %s", strings.Join(recent, "\n"), message),
		}},
		Temperature: 0.1,
		MaxTokens:   200,
	})
	if err != nil {
		c.log.Warn("intent classification failed, falling back to general chat", "err", err)
		return fallback
	}

	out := Condensed{Intent: GeneralChat, OriginalMessage: message}
	if m := intentRe.FindStringSubmatch(resp.Content); m != nil {
		if parsed := Intent(m[1]); parsed.IsValid() {
			out.Intent = parsed
		}
	}
	if m := topicRe.FindStringSubmatch(resp.Content); m != nil {
		out.Topic = strings.TrimSpace(m[1])
	}
	if m := detailsRe.FindStringSubmatch(resp.Content); m != nil {
		out.Details = strings.TrimSpace(m[1])
	}
	if out.Topic == "" {
		out.Topic = message
	}
	return out
}

// IsValid reports whether i is one of the known intents.
func (i Intent) IsValid() bool {
	switch i {
	case EpisodeRecommendation, CharacterInfo, PlotSummary, SceneScript,
		CulturalContext, PracticeSession, GeneralChat:
		return true
	}
	return false
}

// Route maps an intent to itself when known and to GeneralChat otherwise,
// so unrecognised model output always lands on the safe default handler.
func Route(i Intent) Intent {
	if i.IsValid() {
		return i
	}
	return GeneralChat
}
