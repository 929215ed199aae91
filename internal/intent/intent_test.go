package intent_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/soyeonk/replique/internal/intent"
	"github.com/soyeonk/replique/pkg/provider/llm"
	"github.com/soyeonk/replique/pkg/provider/llm/mock"
)

var cast = []string{"Monica", "Rachel", "Ross", "Chandler", "Joey", "Phoebe"}

func TestCondense(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "Intent: plot_summary\nTopic: the pilot episode\nDetails: S01E01",
		},
	}
	c := intent.NewCondenser(provider, nil)

	got := c.Condense(context.Background(), "what happens in the pilot?", nil)

	if got.Intent != intent.PlotSummary {
		t.Errorf("Intent = %q, want plot_summary", got.Intent)
	}
	if got.Topic != "the pilot episode" {
		t.Errorf("Topic = %q, want %q", got.Topic, "the pilot episode")
	}
	if got.Details != "S01E01" {
		t.Errorf("Details = %q, want S01E01", got.Details)
	}
	if got.OriginalMessage != "what happens in the pilot?" {
		t.Errorf("OriginalMessage = %q", got.OriginalMessage)
	}
	if provider.CallCount() != 1 {
		t.Errorf("CallCount = %d, want 1", provider.CallCount())
	}
}

func TestCondenseSendsRecentHistoryOnly(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "Intent: general_chat\nTopic: friends"},
	}
	c := intent.NewCondenser(provider, nil)

	history := []string{"one", "two", "three", "four", "five", "six", "seven"}
	c.Condense(context.Background(), "hi", history)

	req := provider.CompleteCalls[0].Req
	if len(req.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(req.Messages))
	}
	content := req.Messages[0].Content
	if strings.Contains(content, "one") || strings.Contains(content, "two") {
		t.Errorf("old history leaked into prompt: %q", content)
	}
	if !strings.Contains(content, "seven") {
		t.Errorf("recent history missing from prompt: %q", content)
	}
}

func TestCondenseFallsBackOnError(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{CompleteErr: errors.New("rate limited")}
	c := intent.NewCondenser(provider, nil)

	got := c.Condense(context.Background(), "tell me about Joey", nil)

	if got.Intent != intent.GeneralChat {
		t.Errorf("Intent = %q, want general_chat", got.Intent)
	}
	if got.Topic != "tell me about Joey" {
		t.Errorf("Topic = %q, want original message", got.Topic)
	}
}

func TestCondenseUnknownIntentBecomesGeneralChat(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "Intent: order_pizza\nTopic: pizza"},
	}
	c := intent.NewCondenser(provider, nil)

	got := c.Condense(context.Background(), "order me a pizza", nil)
	if got.Intent != intent.GeneralChat {
		t.Errorf("Intent = %q, want general_chat", got.Intent)
	}
}

func TestCondenseMalformedResponseKeepsMessageAsTopic(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "I am not sure what you mean."},
	}
	c := intent.NewCondenser(provider, nil)

	got := c.Condense(context.Background(), "hm?", nil)
	if got.Intent != intent.GeneralChat {
		t.Errorf("Intent = %q, want general_chat", got.Intent)
	}
	if got.Topic != "hm?" {
		t.Errorf("Topic = %q, want original message", got.Topic)
	}
}

func TestRoute(t *testing.T) {
	t.Parallel()

	if got := intent.Route(intent.SceneScript); got != intent.SceneScript {
		t.Errorf("Route(scene_script) = %q", got)
	}
	if got := intent.Route(intent.Intent("nonsense")); got != intent.GeneralChat {
		t.Errorf("Route(nonsense) = %q, want general_chat", got)
	}
}

func TestParsePracticeRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		message string
		history []string
		want    intent.PracticeRequest
	}{
		{
			name:    "episode and character",
			message: "I want to practice as Monica in S01E01 scene 2",
			want:    intent.PracticeRequest{EpisodeID: "S01E01", Character: "Monica", SceneNumber: 2},
		},
		{
			name:    "season episode form",
			message: "practice as joey in Season 2 Episode 14",
			want:    intent.PracticeRequest{EpisodeID: "S02E14", Character: "Joey"},
		},
		{
			name:    "scene id form",
			message: "practice S09E19_013 as Phoebe",
			want:    intent.PracticeRequest{EpisodeID: "S09E19", Character: "Phoebe", SceneNumber: 13},
		},
		{
			name:    "episode from history",
			message: "practice as Ross",
			history: []string{"tell me about S01E01", "who is Chandler?"},
			want:    intent.PracticeRequest{EpisodeID: "S01E01", Character: "Ross"},
		},
		{
			name:    "scene id carried from history",
			message: "practice as Rachel",
			history: []string{"show me S03E02_004"},
			want:    intent.PracticeRequest{EpisodeID: "S03E02", Character: "Rachel", SceneNumber: 4},
		},
		{
			name:    "newest history entry wins",
			message: "practice as Chandler",
			history: []string{"what about S01E01?", "actually show me S05E08"},
			want:    intent.PracticeRequest{EpisodeID: "S05E08", Character: "Chandler"},
		},
		{
			name:    "nothing extractable",
			message: "let's do some practice",
			want:    intent.PracticeRequest{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := intent.ParsePracticeRequest(tt.message, tt.history, cast)
			if got != tt.want {
				t.Errorf("ParsePracticeRequest = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestIsPracticeMessage(t *testing.T) {
	t.Parallel()

	if !intent.IsPracticeMessage("start practice session", intent.PracticeRequest{}) {
		t.Error("keyword message not detected")
	}
	complete := intent.PracticeRequest{EpisodeID: "S01E01", Character: "Ross"}
	if !intent.IsPracticeMessage("S01E01 Ross", complete) {
		t.Error("complete episode+character pair not detected")
	}
	if intent.IsPracticeMessage("tell me about Monica", intent.PracticeRequest{Character: "Monica"}) {
		t.Error("character mention alone should not be a practice request")
	}
}
