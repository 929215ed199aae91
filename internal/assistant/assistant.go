// Package assistant implements the conversational layer around the practice
// core: episode recommendations, character info, plot summaries, scene script
// viewing, cultural-context explanations, and general chat.
//
// Every message runs the condense, route, respond pipeline. The condense step
// classifies the message through an LLM; routing picks one of the feature
// handlers; handlers answer from the scene corpus, the semantic index, a
// static knowledge table, or a final LLM call. Practice requests short-circuit
// the pipeline and are handed back to the caller, which owns the interactive
// session loop.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/soyeonk/replique/internal/intent"
	"github.com/soyeonk/replique/internal/observe"
	"github.com/soyeonk/replique/pkg/corpus"
	"github.com/soyeonk/replique/pkg/provider/embeddings"
	"github.com/soyeonk/replique/pkg/provider/llm"
)

// Reply is the assistant's answer to one message.
type Reply struct {
	// Text is the formatted response to show the user.
	Text string

	// Practice is non-nil when the message was a complete practice request.
	// The caller should start a session with these coordinates; Text then
	// contains only a short acknowledgement.
	Practice *intent.PracticeRequest
}

// Assistant answers corpus and culture questions around practice sessions.
type Assistant struct {
	condenser *intent.Condenser
	llm       llm.Provider
	embedder  embeddings.Provider
	scenes    corpus.Store
	index     corpus.SemanticIndex
	metrics   *observe.Metrics
	log       *slog.Logger
}

// Option configures optional Assistant collaborators.
type Option func(*Assistant)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(a *Assistant) { a.log = log }
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Assistant) { a.metrics = m }
}

// WithSemanticSearch enables embedding-based corpus search. Without it the
// recommendation and discovery features fall back to plain guidance text.
func WithSemanticSearch(embedder embeddings.Provider, index corpus.SemanticIndex) Option {
	return func(a *Assistant) {
		a.embedder = embedder
		a.index = index
	}
}

// New creates an Assistant over the given LLM provider and scene store.
func New(provider llm.Provider, scenes corpus.Store, opts ...Option) *Assistant {
	a := &Assistant{
		llm:     provider,
		scenes:  scenes,
		metrics: observe.DefaultMetrics(),
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	a.condenser = intent.NewCondenser(&timedProvider{a}, a.log)
	return a
}

// Chat answers one user message. history holds the recent conversation,
// oldest first. Chat itself never fails on provider errors; every handler has
// a degraded text path.
func (a *Assistant) Chat(ctx context.Context, message string, history []string) Reply {
	req := intent.ParsePracticeRequest(message, history, CharacterNames())
	if intent.IsPracticeMessage(message, req) && req.Complete() {
		a.log.Info("practice request detected",
			"episode", req.EpisodeID, "character", req.Character, "scene", req.SceneNumber)
		return Reply{
			Text:     fmt.Sprintf("Starting practice as %s in %s.", req.Character, req.EpisodeID),
			Practice: &req,
		}
	}

	cond := a.condenser.Condense(ctx, message, history)
	a.log.Debug("message routed", "intent", cond.Intent, "topic", cond.Topic)

	switch intent.Route(cond.Intent) {
	case intent.EpisodeRecommendation:
		return Reply{Text: a.recommendEpisodes(ctx, cond)}
	case intent.CharacterInfo:
		return Reply{Text: a.characterInfo(ctx, cond)}
	case intent.PlotSummary:
		return Reply{Text: a.episodePlot(ctx, cond)}
	case intent.SceneScript:
		return Reply{Text: a.sceneScript(ctx, cond)}
	case intent.CulturalContext:
		return Reply{Text: a.culturalContext(ctx, cond)}
	case intent.PracticeSession:
		return Reply{Text: practiceInstructions()}
	default:
		return Reply{Text: a.generalChat(ctx, cond)}
	}
}

// recommendEpisodes suggests episodes whose scenes are semantically close to
// the requested topic.
func (a *Assistant) recommendEpisodes(ctx context.Context, cond intent.Condensed) string {
	results := a.search(ctx, fmt.Sprintf("episodes about %s situations conversations", cond.Topic), 10, corpus.SearchFilter{})
	if len(results) == 0 {
		return fmt.Sprintf("I couldn't find episodes about %q. Try asking about dating, work, friendship, or family situations.", cond.Topic)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Here are Friends episodes that fit %q:\n\n", cond.Topic)

	seen := map[string]bool{}
	n := 0
	for _, r := range results {
		if seen[r.Chunk.EpisodeID] {
			continue
		}
		seen[r.Chunk.EpisodeID] = true
		n++
		fmt.Fprintf(&b, "%d. %s (match %.2f)\n", n, r.Chunk.EpisodeID, 1-r.Distance)
		fmt.Fprintf(&b, "   %s\n\n", preview(r.Chunk.Content, 150))
		if n == 3 {
			break
		}
	}

	b.WriteString("You can ask for the script of any of these, or say\n")
	b.WriteString("\"practice as <character> in <episode>\" to start a session.")
	return b.String()
}

// characterInfo describes one cast member, or the whole cast when none is
// named, with example scenes from the corpus when search is available.
func (a *Assistant) characterInfo(ctx context.Context, cond intent.Condensed) string {
	ch := FindCharacter(cond.Topic + " " + cond.Details + " " + cond.OriginalMessage)
	if ch == nil {
		var b strings.Builder
		b.WriteString("Here are the 6 main Friends characters you can practice with:\n\n")
		for _, c := range Cast {
			fmt.Fprintf(&b, "%s\n", c.Name)
			fmt.Fprintf(&b, "  Personality: %s\n", c.Personality)
			fmt.Fprintf(&b, "  Speech style: %s\n", c.SpeechPatterns)
			fmt.Fprintf(&b, "  Best for practicing: %s\n\n", c.PracticeFocus)
		}
		b.WriteString("Which character would you like to learn more about or practice as?")
		return b.String()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", ch.Name)
	fmt.Fprintf(&b, "Personality: %s\n", ch.Personality)
	fmt.Fprintf(&b, "Character traits: %s\n", ch.Traits)
	fmt.Fprintf(&b, "Speech patterns: %s\n", ch.SpeechPatterns)
	fmt.Fprintf(&b, "Great for practicing: %s\n", ch.PracticeFocus)

	scenes := a.search(ctx, fmt.Sprintf("%s funny scenes dialogue", ch.Name), 3, corpus.SearchFilter{Character: ch.Name})
	if len(scenes) > 0 {
		fmt.Fprintf(&b, "\nPopular %s scenes to practice:\n", ch.Name)
		for _, s := range scenes {
			fmt.Fprintf(&b, "- %s: %s\n", s.Chunk.SceneID, preview(s.Chunk.Content, 100))
		}
	}

	fmt.Fprintf(&b, "\nSay \"practice as %s in S01E01\" to start a session.", ch.Name)
	return b.String()
}

// episodePlot summarises an episode from its scenes. The corpus stores
// transcripts rather than written summaries, so the summary is the episode
// title plus a scene-by-scene location rundown.
func (a *Assistant) episodePlot(ctx context.Context, cond intent.Condensed) string {
	episodeID := intent.MatchEpisode(cond.Topic + " " + cond.Details + " " + cond.OriginalMessage)
	if episodeID == "" {
		results := a.search(ctx, fmt.Sprintf("%s episode plot", cond.Topic), 5, corpus.SearchFilter{})
		if len(results) == 0 {
			return "I couldn't find that episode. Try asking like \"Tell me about S01E01\"."
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Episodes matching %q:\n\n", cond.Topic)
		seen := map[string]bool{}
		for _, r := range results {
			if seen[r.Chunk.EpisodeID] {
				continue
			}
			seen[r.Chunk.EpisodeID] = true
			fmt.Fprintf(&b, "- %s: %s\n", r.Chunk.EpisodeID, preview(r.Chunk.Content, 120))
		}
		b.WriteString("\nWhich episode would you like to know more about?")
		return b.String()
	}

	scenes, err := a.scenes.ListScenes(ctx, episodeID)
	if err != nil {
		a.log.Warn("list scenes failed", "episode", episodeID, "err", err)
	}
	if len(scenes) == 0 {
		return fmt.Sprintf("I don't have %s in the corpus yet. Try another episode, like S01E01.", episodeID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", episodeID, scenes[0].EpisodeTitle)
	fmt.Fprintf(&b, "Season %d, Episode %d, %d scenes\n\n", scenes[0].Season, scenes[0].Episode, len(scenes))
	for _, s := range scenes {
		fmt.Fprintf(&b, "Scene %d at %s", s.SceneNumber, s.Location)
		if s.Description != "" {
			fmt.Fprintf(&b, ": %s", s.Description)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nAsk \"show me %s scene 2\" to read a script, or pick a character to practice as.", episodeID)
	return b.String()
}

// sceneScript shows a full scene script, located by episode and scene number,
// by character, or through semantic search as a last resort.
func (a *Assistant) sceneScript(ctx context.Context, cond intent.Condensed) string {
	text := cond.Topic + " " + cond.Details + " " + cond.OriginalMessage
	req := intent.ParsePracticeRequest(text, nil, CharacterNames())

	if req.EpisodeID != "" && req.SceneNumber > 0 {
		scene, err := a.scenes.GetScene(ctx, fmt.Sprintf("%s_%03d", req.EpisodeID, req.SceneNumber))
		if err != nil {
			return fmt.Sprintf("I couldn't find scene %d of %s. Try \"show me %s scene 1\".",
				req.SceneNumber, req.EpisodeID, req.EpisodeID)
		}
		return formatScene(scene)
	}

	if req.Character != "" {
		scene, err := a.scenes.FindSceneByCharacter(ctx, req.Character, req.EpisodeID)
		if err != nil {
			return fmt.Sprintf("I couldn't find a %s scene. Try asking like \"Show me S01E01 scene 2\".", req.Character)
		}
		return formatScene(scene)
	}

	results := a.search(ctx, fmt.Sprintf("scene script dialogue %s", cond.Topic), 5, corpus.SearchFilter{})
	if len(results) == 0 {
		return "I couldn't find that scene. Try asking like \"Show me S01E01 scene 2\" or \"Show me a Monica scene\"."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d scenes:\n\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, r.Chunk.SceneID, preview(r.Chunk.Content, 100))
	}
	b.WriteString("\nWhich one would you like the full script for? Name it like \"show me S01E01 scene 2\".")
	return b.String()
}

// culturalContext explains an expression, answering from the static
// catchphrase table first and the LLM otherwise.
func (a *Assistant) culturalContext(ctx context.Context, cond intent.Condensed) string {
	haystack := strings.ToLower(cond.Topic + " " + cond.Details + " " + cond.OriginalMessage)
	for _, e := range Expressions {
		if strings.Contains(haystack, strings.ToLower(e.Phrase)) {
			var b strings.Builder
			fmt.Fprintf(&b, "%q is %s's signature line.\n\n", e.Phrase, e.Character)
			fmt.Fprintf(&b, "Meaning: %s\n", e.Meaning)
			fmt.Fprintf(&b, "When to use: %s\n", e.Usage)
			fmt.Fprintf(&b, "Context: %s\n\n", e.Context)
			b.WriteString("Want to practice using this expression or learn about other Friends phrases?")
			return b.String()
		}
	}

	resp, err := a.complete(ctx, llm.CompletionRequest{
		SystemPrompt: culturalPrompt,
		Messages: []llm.Message{{
			Role: "user",
			Content: fmt.Sprintf("Analyze this query from an English learner: %q\nTopic: %s\nDetails: %s",
				cond.OriginalMessage, cond.Topic, cond.Details),
		}},
		Temperature: 0.3,
		MaxTokens:   600,
	})
	if err != nil {
		a.log.Warn("cultural explanation failed", "err", err)
		return fmt.Sprintf("I'd be happy to explain %q, but I'm having trouble reaching the language model right now.\n"+
			"Try again in a moment, or ask things like \"What does break a leg mean?\".", cond.Topic)
	}
	return resp.Content + "\n\nTo see it in real dialogue, ask for episodes about this topic or start a practice session."
}

// culturalPrompt shapes explanations of American expressions for learners.
const culturalPrompt = `You are an American cultural linguist and English teacher for students learning through the Friends TV show.

Analyze expressions, idioms, or cultural references and explain:
1. The meaning and origin
2. When and how it's used
3. Two or three natural example sentences
4. Similar expressions the learner might hear

Keep explanations clear for non-native speakers, in plain text without emojis,
and end with how the expression connects to Friends or 90s American culture.`

// generalChat answers off-topic Friends questions through the LLM.
func (a *Assistant) generalChat(ctx context.Context, cond intent.Condensed) string {
	resp, err := a.complete(ctx, llm.CompletionRequest{
		SystemPrompt: "You are a friendly Friends TV show expert and English learning assistant. " +
			"Help users learn English through Friends episodes. Be encouraging and concise, " +
			"answer in plain text without emojis, and suggest concrete ways to practice.",
		Messages:  []llm.Message{{Role: "user", Content: fmt.Sprintf("User is asking about: %s", cond.Topic)}},
		MaxTokens: 300,
	})
	if err != nil {
		a.log.Warn("general chat failed", "err", err)
		return "I'd love to chat about Friends and help you practice English. " +
			"Ask for episode recommendations, character info, a scene script, or say \"start practice session\"."
	}
	return resp.Content + "\n\nYou can also ask for episode recommendations, scene scripts, or start a practice session."
}

// practiceInstructions tells the user what a practice request needs.
func practiceInstructions() string {
	var b strings.Builder
	b.WriteString("Let's start your conversation practice. I need to know:\n\n")
	b.WriteString("1. Which episode? (e.g., S01E01)\n")
	b.WriteString("2. Which character do you want to practice as?\n")
	for _, c := range Cast {
		fmt.Fprintf(&b, "   - %s (%s)\n", c.Name, strings.ToLower(c.PracticeFocus))
	}
	b.WriteString("3. A specific scene, if you have one (optional)\n\n")
	b.WriteString("Example: \"I want to practice as Monica in S01E01 scene 2\"\n\n")
	b.WriteString("I'll show the scene context, play the other characters' lines,\n")
	b.WriteString("and score each of your lines with feedback.")
	return b.String()
}

// search embeds the query and runs it against the semantic index. Returns nil
// when semantic search is not wired or any step fails; callers degrade to
// guidance text.
func (a *Assistant) search(ctx context.Context, query string, topK int, filter corpus.SearchFilter) []corpus.SearchResult {
	if a.embedder == nil || a.index == nil {
		return nil
	}
	emb, err := a.embedder.Embed(ctx, query)
	if err != nil {
		a.log.Warn("query embedding failed", "err", err)
		return nil
	}
	results, err := a.index.Search(ctx, emb, topK, filter)
	if err != nil {
		a.log.Warn("semantic search failed", "err", err)
		return nil
	}
	return results
}

// complete calls the LLM with latency and outcome accounting.
func (a *Assistant) complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := a.llm.ModelID()

	start := time.Now()
	resp, err := a.llm.Complete(ctx, req)
	a.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("model", model)))
	if err != nil {
		a.metrics.RecordProviderRequest(ctx, model, "llm", "error")
		a.metrics.RecordProviderError(ctx, model, "llm")
		return nil, err
	}
	a.metrics.RecordProviderRequest(ctx, model, "llm", "ok")
	return resp, nil
}

// timedProvider routes the condenser's LLM calls through the assistant's
// instrumented complete path.
type timedProvider struct{ a *Assistant }

func (p *timedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return p.a.complete(ctx, req)
}

func (p *timedProvider) ModelID() string { return p.a.llm.ModelID() }

// formatScene renders a scene script with its metadata and size stats.
func formatScene(s *corpus.Scene) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", s.ID)
	fmt.Fprintf(&b, "Location: %s\n", s.Location)
	fmt.Fprintf(&b, "Characters: %s\n", strings.Join(s.Characters, ", "))
	if s.Description != "" {
		fmt.Fprintf(&b, "Scene: %s\n", s.Description)
	}
	b.WriteString("\n")
	b.WriteString(s.Text)

	words := len(strings.Fields(s.Text))
	lines := len(strings.Split(s.Text, "\n"))
	fmt.Fprintf(&b, "\n\nScript stats: %d words, %d lines\n", words, lines)
	fmt.Fprintf(&b, "Say \"practice as <character> in %s scene %d\" to rehearse it.", s.EpisodeID, s.SceneNumber)
	return b.String()
}

// preview truncates s to at most n bytes on a rune boundary, collapsing
// newlines so previews stay on one line.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}
