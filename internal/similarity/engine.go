// Package similarity scores a learner's typed response against the expected
// script line using a cost-ordered cascade of comparison tiers.
//
// The cascade runs cheapest-first and short-circuits as soon as a tier is
// conclusive:
//
//  1. exact match on normalized text
//  2. near-exact match (a single character off)
//  3. Jaccard word-set similarity (the default signal)
//  4. Levenshtein character similarity for short phrases (≤20 chars)
//  5. embedding cosine similarity, only for longer lines where word overlap
//     is poor; the sole tier that performs I/O
//
// Tier 5 degrades gracefully: an embedding-provider failure falls back to the
// word-similarity result and is never surfaced to the caller. Score itself
// never panics past its boundary; an unexpected internal fault yields a
// zero-similarity result, because scoring sits inline in the session-advance
// path and must not abort an otherwise valid turn.
//
// The correctness threshold and the tier-5 trigger are empirically chosen
// constants from the production corpus; they are configurable rather than
// derived.
package similarity

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/soyeonk/replique/internal/observe"
	"github.com/soyeonk/replique/pkg/provider/embeddings"
)

// Default tuning values. See the package comment: these are preserved from
// the production deployment, not derived.
const (
	// DefaultCorrectThreshold is the minimum final similarity for an attempt
	// to count as correct.
	DefaultCorrectThreshold = 0.6

	// DefaultEmbeddingTrigger is the word-similarity value below which the
	// embedding tier is consulted for long phrases.
	DefaultEmbeddingTrigger = 0.4

	// DefaultShortPhraseLimit is the cleaned-expected-text length (in bytes)
	// at or below which the character-similarity tier applies instead of the
	// embedding tier.
	DefaultShortPhraseLimit = 20

	// wordShortCircuit is the word similarity at which the more expensive
	// tiers are skipped entirely.
	wordShortCircuit = 0.8
)

// SubScores carries the per-tier similarity signals that fed the final score.
// Tiers that did not run report 0.
type SubScores struct {
	Word      float64 `json:"word"`
	Character float64 `json:"character,omitempty"`
	Embedding float64 `json:"embedding,omitempty"`
}

// Result is the outcome of scoring one learner response.
type Result struct {
	// Similarity is the final blended score in [0, 1].
	Similarity float64 `json:"similarity"`

	// IsCorrect reports whether Similarity reached the engine's threshold.
	IsCorrect bool `json:"is_correct"`

	// Feedback is a short learner-facing message for this attempt.
	Feedback string `json:"feedback"`

	// SubScores holds the per-tier signals.
	SubScores SubScores `json:"sub_scores"`

	// ExactMatch is true when the normalized strings were identical.
	ExactMatch bool `json:"exact_match"`

	// VeryCloseMatch is true when the strings differed by a single character.
	VeryCloseMatch bool `json:"very_close_match"`
}

// Engine scores learner responses. Construct with New; the zero value is not
// usable. An Engine is read-only after construction and safe for concurrent
// use.
type Engine struct {
	embedder         embeddings.Provider
	metrics          *observe.Metrics
	correctThreshold float64
	embeddingTrigger float64
	shortPhraseLimit int
}

// Option is a functional option for New.
type Option func(*Engine)

// WithEmbeddings supplies the embedding provider used by the final cascade
// tier. Without one the engine never attempts embedding similarity and relies
// on the lexical tiers alone.
func WithEmbeddings(p embeddings.Provider) Option {
	return func(e *Engine) { e.embedder = p }
}

// WithCorrectThreshold overrides the minimum similarity counted as correct.
func WithCorrectThreshold(t float64) Option {
	return func(e *Engine) { e.correctThreshold = t }
}

// WithEmbeddingTrigger overrides the word-similarity value below which the
// embedding tier is consulted.
func WithEmbeddingTrigger(t float64) Option {
	return func(e *Engine) { e.embeddingTrigger = t }
}

// WithShortPhraseLimit overrides the expected-text length at or below which
// the character-similarity tier applies.
func WithShortPhraseLimit(n int) Option {
	return func(e *Engine) { e.shortPhraseLimit = n }
}

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New returns an Engine configured with the supplied options.
func New(opts ...Option) *Engine {
	e := &Engine{
		metrics:          observe.DefaultMetrics(),
		correctThreshold: DefaultCorrectThreshold,
		embeddingTrigger: DefaultEmbeddingTrigger,
		shortPhraseLimit: DefaultShortPhraseLimit,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Score compares userInput against expectedLine and returns a Result. It
// never returns an error and never panics: unexpected internal faults are
// converted into a zero-similarity result.
//
// ctx is used only by the embedding tier; all other tiers are pure string
// math and do not block.
func (e *Engine) Score(ctx context.Context, userInput, expectedLine string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scoring failed", "panic", r)
			res = Result{Feedback: "Something went wrong scoring that line. Moving on."}
		}
	}()

	cleanedExpected := ExtractDialogue(expectedLine)
	user := Normalize(userInput)
	expected := Normalize(cleanedExpected)

	if user == expected {
		return Result{
			Similarity: 1.0,
			IsCorrect:  true,
			Feedback:   "Perfect match!",
			SubScores:  SubScores{Word: 1.0},
			ExactMatch: true,
		}
	}

	if veryCloseMatch(user, expected) {
		return Result{
			Similarity:     0.95,
			IsCorrect:      true,
			Feedback:       e.feedback(0.95, cleanedExpected),
			SubScores:      SubScores{Word: wordSimilarity(user, expected)},
			VeryCloseMatch: true,
		}
	}

	word := wordSimilarity(user, expected)
	sub := SubScores{Word: word}
	final := word

	switch {
	case word >= wordShortCircuit:
		// Word overlap alone is conclusive; skip the expensive tiers.

	case len(expected) <= e.shortPhraseLimit:
		sub.Character = characterSimilarity(user, expected)
		final = math.Max(word, sub.Character)

	case word < e.embeddingTrigger && e.embedder != nil:
		if emb, err := e.embeddingSimilarity(ctx, user, expected); err != nil {
			e.metrics.EmbeddingFallbacks.Add(ctx, 1)
			slog.Warn("embedding similarity unavailable, using word similarity", "err", err)
		} else {
			sub.Embedding = emb
			final = math.Max(word, emb)
		}
	}

	return Result{
		Similarity: final,
		IsCorrect:  final >= e.correctThreshold,
		Feedback:   e.feedback(final, cleanedExpected),
		SubScores:  sub,
	}
}

// feedback maps a final similarity to the learner-facing message band.
func (e *Engine) feedback(similarity float64, expected string) string {
	switch {
	case similarity >= 0.8:
		return "Excellent! That's almost word for word."
	case similarity >= e.correctThreshold:
		return "Good! Close enough."
	case similarity >= 0.4:
		return "Not quite right, but you got the idea."
	default:
		return fmt.Sprintf("Try again! The correct line was: %q", expected)
	}
}

// veryCloseMatch reports whether a and b differ by exactly one character:
// equal rune length with a single differing position, or one is the other
// with exactly one rune inserted or removed. Comparison is rune-wise so
// multi-byte characters count as one.
func veryCloseMatch(a, b string) bool {
	ra, rb := []rune(a), []rune(b)

	if len(ra) == len(rb) {
		diff := 0
		for i := range ra {
			if ra[i] != rb[i] {
				diff++
				if diff > 1 {
					return false
				}
			}
		}
		return diff == 1
	}

	if abs(len(ra)-len(rb)) != 1 {
		return false
	}
	shorter, longer := ra, rb
	if len(ra) > len(rb) {
		shorter, longer = rb, ra
	}
	// One skip allowed in the longer string.
	skipped := false
	for i, j := 0, 0; i < len(longer); i++ {
		if j < len(shorter) && longer[i] == shorter[j] {
			j++
			continue
		}
		if skipped {
			return false
		}
		skipped = true
	}
	return true
}

// wordSimilarity is the Jaccard index over whitespace-tokenized word sets,
// with a +0.1 bonus when both sets have equal cardinality, clamped to 1.0.
// Two empty sets score 1.0; one empty set scores 0.0.
func wordSimilarity(a, b string) float64 {
	wordsA := fieldSet(a)
	wordsB := fieldSet(b)

	if len(wordsA) == 0 && len(wordsB) == 0 {
		return 1.0
	}
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0.0
	}

	intersection := 0
	for w := range wordsA {
		if _, ok := wordsB[w]; ok {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection

	jaccard := float64(intersection) / float64(union)
	if len(wordsA) == len(wordsB) {
		jaccard += 0.1
	}
	return math.Min(1.0, jaccard)
}

// characterSimilarity is the normalized Levenshtein ratio
// 1 - distance/max(len), used for short phrases where word sets are too
// coarse. Lengths are rune counts, matching the rune-based distance. Either
// operand being empty scores 0.
func characterSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}
	dist := matchr.Levenshtein(a, b)
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	return float64(maxLen-dist) / float64(maxLen)
}

// embeddingSimilarity embeds both normalized strings and returns their cosine
// similarity floored at 0.
func (e *Engine) embeddingSimilarity(ctx context.Context, a, b string) (float64, error) {
	start := time.Now()
	vecs, err := e.embedder.EmbedBatch(ctx, []string{a, b})
	e.metrics.EmbedDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("embed: %w", err)
	}
	if len(vecs) != 2 || len(vecs[0]) == 0 || len(vecs[1]) == 0 {
		return 0, fmt.Errorf("embed: unexpected vector count %d", len(vecs))
	}
	return math.Max(0, cosine(vecs[0], vecs[1])), nil
}

// cosine returns the cosine similarity of two equal-length vectors, or 0 when
// either has zero magnitude.
func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// fieldSet returns the set of whitespace-separated tokens in s.
func fieldSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
