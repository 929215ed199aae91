package similarity_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/soyeonk/replique/internal/observe"
	"github.com/soyeonk/replique/internal/similarity"
	"github.com/soyeonk/replique/pkg/provider/embeddings"
	"github.com/soyeonk/replique/pkg/provider/embeddings/mock"
)

const epsilon = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestScoreExactMatch(t *testing.T) {
	t.Parallel()
	e := similarity.New()

	res := e.Score(context.Background(), "There's nothing to tell!", "There's nothing to tell!")
	if !res.ExactMatch {
		t.Error("ExactMatch = false, want true")
	}
	if !almostEqual(res.Similarity, 1.0) {
		t.Errorf("Similarity = %v, want 1.0", res.Similarity)
	}
	if !res.IsCorrect {
		t.Error("IsCorrect = false, want true")
	}
}

func TestScoreIgnoresStageDirectionsAndPunctuation(t *testing.T) {
	t.Parallel()
	e := similarity.New()

	// The expected line carries a stage direction and trailing punctuation
	// that the learner is not expected to type.
	res := e.Score(context.Background(), "Ok", "(nervously) Ok...")
	if !res.ExactMatch {
		t.Errorf("ExactMatch = false, want true (got similarity %v)", res.Similarity)
	}
	if !almostEqual(res.Similarity, 1.0) {
		t.Errorf("Similarity = %v, want 1.0", res.Similarity)
	}
}

func TestScoreNearExactMatch(t *testing.T) {
	t.Parallel()
	e := similarity.New()

	// One typo: a dropped letter.
	res := e.Score(context.Background(), "Helo world", "Hello world")
	if !res.VeryCloseMatch {
		t.Error("VeryCloseMatch = false, want true")
	}
	if !almostEqual(res.Similarity, 0.95) {
		t.Errorf("Similarity = %v, want 0.95", res.Similarity)
	}
	if !res.IsCorrect {
		t.Error("IsCorrect = false, want true")
	}
}

func TestScoreWordSimilarity(t *testing.T) {
	t.Parallel()
	e := similarity.New()

	cases := []struct {
		name        string
		user        string
		expected    string
		want        float64
		wantCorrect bool
	}{
		// 4 shared of 8 total words is 0.5 Jaccard, plus the 0.1
		// equal-cardinality bonus (6 words on both sides).
		{"equal cardinality bonus", "grab a fork right now pal", "grab a spoon right now buddy", 0.6, true},
		// {you know we were on a break} vs {you know we were happy}:
		// 4 shared of 8 total, no bonus (7 vs 5 words).
		{"partial overlap", "you know we were happy", "you know we were on a break", 0.5, false},
		// Same word set in a different order clamps to 1.0.
		{"reordered words", "any more clothes could you be wearing", "could you be wearing any more clothes", 1.0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res := e.Score(context.Background(), tc.user, tc.expected)
			if !almostEqual(res.Similarity, tc.want) {
				t.Errorf("Similarity = %v, want %v", res.Similarity, tc.want)
			}
			if res.IsCorrect != tc.wantCorrect {
				t.Errorf("IsCorrect = %v, want %v", res.IsCorrect, tc.wantCorrect)
			}
		})
	}
}

func TestScoreShortPhraseUsesCharacterSimilarity(t *testing.T) {
	t.Parallel()
	e := similarity.New()

	// "pvt" vs "pivot": word-set overlap is almost nothing but the characters
	// are close. Levenshtein distance 2 over length 5 gives 0.6.
	res := e.Score(context.Background(), "pvt", "pivot")
	if !almostEqual(res.SubScores.Character, 0.6) {
		t.Errorf("SubScores.Character = %v, want 0.6", res.SubScores.Character)
	}
	if !almostEqual(res.Similarity, 0.6) {
		t.Errorf("Similarity = %v, want 0.6", res.Similarity)
	}
	if !res.IsCorrect {
		t.Error("IsCorrect = false, want true")
	}
}

func TestScoreEmbeddingTier(t *testing.T) {
	t.Parallel()

	embedder := &mock.Provider{
		EmbedBatchResult: [][]float32{{1, 0, 0}, {1, 0, 0}},
		DimensionsValue:  3,
	}
	e := similarity.New(similarity.WithEmbeddings(embedder))

	// Zero word overlap against a long expected line forces the semantic tier.
	res := e.Score(context.Background(), "completely unrelated text", "we were on a break and you know it")
	if len(embedder.EmbedBatchCalls) != 1 {
		t.Fatalf("EmbedBatch calls = %d, want 1", len(embedder.EmbedBatchCalls))
	}
	if !almostEqual(res.SubScores.Embedding, 1.0) {
		t.Errorf("SubScores.Embedding = %v, want 1.0", res.SubScores.Embedding)
	}
	if !almostEqual(res.Similarity, 1.0) {
		t.Errorf("Similarity = %v, want 1.0", res.Similarity)
	}
}

func TestScoreEmbeddingTierSkippedForDecentWordOverlap(t *testing.T) {
	t.Parallel()

	embedder := &mock.Provider{}
	e := similarity.New(similarity.WithEmbeddings(embedder))

	// Word similarity 0.5 is above the trigger, so no embedding call happens
	// even though the expected line is long.
	res := e.Score(context.Background(), "you know we were happy", "you know we were on a break")
	if len(embedder.EmbedBatchCalls) != 0 {
		t.Errorf("EmbedBatch calls = %d, want 0", len(embedder.EmbedBatchCalls))
	}
	if !almostEqual(res.Similarity, 0.5) {
		t.Errorf("Similarity = %v, want 0.5", res.Similarity)
	}
}

func TestScoreEmbeddingFailureFallsBackToWordSimilarity(t *testing.T) {
	t.Parallel()

	embedder := &mock.Provider{
		EmbedBatchErr: errors.New("provider unavailable"),
	}
	e := similarity.New(similarity.WithEmbeddings(embedder))

	res := e.Score(context.Background(), "completely unrelated text", "we were on a break and you know it")
	if len(embedder.EmbedBatchCalls) != 1 {
		t.Fatalf("EmbedBatch calls = %d, want 1", len(embedder.EmbedBatchCalls))
	}
	if !almostEqual(res.Similarity, 0.0) {
		t.Errorf("Similarity = %v, want 0.0 (word similarity)", res.Similarity)
	}
	if res.IsCorrect {
		t.Error("IsCorrect = true, want false")
	}
	if !strings.Contains(res.Feedback, "we were on a break") {
		t.Errorf("Feedback = %q, want it to contain the expected line", res.Feedback)
	}
}

func TestScoreWithoutEmbedderStaysLexical(t *testing.T) {
	t.Parallel()
	e := similarity.New()

	res := e.Score(context.Background(), "completely unrelated text", "we were on a break and you know it")
	if !almostEqual(res.Similarity, 0.0) {
		t.Errorf("Similarity = %v, want 0.0", res.Similarity)
	}
	if !almostEqual(res.SubScores.Embedding, 0.0) {
		t.Errorf("SubScores.Embedding = %v, want 0.0", res.SubScores.Embedding)
	}
}

func TestScoreCustomThreshold(t *testing.T) {
	t.Parallel()
	e := similarity.New(similarity.WithCorrectThreshold(0.9))

	res := e.Score(context.Background(), "Helo world", "Hello world")
	if !res.IsCorrect {
		t.Error("IsCorrect = false, want true (0.95 >= 0.9)")
	}

	res = e.Score(context.Background(), "grab a fork right now pal", "grab a spoon right now buddy")
	if res.IsCorrect {
		t.Errorf("IsCorrect = true, want false (%v < 0.9)", res.Similarity)
	}
}

// panickingProvider triggers the scoring panic boundary from inside the
// embedding tier.
type panickingProvider struct{}

var _ embeddings.Provider = panickingProvider{}

func (panickingProvider) Embed(context.Context, string) ([]float32, error) {
	panic("embed")
}

func (panickingProvider) EmbedBatch(context.Context, []string) ([][]float32, error) {
	panic("embed batch")
}

func (panickingProvider) Dimensions() int { return 0 }

func (panickingProvider) ModelID() string { return "panic" }

func TestScoreRecoversFromPanic(t *testing.T) {
	t.Parallel()
	e := similarity.New(similarity.WithEmbeddings(panickingProvider{}))

	res := e.Score(context.Background(), "completely unrelated text", "we were on a break and you know it")
	if !almostEqual(res.Similarity, 0.0) {
		t.Errorf("Similarity = %v, want 0.0", res.Similarity)
	}
	if res.IsCorrect {
		t.Error("IsCorrect = true, want false")
	}
	if res.Feedback == "" {
		t.Error("Feedback is empty, want a fallback message")
	}
}

func TestScoreBothEmpty(t *testing.T) {
	t.Parallel()
	e := similarity.New()

	// Normalization can empty both sides (punctuation-only input).
	res := e.Score(context.Background(), "...", "?!")
	if !res.ExactMatch {
		t.Error("ExactMatch = false, want true")
	}
	if !almostEqual(res.Similarity, 1.0) {
		t.Errorf("Similarity = %v, want 1.0", res.Similarity)
	}
}

func TestScoreOneEmpty(t *testing.T) {
	t.Parallel()
	e := similarity.New()

	res := e.Score(context.Background(), "", "Joey doesn't share food")
	if res.IsCorrect {
		t.Error("IsCorrect = true, want false")
	}
	if !almostEqual(res.Similarity, 0.0) {
		t.Errorf("Similarity = %v, want 0.0", res.Similarity)
	}
}

func TestScoreNearExactMatchMultibyte(t *testing.T) {
	t.Parallel()
	e := similarity.New()

	// A single accented character counts as one difference, not two bytes.
	res := e.Score(context.Background(), "cafe au lait", "café au lait")
	if !res.VeryCloseMatch {
		t.Error("VeryCloseMatch = false, want true")
	}
	if !almostEqual(res.Similarity, 0.95) {
		t.Errorf("Similarity = %v, want 0.95", res.Similarity)
	}
}

func TestScoreCharacterSimilarityCountsRunes(t *testing.T) {
	t.Parallel()
	e := similarity.New()

	// Short expected phrase, so the character tier runs. Levenshtein distance
	// is 3 over 9 runes; a byte-based length would dilute the ratio.
	res := e.Score(context.Background(), "tres bon", "très bien")
	if !almostEqual(res.SubScores.Character, 2.0/3.0) {
		t.Errorf("SubScores.Character = %v, want %v", res.SubScores.Character, 2.0/3.0)
	}
}

func TestScoreWordSimilarityIsSymmetric(t *testing.T) {
	t.Parallel()
	e := similarity.New()
	ctx := context.Background()

	a, b := "the quick brown fox", "fox brown lazy dogs"
	ab := e.Score(ctx, a, b).SubScores.Word
	ba := e.Score(ctx, b, a).SubScores.Word
	if !almostEqual(ab, ba) {
		t.Errorf("word similarity not symmetric: %v vs %v", ab, ba)
	}
}

func TestScoreEmbeddingMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	met, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	embedder := &mock.Provider{EmbedBatchErr: errors.New("provider unavailable")}
	e := similarity.New(
		similarity.WithEmbeddings(embedder),
		similarity.WithMetrics(met),
	)
	e.Score(context.Background(), "completely unrelated text", "we were on a break and you know it")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	fallbacks := findTestMetric(rm, "replique.score.embedding_fallbacks")
	if fallbacks == nil {
		t.Fatal("embedding fallback counter not recorded")
	}
	sum, ok := fallbacks.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) == 0 {
		t.Fatal("embedding fallback counter has no data points")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("fallback counter = %d, want 1", got)
	}

	dur := findTestMetric(rm, "replique.embed.duration")
	if dur == nil {
		t.Fatal("embed duration histogram not recorded")
	}
	hist, ok := dur.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) == 0 {
		t.Fatal("embed duration histogram has no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("embed duration count = %d, want 1", got)
	}
}

func findTestMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}
