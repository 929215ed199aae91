package practice

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/soyeonk/replique/internal/observe"
	"github.com/soyeonk/replique/internal/script"
	"github.com/soyeonk/replique/internal/similarity"
	"github.com/soyeonk/replique/pkg/corpus"
)

// StartRequest describes the session a learner wants to begin.
type StartRequest struct {
	// UserID identifies the learner.
	UserID string

	// Character is the role to perform. Required.
	Character string

	// SceneID pins the exact scene. When empty, a scene is picked by
	// character (and EpisodeID, when set).
	SceneID string

	// EpisodeID narrows character-based scene selection to one episode.
	// Ignored when SceneID is set.
	EpisodeID string
}

// TurnPrompt is what the learner sees before typing a turn: the surrounding
// script context, the line to perform, and their position in the scene.
type TurnPrompt struct {
	// Ordinal is the 1-based number of the upcoming turn.
	Ordinal int

	// TotalTurns is the session's turn count.
	TotalTurns int

	// Context holds the preceding script lines, newline-joined in transcript
	// order. Empty at the very start of a scene.
	Context string

	// Expected is the script text the learner is asked to reproduce.
	Expected string
}

// StartResult is returned by [Service.Start].
type StartResult struct {
	// Session is the newly created session.
	Session Session

	// Location and Description identify the scene setting for display.
	Location    string
	Description string

	// Prompt is the first turn's prompt.
	Prompt TurnPrompt
}

// ContinueResult is returned by [Service.Continue].
type ContinueResult struct {
	// Attempt is the scored attempt that was just recorded.
	Attempt Attempt

	// Feedback is the learner-facing message for this attempt.
	Feedback string

	// Done reports whether this attempt consumed the last turn.
	Done bool

	// NextPrompt is the prompt for the next turn. Nil when Done.
	NextPrompt *TurnPrompt

	// Session is the updated session snapshot.
	Session Session
}

// Progress is returned by [Service.Status].
type Progress struct {
	// Session is the current session snapshot.
	Session Session

	// Completed and Remaining count turns.
	Completed int
	Remaining int

	// Accuracy is the percentage of correct attempts so far, rounded to one
	// decimal. Zero when nothing has been attempted.
	Accuracy float64
}

// Summary is returned by [Service.Complete] for a finished session.
type Summary struct {
	SessionID  string
	SceneID    string
	Character  string
	TotalTurns int

	// CorrectCount is how many attempts reached the scoring threshold.
	CorrectCount int

	// Accuracy is the percentage of correct attempts, rounded to one decimal.
	Accuracy float64

	// DurationMinutes is the session length in minutes, rounded to one
	// decimal.
	DurationMinutes float64

	// FinalScore is Accuracy rounded to the nearest integer.
	FinalScore int
}

// Service coordinates practice sessions. Construct with [NewService]; the
// zero value is not usable. A Service is read-only after construction and
// safe for concurrent use.
type Service struct {
	scenes   corpus.Store
	sessions SessionStore
	scorer   *similarity.Engine
	metrics  *observe.Metrics
	log      *slog.Logger

	contextWindow int
	now           func() time.Time
	newID         func() string
}

// ServiceOption is a functional option for [NewService].
type ServiceOption func(*Service)

// WithContextWindow overrides how many preceding script lines each prompt
// shows.
func WithContextWindow(n int) ServiceOption {
	return func(s *Service) { s.contextWindow = n }
}

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.log = l }
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides session ID generation, mainly for tests.
func WithIDGenerator(newID func() string) ServiceOption {
	return func(s *Service) { s.newID = newID }
}

// NewService returns a Service backed by the given collaborators.
func NewService(scenes corpus.Store, sessions SessionStore, scorer *similarity.Engine, opts ...ServiceOption) *Service {
	s := &Service{
		scenes:        scenes,
		sessions:      sessions,
		scorer:        scorer,
		metrics:       observe.DefaultMetrics(),
		log:           slog.Default(),
		contextWindow: script.DefaultContextWindow,
		now:           time.Now,
		newID:         uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start creates a new session for the requested scene and character and
// returns the first turn's prompt.
//
// When req.SceneID is empty the scene is chosen by character via
// [corpus.Store.FindSceneByCharacter]. Returns [ErrNoTurns] when the
// character never speaks in the chosen scene, and [corpus.ErrNotFound] when
// no scene matches.
func (s *Service) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	if req.Character == "" {
		return nil, fmt.Errorf("practice: start: character is required")
	}

	var (
		scene *corpus.Scene
		err   error
	)
	if req.SceneID != "" {
		scene, err = s.scenes.GetScene(ctx, req.SceneID)
	} else {
		scene, err = s.scenes.FindSceneByCharacter(ctx, req.Character, req.EpisodeID)
	}
	if err != nil {
		return nil, fmt.Errorf("practice: start: %w", err)
	}

	lines := script.Parse(scene.Text)
	turns := script.SelectTurns(lines, req.Character)
	if len(turns) == 0 {
		return nil, fmt.Errorf("practice: start: %q in scene %q: %w", req.Character, scene.ID, ErrNoTurns)
	}

	session := Session{
		ID:         s.newID(),
		UserID:     req.UserID,
		SceneID:    scene.ID,
		EpisodeID:  scene.EpisodeID,
		Character:  req.Character,
		TotalTurns: len(turns),
		Status:     StatusActive,
		StartedAt:  s.now().UTC(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("practice: start: create session: %w", err)
	}

	s.metrics.SessionsStarted.Add(ctx, 1)
	s.metrics.ActiveSessions.Add(ctx, 1)
	s.log.Info("practice session started",
		"session_id", session.ID,
		"scene_id", scene.ID,
		"character", req.Character,
		"turns", len(turns),
	)

	return &StartResult{
		Session:     session,
		Location:    scene.Location,
		Description: scene.Description,
		Prompt:      s.prompt(lines, turns, 0, len(turns)),
	}, nil
}

// Continue scores input against the session's current turn, records the
// attempt, and advances the cursor by exactly one.
//
// Returns [ErrNoMoreTurns] for completed sessions, [ErrSessionNotActive] for
// paused ones, and [ErrVersionConflict] when a concurrent Continue won the
// update race; the caller may retry with fresh state.
func (s *Service) Continue(ctx context.Context, sessionID, input string) (*ContinueResult, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("practice: continue: %w", err)
	}
	switch sess.Status {
	case StatusActive:
	case StatusCompleted:
		return nil, fmt.Errorf("practice: continue session %q: %w", sessionID, ErrNoMoreTurns)
	default:
		return nil, fmt.Errorf("practice: continue session %q (status %s): %w", sessionID, sess.Status, ErrSessionNotActive)
	}

	scene, err := s.scenes.GetScene(ctx, sess.SceneID)
	if err != nil {
		return nil, fmt.Errorf("practice: continue: %w", err)
	}
	lines := script.Parse(scene.Text)
	turns := script.SelectTurns(lines, sess.Character)

	// A corpus re-ingest can shrink a scene under a live session.
	if sess.Cursor >= len(turns) {
		return nil, fmt.Errorf("practice: continue session %q: %w", sessionID, ErrNoMoreTurns)
	}
	expected := turns[sess.Cursor]

	scoreStart := time.Now()
	res := s.scorer.Score(ctx, input, expected.Text)
	s.metrics.ScoreDuration.Record(ctx, time.Since(scoreStart).Seconds())
	s.metrics.RecordAttempt(ctx, res.IsCorrect)

	attempt := Attempt{
		Ordinal:      sess.Cursor + 1,
		LinePosition: expected.Position,
		Expected:     expected.Text,
		Input:        input,
		Similarity:   res.Similarity,
		IsCorrect:    res.IsCorrect,
		AttemptedAt:  s.now().UTC(),
	}
	sess.Attempts = append(sess.Attempts, attempt)
	sess.Cursor++

	done := sess.Cursor == sess.TotalTurns
	if done {
		sess.Status = StatusCompleted
		sess.CompletedAt = s.now().UTC()
	}

	if err := s.sessions.Update(ctx, *sess); err != nil {
		return nil, fmt.Errorf("practice: continue: update session: %w", err)
	}

	if done {
		s.metrics.SessionsCompleted.Add(ctx, 1)
		s.metrics.ActiveSessions.Add(ctx, -1)
		s.log.Info("practice session completed",
			"session_id", sess.ID,
			"correct", sess.CorrectCount(),
			"total", sess.TotalTurns,
		)
	}

	result := &ContinueResult{
		Attempt:  attempt,
		Feedback: res.Feedback,
		Done:     done,
		Session:  *sess,
	}
	if !done {
		p := s.prompt(lines, turns, sess.Cursor, sess.TotalTurns)
		result.NextPrompt = &p
	}
	return result, nil
}

// Status returns a progress snapshot for the session.
func (s *Service) Status(ctx context.Context, sessionID string) (*Progress, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("practice: status: %w", err)
	}
	return &Progress{
		Session:   *sess,
		Completed: sess.Cursor,
		Remaining: sess.TotalTurns - sess.Cursor,
		Accuracy:  accuracy(sess),
	}, nil
}

// Complete returns the final summary of a completed session.
// Returns [ErrSessionNotCompleted] while turns remain.
func (s *Service) Complete(ctx context.Context, sessionID string) (*Summary, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("practice: complete: %w", err)
	}
	if sess.Status != StatusCompleted {
		return nil, fmt.Errorf("practice: complete session %q (cursor %d/%d): %w",
			sessionID, sess.Cursor, sess.TotalTurns, ErrSessionNotCompleted)
	}

	acc := rawAccuracy(sess)
	return &Summary{
		SessionID:       sess.ID,
		SceneID:         sess.SceneID,
		Character:       sess.Character,
		TotalTurns:      sess.TotalTurns,
		CorrectCount:    sess.CorrectCount(),
		Accuracy:        round1(acc),
		DurationMinutes: round1(sess.CompletedAt.Sub(sess.StartedAt).Minutes()),
		FinalScore:      int(math.Round(acc)),
	}, nil
}

// prompt builds the TurnPrompt for the turn at cursor.
func (s *Service) prompt(lines, turns []script.Line, cursor, total int) TurnPrompt {
	return TurnPrompt{
		Ordinal:    cursor + 1,
		TotalTurns: total,
		Context:    script.ContextBefore(lines, turns[cursor].Position, s.contextWindow),
		Expected:   turns[cursor].Text,
	}
}

// rawAccuracy is the unrounded percentage of correct attempts.
func rawAccuracy(sess *Session) float64 {
	if len(sess.Attempts) == 0 {
		return 0
	}
	return 100 * float64(sess.CorrectCount()) / float64(len(sess.Attempts))
}

// accuracy is rawAccuracy rounded to one decimal.
func accuracy(sess *Session) float64 {
	return round1(rawAccuracy(sess))
}

// round1 rounds to one decimal place.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
