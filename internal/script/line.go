// Package script turns raw scene transcripts into typed line sequences and
// derives the turns a learner must perform for a chosen character.
//
// A transcript is a newline-separated text in the common fan-script format:
//
//	[Scene: Central Perk, everyone is there.]
//	Monica: There's nothing to tell!
//	(Joey shrugs.)
//	Ross grabs his coat.
//
// Parse classifies each non-empty line independently; there is no cross-line
// state. The colon rule is deliberately naive: an utterance that itself
// contains a colon ("Time: 3pm") parses as dialogue from speaker "Time".
// Transcripts in the corpus do not hit this case in practice, and guessing a
// smarter rule would silently change which lines become turns.
package script

// LineKind classifies a transcript line.
type LineKind string

const (
	// KindDialogue is a spoken line attributed to a named speaker.
	KindDialogue LineKind = "dialogue"

	// KindAction is a stage direction, wrapped in parentheses or brackets.
	KindAction LineKind = "action"

	// KindNarration is any other descriptive line.
	KindNarration LineKind = "narration"
)

// Line is one parsed transcript unit. Lines are immutable once parsed.
type Line struct {
	// Position is the 1-based ordinal of the line within its scene. Ordinals
	// are contiguous; dropped empty input lines are not counted.
	Position int

	// Kind classifies the line.
	Kind LineKind

	// Speaker is the speaking character's name. Set only for KindDialogue.
	Speaker string

	// Text is the line content. For dialogue this excludes the speaker prefix;
	// for action lines it includes the surrounding parentheses/brackets.
	Text string

	// IsUserLine marks a dialogue line that the practicing learner must
	// produce. Set by SelectTurns, never by Parse.
	IsUserLine bool
}
