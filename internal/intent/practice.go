package intent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// PracticeRequest holds the coordinates extracted from a practice message.
// Zero fields mean the message (and recent history) did not mention them.
type PracticeRequest struct {
	EpisodeID   string
	Character   string
	SceneNumber int
}

// Complete reports whether the request names both an episode and a character,
// which is enough to start a session without asking follow-up questions.
func (r PracticeRequest) Complete() bool {
	return r.EpisodeID != "" && r.Character != ""
}

var (
	episodeRe     = regexp.MustCompile(`(?i)S(\d{2})E(\d{2})|Season\s+(\d+)\s+Episode\s+(\d+)`)
	sceneIDRe     = regexp.MustCompile(`S\d{2}E\d{2}_(\d{3})`)
	sceneNumberRe = regexp.MustCompile(`(?i)scene\s+(\d+)`)
)

var practiceKeywords = []string{"practice", "start practice", "practice as", "practice session"}

// IsPracticeMessage reports whether the message either mentions practice
// explicitly or already carries a complete episode+character pair.
func IsPracticeMessage(message string, req PracticeRequest) bool {
	lower := strings.ToLower(message)
	for _, kw := range practiceKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return req.Complete()
}

// ParsePracticeRequest extracts episode, character, and scene number from a
// message. When the message itself names no episode, the most recent history
// entries are scanned newest-first so "practice as Ross" right after asking
// about S01E01 resolves to that episode. characters is the cast of names to
// match against, e.g. assistant.CharacterNames().
func ParsePracticeRequest(message string, history []string, characters []string) PracticeRequest {
	var req PracticeRequest

	req.EpisodeID = MatchEpisode(message)

	// Fall back to recent history for the episode, carrying a scene id from
	// the same message when present.
	if req.EpisodeID == "" {
		recent := history
		if len(recent) > historyWindow {
			recent = recent[len(recent)-historyWindow:]
		}
		for i := len(recent) - 1; i >= 0; i-- {
			if id := MatchEpisode(recent[i]); id != "" {
				req.EpisodeID = id
				if m := sceneIDRe.FindStringSubmatch(recent[i]); m != nil {
					req.SceneNumber, _ = strconv.Atoi(m[1])
				}
				break
			}
		}
	}

	lower := strings.ToLower(message)
	for _, name := range characters {
		if strings.Contains(lower, strings.ToLower(name)) {
			req.Character = name
			break
		}
	}

	if req.SceneNumber == 0 {
		if m := sceneIDRe.FindStringSubmatch(message); m != nil {
			req.SceneNumber, _ = strconv.Atoi(m[1])
		} else if m := sceneNumberRe.FindStringSubmatch(message); m != nil {
			req.SceneNumber, _ = strconv.Atoi(m[1])
		}
	}

	return req
}

// MatchEpisode normalises either "SxxEyy" or "Season N Episode M" into the
// canonical "SxxEyy" form, or returns "" when the text names no episode.
func MatchEpisode(text string) string {
	m := episodeRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	var season, episode int
	if m[1] != "" {
		season, _ = strconv.Atoi(m[1])
		episode, _ = strconv.Atoi(m[2])
	} else {
		season, _ = strconv.Atoi(m[3])
		episode, _ = strconv.Atoi(m[4])
	}
	return fmt.Sprintf("S%02dE%02d", season, episode)
}
