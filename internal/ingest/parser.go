// Package ingest turns raw episode transcripts into corpus scenes and
// semantic index entries.
//
// A transcript file holds one episode. Scene boundaries are marked by
// "[Scene: <location>, <description>]" headers; the episode title is the first
// "THE ONE ..." line. Everything between two headers, header included, becomes
// one scene's raw text. Parsing is pure; Ingestor wires the parsed scenes into
// the store and the vector index.
package ingest

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/soyeonk/replique/pkg/corpus"
)

var (
	sceneRe       = regexp.MustCompile(`(?i)^\[Scene:\s*([^,\]]+)\s*,\s*(.+?)\]`)
	dialogueRe    = regexp.MustCompile(`^([A-Za-z][A-Za-z ]*):\s*(.+)`)
	titleRe       = regexp.MustCompile(`^\s*(THE ONE .+)`)
	episodeFileRe = regexp.MustCompile(`(?i)^S(\d{2})E(\d{2})$`)
)

// EpisodeIDFromFilename derives the canonical episode ID and its numeric
// coordinates from a transcript filename such as "S01E01.txt".
func EpisodeIDFromFilename(path string) (id string, season, episode int, err error) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	m := episodeFileRe.FindStringSubmatch(stem)
	if m == nil {
		return "", 0, 0, fmt.Errorf("ingest: filename %q does not look like SxxEyy", filepath.Base(path))
	}
	season, _ = strconv.Atoi(m[1])
	episode, _ = strconv.Atoi(m[2])
	return fmt.Sprintf("S%02dE%02d", season, episode), season, episode, nil
}

// ParseEpisode reads one episode transcript and splits it into scenes.
// Lines before the first scene header are scanned for the episode title but
// produce no scene of their own. Returns an empty slice when the transcript
// contains no scene headers.
func ParseEpisode(episodeID string, season, episode int, r io.Reader) ([]corpus.Scene, error) {
	var (
		scenes      []corpus.Scene
		buffer      []string
		title       string
		location    string
		description string
		inScene     bool
	)

	flush := func() {
		if !inScene || len(buffer) == 0 {
			return
		}
		n := len(scenes) + 1
		scenes = append(scenes, corpus.Scene{
			ID:           fmt.Sprintf("%s_%03d", episodeID, n),
			EpisodeID:    episodeID,
			EpisodeTitle: title,
			Season:       season,
			Episode:      episode,
			SceneNumber:  n,
			Location:     strings.TrimSpace(location),
			Description:  strings.TrimSpace(description),
			Characters:   speakers(buffer),
			Text:         strings.TrimSpace(strings.Join(buffer, "\n")),
		})
		buffer = nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if title == "" {
			if m := titleRe.FindStringSubmatch(line); m != nil {
				title = strings.TrimSpace(m[1])
			}
		}

		if m := sceneRe.FindStringSubmatch(line); m != nil {
			flush()
			inScene = true
			location = m[1]
			description = m[2]
		}
		if inScene {
			buffer = append(buffer, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ingest: read transcript: %w", err)
	}
	flush()

	// The title can appear after the first scene header in some transcripts;
	// backfill scenes parsed before it was seen.
	for i := range scenes {
		if scenes[i].EpisodeTitle == "" {
			scenes[i].EpisodeTitle = title
		}
	}
	return scenes, nil
}

// speakers collects the dialogue speakers of a scene, sorted and unique.
func speakers(lines []string) []string {
	set := map[string]bool{}
	for _, ln := range lines {
		if m := dialogueRe.FindStringSubmatch(ln); m != nil {
			set[strings.TrimSpace(m[1])] = true
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
