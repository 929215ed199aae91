package ingest_test

import (
	"strings"
	"testing"

	"github.com/soyeonk/replique/internal/ingest"
)

const sampleTranscript = `THE ONE WHERE MONICA GETS A ROOMMATE

Written by: Marta Kauffman and David Crane

[Scene: Central Perk, Chandler, Joey, Phoebe, and Monica are there.]

Monica: There's nothing to tell! He's just some guy I work with!
Joey: C'mon, you're going out with the guy!
(Chandler raises an eyebrow.)
Phoebe: Wait, does he eat chalk?

[Scene: Monica's apartment, everyone is sitting around the kitchen table.]

Rachel: Oh God Monica hi! Thank God!
Monica: Rachel?!
Gunther Jr: Coffee anyone?
`

func TestParseEpisode(t *testing.T) {
	t.Parallel()

	scenes, err := ingest.ParseEpisode("S01E01", 1, 1, strings.NewReader(sampleTranscript))
	if err != nil {
		t.Fatalf("ParseEpisode: %v", err)
	}
	if len(scenes) != 2 {
		t.Fatalf("scenes = %d, want 2", len(scenes))
	}

	first := scenes[0]
	if first.ID != "S01E01_001" {
		t.Errorf("ID = %q, want S01E01_001", first.ID)
	}
	if first.EpisodeTitle != "THE ONE WHERE MONICA GETS A ROOMMATE" {
		t.Errorf("EpisodeTitle = %q", first.EpisodeTitle)
	}
	if first.Location != "Central Perk" {
		t.Errorf("Location = %q, want Central Perk", first.Location)
	}
	if first.Description != "Chandler, Joey, Phoebe, and Monica are there." {
		t.Errorf("Description = %q", first.Description)
	}
	wantChars := []string{"Joey", "Monica", "Phoebe"}
	if len(first.Characters) != len(wantChars) {
		t.Fatalf("Characters = %v, want %v", first.Characters, wantChars)
	}
	for i, c := range wantChars {
		if first.Characters[i] != c {
			t.Errorf("Characters[%d] = %q, want %q", i, first.Characters[i], c)
		}
	}
	if !strings.HasPrefix(first.Text, "[Scene: Central Perk") {
		t.Errorf("scene header missing from raw text: %q", first.Text)
	}
	if strings.Contains(first.Text, "Written by") {
		t.Errorf("preamble leaked into scene text: %q", first.Text)
	}

	second := scenes[1]
	if second.ID != "S01E01_002" || second.SceneNumber != 2 {
		t.Errorf("second scene = %q #%d", second.ID, second.SceneNumber)
	}
	if second.Location != "Monica's apartment" {
		t.Errorf("Location = %q", second.Location)
	}
	// Multi-word speaker names are kept intact.
	found := false
	for _, c := range second.Characters {
		if c == "Gunther Jr" {
			found = true
		}
	}
	if !found {
		t.Errorf("Characters = %v, want Gunther Jr included", second.Characters)
	}
}

func TestParseEpisodeNoScenes(t *testing.T) {
	t.Parallel()

	scenes, err := ingest.ParseEpisode("S01E01", 1, 1, strings.NewReader("just some notes\nno scene markers here\n"))
	if err != nil {
		t.Fatalf("ParseEpisode: %v", err)
	}
	if len(scenes) != 0 {
		t.Errorf("scenes = %d, want 0", len(scenes))
	}
}

func TestParseEpisodeTitleAfterFirstScene(t *testing.T) {
	t.Parallel()

	transcript := "[Scene: Central Perk, the gang is there.]\nJoey: Hey.\nTHE ONE WITH THE LATE TITLE\n"
	scenes, err := ingest.ParseEpisode("S02E01", 2, 1, strings.NewReader(transcript))
	if err != nil {
		t.Fatalf("ParseEpisode: %v", err)
	}
	if len(scenes) != 1 {
		t.Fatalf("scenes = %d, want 1", len(scenes))
	}
	if scenes[0].EpisodeTitle != "THE ONE WITH THE LATE TITLE" {
		t.Errorf("EpisodeTitle = %q, want backfilled title", scenes[0].EpisodeTitle)
	}
}

func TestEpisodeIDFromFilename(t *testing.T) {
	t.Parallel()

	id, season, episode, err := ingest.EpisodeIDFromFilename("/data/raw/S03E12.txt")
	if err != nil {
		t.Fatalf("EpisodeIDFromFilename: %v", err)
	}
	if id != "S03E12" || season != 3 || episode != 12 {
		t.Errorf("got %q s%d e%d", id, season, episode)
	}

	if _, _, _, err := ingest.EpisodeIDFromFilename("notes.txt"); err == nil {
		t.Error("expected error for non-episode filename")
	}
}
