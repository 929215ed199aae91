package script

import "strings"

// Parse splits sceneText into trimmed, non-empty lines and classifies each one
// independently:
//
//   - fully parenthesised "(...)" → action
//   - fully bracketed "[...]" → action (stage/scene direction)
//   - contains a colon → dialogue, split at the first colon into speaker and text
//   - anything else → narration
//
// Positions are assigned only to surviving lines, contiguous from 1.
func Parse(sceneText string) []Line {
	var lines []Line

	for _, raw := range strings.Split(sceneText, "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		line := classify(raw)
		line.Position = len(lines) + 1
		lines = append(lines, line)
	}

	return lines
}

// classify applies the per-line classification rules to a single trimmed,
// non-empty line.
func classify(raw string) Line {
	if strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")") {
		return Line{Kind: KindAction, Text: raw}
	}
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		return Line{Kind: KindAction, Text: raw}
	}

	if speaker, text, ok := strings.Cut(raw, ":"); ok {
		return Line{
			Kind:    KindDialogue,
			Speaker: strings.TrimSpace(speaker),
			Text:    strings.TrimSpace(text),
		}
	}

	return Line{Kind: KindNarration, Text: raw}
}
