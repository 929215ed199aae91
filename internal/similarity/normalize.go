package similarity

import "strings"

// ExtractDialogue strips stage directions from an expected script line so that
// comparison happens against the spoken words only. Both "(...)" and "[...]"
// spans are removed, then whitespace is collapsed.
//
// Unterminated spans are dropped to the end of the string; nesting is not
// supported (transcripts do not nest directions).
func ExtractDialogue(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	depth := 0
	var open byte
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case depth == 0 && (c == '(' || c == '['):
			depth = 1
			open = c
		case depth > 0 && c == open:
			depth++
		case depth > 0 && ((open == '(' && c == ')') || (open == '[' && c == ']')):
			depth--
		case depth == 0:
			b.WriteByte(c)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// punctuationReplacer removes sentence punctuation that does not affect
// meaning and turns hyphens into spaces so hyphenated compounds still
// tokenise.
var punctuationReplacer = strings.NewReplacer(
	".", "",
	"!", "",
	"?", "",
	",", "",
	`"`, "",
	"'", "",
	"-", " ",
)

// Normalize lowercases text, strips sentence punctuation, and collapses
// whitespace. Both the learner's input and the expected line pass through
// this before any comparison tier.
func Normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = punctuationReplacer.Replace(text)
	return strings.Join(strings.Fields(text), " ")
}
