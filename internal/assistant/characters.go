package assistant

import "strings"

// Character holds the static learner-facing profile of a main cast member.
type Character struct {
	Name           string
	Personality    string
	Traits         string
	SpeechPatterns string
	PracticeFocus  string
}

// Expression is a well-known catchphrase with its cultural explanation.
type Expression struct {
	Phrase    string
	Character string
	Meaning   string
	Usage     string
	Context   string
}

// Cast lists the six main characters in credits order.
var Cast = []Character{
	{
		Name:           "Monica",
		Personality:    "Perfectionist chef, obsessed with cleanliness",
		Traits:         "Competitive, caring, neurotic about organization",
		SpeechPatterns: "Fast-talking, expressive, uses food metaphors",
		PracticeFocus:  "Giving advice, organizing events, cooking vocabulary",
	},
	{
		Name:           "Rachel",
		Personality:    "Fashion-focused, wealthy background turned independent",
		Traits:         "Shopping enthusiast, romantic, growing confident",
		SpeechPatterns: "Valley girl accent initially, sophisticated later",
		PracticeFocus:  "Fashion vocabulary, workplace conversations, relationship talks",
	},
	{
		Name:           "Ross",
		Personality:    "Paleontologist, intellectual, awkward in relationships",
		Traits:         "Nerdy, passionate about dinosaurs, jealous tendencies",
		SpeechPatterns: "Academic vocabulary, explains things in detail",
		PracticeFocus:  "Academic discussions, explaining concepts, awkward situations",
	},
	{
		Name:           "Chandler",
		Personality:    "Sarcastic office worker, commitment issues",
		Traits:         "Witty, defensive through humor, loyal friend",
		SpeechPatterns: "Heavy use of sarcasm, rhetorical questions, catchphrases",
		PracticeFocus:  "Sarcasm, office humor, witty comebacks",
	},
	{
		Name:           "Joey",
		Personality:    "Struggling actor, simple but loyal",
		Traits:         "Food-loving, ladies' man, childlike innocence",
		SpeechPatterns: "Simple vocabulary, catchphrase 'How you doin'?'",
		PracticeFocus:  "Casual conversations, expressing confusion, food-related talks",
	},
	{
		Name:           "Phoebe",
		Personality:    "Eccentric musician with unconventional past",
		Traits:         "Free-spirited, honest to a fault, believes in alternative medicine",
		SpeechPatterns: "Unique worldview, blunt honesty, spiritual references",
		PracticeFocus:  "Creative expressions, giving unconventional advice, music vocabulary",
	},
}

// Expressions lists catchphrases answered without an LLM round trip.
var Expressions = []Expression{
	{
		Phrase:    "How you doin'?",
		Character: "Joey",
		Meaning:   "Flirtatious greeting, Joey's pickup line",
		Usage:     "Casual, humorous way to greet someone you find attractive",
		Context:   "Informal, mostly used by Joey as his signature line",
	},
	{
		Phrase:    "Could I BE any more",
		Character: "Chandler",
		Meaning:   "Sarcastic emphasis pattern",
		Usage:     "To sarcastically emphasize something obvious or extreme",
		Context:   "Chandler's signature sarcastic speech pattern",
	},
	{
		Phrase:    "We were on a break!",
		Character: "Ross",
		Meaning:   "Excuse for dating someone else during relationship pause",
		Usage:     "Defensive justification, became a running gag",
		Context:   "Ross's defense for his actions during break with Rachel",
	},
}

// CharacterNames returns the cast names in order, for regex-free name
// matching in practice requests.
func CharacterNames() []string {
	names := make([]string, len(Cast))
	for i, c := range Cast {
		names[i] = c.Name
	}
	return names
}

// FindCharacter returns the profile whose name appears in text, matching
// case-insensitively, or nil when no cast member is mentioned.
func FindCharacter(text string) *Character {
	lower := strings.ToLower(text)
	for i := range Cast {
		if strings.Contains(lower, strings.ToLower(Cast[i].Name)) {
			return &Cast[i]
		}
	}
	return nil
}
