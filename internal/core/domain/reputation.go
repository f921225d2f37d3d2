package domain

// Reaction vocabularies for reputation scoring. Membership is exact;
// reaction names outside both sets do not affect the score.
var (
	positiveReactions = map[string]struct{}{
		"+1":               {},
		"thumbsup":         {},
		"thumbs_up":        {},
		"white_check_mark": {},
		"heavy_check_mark": {},
		"yes":              {},
		"good":             {},
		"verified":         {},
		"raised_hands":     {},
		"heart":            {},
		"heavy_plus_sign":  {},
	}

	negativeReactions = map[string]struct{}{
		"-1":          {},
		"thumbsdown":  {},
		"thumbs_down": {},
		"x":           {},
		"no":          {},
		"negative":    {},
		"wrong":       {},
		"false":       {},
	}
)

// IsPositiveReaction reports whether name is in the positive set.
func IsPositiveReaction(name string) bool {
	_, ok := positiveReactions[name]
	return ok
}

// IsNegativeReaction reports whether name is in the negative set.
func IsNegativeReaction(name string) bool {
	_, ok := negativeReactions[name]
	return ok
}

// Reaction is one reaction attached to a message, with its count.
type Reaction struct {
	Name  string
	Count int
}

// ReputationScore sums counts of positive reactions and subtracts
// counts of negative ones. Unrecognised names contribute nothing.
func ReputationScore(reactions []Reaction) int {
	score := 0
	for _, r := range reactions {
		switch {
		case IsPositiveReaction(r.Name):
			score += r.Count
		case IsNegativeReaction(r.Name):
			score -= r.Count
		}
	}
	return score
}

// MessageReputation is per-message reputation metadata derived from a
// thread message's reactions.
type MessageReputation struct {
	// TS is the message timestamp within the thread.
	TS string

	// ReactionNames lists every reaction name seen on the message,
	// recognised or not.
	ReactionNames []string

	// Score is the signed reputation sum.
	Score int

	// IsBot reports whether the message was authored by a bot.
	IsBot bool

	// Text is the original message text.
	Text string
}

// RedactedPlaceholder replaces message text in model context when the
// message's reputation score is negative. Keeping a placeholder rather
// than dropping the message preserves context length and ordering.
const RedactedPlaceholder = "[Response marked as incorrect]"
