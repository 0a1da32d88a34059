package services

import (
	"math"
)

const (
	MinRating     = 1
	MaxRating     = 10
	DefaultRating = 5

	// first rating that asks for ornate language
	ornateFrom = 6
)

const systemPreamble = "You are a concise creative writing assistant. Rewrite the user's sentence according to the style instructions below. Preserve meaning and tone where possible. Keep output as a single polished sentence or two maximum."

const (
	simpleHint   = "Make the sentence simpler and more direct. Use plain vocabulary, short words, and short clauses. Keep it natural and conversational. Reduce any florid or rare words."
	balancedHint = "Produce a balanced polished version: clear, slightly elevated vocabulary, fluid rhythm, but not ornate. Keep length similar."

	expandNote  = "You may slightly expand the sentence for elegance."
	compactNote = "Keep it compact but elegant."
)

// OrnateTiers are ordered from the lightest to the heaviest ornament.
var OrnateTiers = []string{
	"gently ornate",
	"moderately ornate",
	"quite ornate",
	"very ornate",
	"extravagantly ornate",
}

// BuildStyleHint maps a rating to the style instruction for the rewrite.
// Ratings up to 4 ask for plain language, 5 for a balanced polish and 6..10
// for progressively ornate language.
func BuildStyleHint(rating int) string {
	if rating <= 4 {
		return simpleHint
	}
	if rating == DefaultRating {
		return balancedHint
	}

	span := MaxRating - ornateFrom
	pos := rating - ornateFrom

	idx := pos * (len(OrnateTiers) - 1) / span
	if idx > len(OrnateTiers)-1 {
		idx = len(OrnateTiers) - 1
	}
	adjective := OrnateTiers[idx]

	extras := int(math.Round(float64(pos) / float64(span) * 4))

	lengthNote := compactNote
	if extras >= 2 {
		lengthNote = expandNote
	}

	return "Use " + adjective + " language: richer vocabulary, elegant phrasing, varied punctuation, tasteful metaphors or literary flourishes. " + lengthNote
}

// BuildSystemPrompt prefixes the style hint with the fixed assistant preamble.
func BuildSystemPrompt(rating int) string {
	return systemPreamble + " " + BuildStyleHint(rating)
}
