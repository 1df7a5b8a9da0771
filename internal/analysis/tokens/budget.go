package tokens

import (
	"unicode/utf8"
)

// charsPerToken is the rough rune-to-token ratio used for estimates.
const charsPerToken = 4

// DefaultMaxTokens bounds the transcript sent to the tutor endpoints.
const DefaultMaxTokens = 250_000 / charsPerToken

// Estimate returns the approximate token count of text.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	runes := utf8.RuneCountInString(text)
	return (runes + charsPerToken - 1) / charsPerToken
}

// Trim shortens text so that Estimate(result) <= maxTokens.
// The tail of the text is kept since recent turns carry the most context.
func Trim(text string, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return ""
	}
	if Estimate(text) <= maxTokens {
		return text
	}

	keep := maxTokens * charsPerToken
	runes := []rune(text)
	if len(runes) <= keep {
		return text
	}
	return string(runes[len(runes)-keep:])
}

// Fit trims text only when it is over budget. A non-positive budget disables trimming.
func Fit(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	if Estimate(text) > maxTokens {
		return Trim(text, maxTokens)
	}
	return text
}
