// Package reader prepares extracted text for the terminal reading modes.
package reader

import (
	"math"
	"regexp"
	"strings"
)

// SentencesPerCard is how many sentences each card holds.
const SentencesPerCard = 2

// EmptyCard is shown when there is nothing to read.
const EmptyCard = "No content available to read."

var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+["']?|[^.!?]+$`)

// Sentences splits text on sentence-ending punctuation.
func Sentences(text string) []string {
	matches := sentencePattern.FindAllString(text, -1)
	if len(matches) == 0 {
		matches = []string{text}
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if s := strings.TrimSpace(m); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Cards groups sentences into cards of SentencesPerCard.
func Cards(content string) []string {
	if strings.TrimSpace(content) == "" {
		return []string{EmptyCard}
	}

	var cards []string
	var current []string
	for _, s := range Sentences(content) {
		if len(current) == SentencesPerCard {
			cards = append(cards, strings.Join(current, " "))
			current = current[:0]
		}
		current = append(current, s)
	}
	if len(current) > 0 {
		cards = append(cards, strings.Join(current, " "))
	}
	if len(cards) == 0 {
		return []string{EmptyCard}
	}
	return cards
}

// ReadTime estimates whole minutes to read text at wpm words per minute.
// Empty text takes zero minutes; anything else at least one.
func ReadTime(text string, wpm int) int {
	if wpm <= 0 {
		wpm = 200
	}
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return int(math.Ceil(float64(words) / float64(wpm)))
}
