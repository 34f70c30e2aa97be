package interstitial

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/docstream/internal/doctree"
)

const (
	minFactLen  = 3
	maxFactLen  = 600
	maxTitleLen = 80
)

var unsafePattern = regexp.MustCompile(`(?i)(<\s*(script|iframe|object|embed|style)\b|javascript\s*:|\bon[a-z]+\s*=)`)

// Valid reports whether it can be shown between sections. It trims the
// item and shortens an overlong title in place.
func Valid(it *doctree.Item) bool {
	if it == nil {
		return false
	}
	it.Content = strings.TrimSpace(it.Content)
	n := utf8.RuneCountInString(it.Content)
	if n < minFactLen || n > maxFactLen {
		return false
	}
	if unsafePattern.MatchString(it.Content) || unsafePattern.MatchString(it.Title) {
		return false
	}
	it.Title = strings.TrimSpace(it.Title)
	if utf8.RuneCountInString(it.Title) > maxTitleLen {
		it.Title = string([]rune(it.Title)[:maxTitleLen])
	}
	return true
}
