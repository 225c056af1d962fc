package text

import (
	"errors"
	"regexp"
	"strings"
)

// ErrEmptyText is returned when nothing speakable remains after cleaning.
var ErrEmptyText = errors.New("text is empty")

var (
	fencedCodePattern = regexp.MustCompile("(?s)```.*?```")
	inlineCodePattern = regexp.MustCompile("`([^`]*)`")
	imagePattern      = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	linkPattern       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	headingPattern    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	emphasisPattern   = regexp.MustCompile(`(\*{1,3}|_{1,3}|~~)(\S(?:.*?\S)?)(\*{1,3}|_{1,3}|~~)`)
	bulletPattern     = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+\.)\s+`)
	quotePattern      = regexp.MustCompile(`(?m)^>\s?`)
	rulePattern       = regexp.MustCompile(`(?m)^\s*(?:-{3,}|\*{3,}|_{3,})\s*$`)
	spacePattern      = regexp.MustCompile(`[ \t]{2,}`)
)

// Normalize strips markup from text headed for the synthesis engine,
// keeping only what should be spoken. Fenced code blocks and images are
// removed outright; links and emphasis keep their inner text.
// It returns ErrEmptyText when nothing speakable remains.
func Normalize(s string) (string, error) {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	s = fencedCodePattern.ReplaceAllString(s, " ")
	s = imagePattern.ReplaceAllString(s, " ")
	s = linkPattern.ReplaceAllString(s, "$1")
	s = inlineCodePattern.ReplaceAllString(s, "$1")
	s = rulePattern.ReplaceAllString(s, "")
	s = headingPattern.ReplaceAllString(s, "")
	s = bulletPattern.ReplaceAllString(s, "")
	s = quotePattern.ReplaceAllString(s, "")
	for emphasisPattern.MatchString(s) {
		s = emphasisPattern.ReplaceAllString(s, "$2")
	}

	s = strings.ReplaceAll(s, "\n", " ")
	s = spacePattern.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if s == "" {
		return "", ErrEmptyText
	}

	return s, nil
}
