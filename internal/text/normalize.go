// Package text provides the normalization applied to synthesis input before
// it reaches an engine: whitespace and punctuation cleanup plus paragraph
// splitting.
package text

import (
	"regexp"
	"strings"
)

// Regex patterns, precompiled once per Normalizer.
const (
	blankLineRegexPattern  = `\n\s*\n+`
	whitespaceRegexPattern = `[ \t]+`
)

// Typographic forms replaced with engine-safe equivalents.
const (
	emDash       = "—"
	enDash       = "–"
	ellipsisChar = "…"
)

// Normalizer cleans raw synthesis text.
type Normalizer struct {
	blankLinePattern  *regexp.Regexp
	whitespacePattern *regexp.Regexp
	punctReplacer     *strings.Replacer
}

// NewNormalizer creates a normalizer with compiled patterns.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		blankLinePattern:  regexp.MustCompile(blankLineRegexPattern),
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		punctReplacer: strings.NewReplacer(
			"\r\n", "\n",
			"\r", "\n",
			emDash, ", ",
			enDash, "-",
			ellipsisChar, "...",
		),
	}
}

// Normalize collapses runs of whitespace, converts typographic punctuation,
// and trims the result. Paragraph breaks survive as single newlines so
// engines that split on them keep their pause behavior.
func (n *Normalizer) Normalize(input string) string {
	if input == "" {
		return input
	}

	cleaned := n.punctReplacer.Replace(input)
	cleaned = n.blankLinePattern.ReplaceAllString(cleaned, "\n")
	cleaned = n.whitespacePattern.ReplaceAllString(cleaned, " ")

	lines := strings.Split(cleaned, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Paragraphs splits normalized text into non-empty paragraphs.
func (n *Normalizer) Paragraphs(input string) []string {
	normalized := n.Normalize(input)
	if normalized == "" {
		return nil
	}

	parts := strings.Split(normalized, "\n")
	paragraphs := make([]string, 0, len(parts))

	for _, part := range parts {
		if part != "" {
			paragraphs = append(paragraphs, part)
		}
	}

	return paragraphs
}
