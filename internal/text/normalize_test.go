// Package text_test tests synthesis input normalization.
package text_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/book-expert/voice-agent/internal/text"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	normalizer := text.NewNormalizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "plain text unchanged", input: "hello world", want: "hello world"},
		{name: "collapses spaces and tabs", input: "hello \t  world", want: "hello world"},
		{name: "trims edges", input: "  hello world \n", want: "hello world"},
		{
			name:  "blank lines become single newlines",
			input: "first paragraph\n\n\nsecond paragraph",
			want:  "first paragraph\nsecond paragraph",
		},
		{name: "windows line endings", input: "first\r\nsecond", want: "first\nsecond"},
		{name: "em dash becomes comma pause", input: "one—two", want: "one, two"},
		{name: "ellipsis character expanded", input: "wait…", want: "wait..."},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.want, normalizer.Normalize(testCase.input))
		})
	}
}

func TestParagraphs(t *testing.T) {
	t.Parallel()

	normalizer := text.NewNormalizer()

	assert.Nil(t, normalizer.Paragraphs("   "))
	assert.Equal(t,
		[]string{"first paragraph", "second paragraph"},
		normalizer.Paragraphs("first   paragraph\n\nsecond paragraph\n"))
}
