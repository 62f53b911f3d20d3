package sanitize

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestField(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		max      int
		expected string
	}{
		{
			name:     "Empty input",
			input:    "",
			max:      100,
			expected: "",
		},
		{
			name:     "Empty input with zero limit",
			input:    "",
			max:      0,
			expected: "",
		},
		{
			name:     "Clean text untouched",
			input:    "Jam Night",
			max:      100,
			expected: "Jam Night",
		},
		{
			name:     "Emoji markdown and html",
			input:    "Party! 🎉 **Bring snacks**\n<b>Fun</b>",
			max:      100,
			expected: "Party! Bring snacks Fun",
		},
		{
			name:     "Whitespace runs collapse",
			input:    "  Room\t\t4\r\n\n  North  ",
			max:      100,
			expected: "Room 4 North",
		},
		{
			name:     "Backslashes removed",
			input:    `Main St\, Springfield\; rear entrance`,
			max:      100,
			expected: "Main St, Springfield; rear entrance",
		},
		{
			name:     "Flags and transport symbols",
			input:    "Trip 🇩🇪 by 🚆 and ✈",
			max:      100,
			expected: "Trip by and",
		},
		{
			name:     "Dingbats",
			input:    "Done ✅ ✂ cut",
			max:      100,
			expected: "Done cut",
		},
		{
			name:     "Non-emoji unicode kept",
			input:    "Café Zürich – 東京",
			max:      100,
			expected: "Café Zürich – 東京",
		},
		{
			name:     "Naive tag stripping",
			input:    "a <not really a tag> b",
			max:      100,
			expected: "a b",
		},
		{
			name:     "Unclosed bracket kept",
			input:    "x < y",
			max:      100,
			expected: "x < y",
		},
		{
			name:     "Truncated with ellipsis",
			input:    "abcdefghij",
			max:      5,
			expected: "abcde" + Ellipsis,
		},
		{
			name:     "Truncation trims trailing space",
			input:    "abcd efghij",
			max:      5,
			expected: "abcd" + Ellipsis,
		},
		{
			name:     "Exactly at limit",
			input:    "abcde",
			max:      5,
			expected: "abcde",
		},
		{
			name:     "Only emoji",
			input:    "🎉🎉",
			max:      10,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Field(tt.input, tt.max))
		})
	}
}

func TestField_Idempotent(t *testing.T) {
	inputs := []string{
		"Party! 🎉 **Bring snacks**\n<b>Fun</b>",
		"abcd efghij klmnop",
		"<<b>b> <> *x* \\y\\",
		"  lots   of\tspace  ",
		strings.Repeat("word ", 80),
		"a <b> c",
	}
	for _, in := range inputs {
		for _, max := range []int{0, 1, 4, 5, 10, 100, 250} {
			once := Field(in, max)
			assert.Equal(t, once, Field(once, max), "input %q max %d", in, max)
		}
	}
}

func TestField_LengthBound(t *testing.T) {
	in := strings.Repeat("the quick brown fox ", 50)
	for _, max := range []int{0, 1, 7, 100, 150, 250} {
		out := Field(in, max)
		assert.LessOrEqual(t, utf8.RuneCountInString(out), max+utf8.RuneCountInString(Ellipsis))
	}
}

func TestDocument(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Escaped comma and semicolon",
			input:    `LOCATION:Main St\, Springfield\; IL`,
			expected: `LOCATION:Main St, Springfield; IL`,
		},
		{
			name:     "Escaped newline",
			input:    `DESCRIPTION:line one\nline two`,
			expected: `DESCRIPTION:line one line two`,
		},
		{
			name:     "Doubled backslash",
			input:    `DESCRIPTION:C:\\temp`,
			expected: `DESCRIPTION:C:temp`,
		},
		{
			name:     "Markdown emphasis",
			input:    "SUMMARY:**Bold** and *italic*",
			expected: "SUMMARY:Bold and italic",
		},
		{
			name:     "Escape revealed by earlier replacement",
			input:    `X:a\\,b`,
			expected: `X:a,b`,
		},
		{
			name:     "Clean document untouched",
			input:    "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nEND:VCALENDAR\r\n",
			expected: "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nEND:VCALENDAR\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Document(tt.input)
			assert.Equal(t, tt.expected, out)
			for _, seq := range []string{`\,`, `\;`, `\\`, "*"} {
				assert.NotContains(t, out, seq)
			}
			assert.Equal(t, out, Document(out))
		})
	}
}
