// Package sanitize cleans calendar text before it is written to the destination store.
// The store's write path rejects literal backslash escapes, markdown emphasis and
// most pictographic characters, so both the individual fields and the final
// serialized document go through here.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Default per-field ceilings, matching the destination's column sizes.
const (
	MaxSummaryLength     = 100
	MaxDescriptionLength = 250
	MaxLocationLength    = 150
)

// Ellipsis is appended to truncated fields.
const Ellipsis = "…"

// Limits holds the per-field length ceilings applied before upload.
type Limits struct {
	Summary     int
	Description int
	Location    int
}

// DefaultLimits returns the standard ceilings.
func DefaultLimits() Limits {
	return Limits{
		Summary:     MaxSummaryLength,
		Description: MaxDescriptionLength,
		Location:    MaxLocationLength,
	}
}

// pictographs lists the code point ranges removed from free text.
// Ranges must stay sorted and non-overlapping.
var pictographs = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x24C2, Hi: 0x24C2, Stride: 1}, // circled M
		{Lo: 0x2702, Hi: 0x27B0, Stride: 1}, // dingbats
	},
	R32: []unicode.Range32{
		{Lo: 0x1F170, Hi: 0x1F251, Stride: 1}, // enclosed alphanumerics/ideographs, includes regional indicator flags
		{Lo: 0x1F300, Hi: 0x1F5FF, Stride: 1}, // symbols & pictographs
		{Lo: 0x1F600, Hi: 0x1F64F, Stride: 1}, // emoticons
		{Lo: 0x1F680, Hi: 0x1F6FF, Stride: 1}, // transport & map symbols
	},
}

var htmlTag = regexp.MustCompile(`<[^>]+>`)

// Field cleans a single free-text property value and caps it at maxLength runes.
// Truncated values get Ellipsis appended. Field is idempotent.
func Field(text string, maxLength int) string {
	if text == "" {
		return ""
	}
	if maxLength < 0 {
		maxLength = 0
	}

	text = StripPictographs(text)
	text = collapseSpace(text)
	text = strings.NewReplacer(`\`, "", "\r", " ", "\t", " ").Replace(text)
	text = htmlTag.ReplaceAllString(text, "")
	text = stripEmphasis(text)
	text = collapseSpace(text)

	if utf8.RuneCountInString(text) > maxLength {
		runes := []rune(text)
		text = strings.TrimRightFunc(string(runes[:maxLength]), unicode.IsSpace) + Ellipsis
	}

	return strings.TrimSpace(text)
}

// Document cleans a fully serialized calendar document. Replacements run in a
// fixed order and are repeated until nothing changes, so escape sequences that
// only appear after an earlier replacement are removed too.
func Document(ical string) string {
	for {
		next := documentPass(ical)
		if next == ical {
			return next
		}
		ical = next
	}
}

func documentPass(s string) string {
	s = strings.ReplaceAll(s, `\,`, ",")
	s = strings.ReplaceAll(s, `\;`, ";")
	s = strings.ReplaceAll(s, `\n`, " ")
	s = strings.ReplaceAll(s, `\\`, "")
	return stripEmphasis(s)
}

// StripPictographs removes emoji and related symbols.
func StripPictographs(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.Is(pictographs, r) {
			return -1
		}
		return r
	}, s)
}

func stripEmphasis(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	return strings.ReplaceAll(s, "*", "")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
