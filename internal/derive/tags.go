package derive

import (
	"unicode"
	"unicode/utf8"
)

// Tag names applied to search documents. Length buckets are mutually
// exclusive; classification tags are not.
const (
	TagShort       = "short"
	TagFourChar    = "4char"
	TagFiveChar    = "5char"
	TagNumbersOnly = "numbers-only"
	TagLettersOnly = "letters-only"
	TagHasNumbers  = "has-numbers"
	TagHasEmoji    = "has-emoji"
)

// emojiRanges covers the common Unicode emoji blocks. Deliberately not
// exhaustive over every pictographic codepoint; it matches the
// classification used when names are written to the source of truth.
var emojiRanges = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x2600, Hi: 0x27BF, Stride: 1}, // misc symbols, dingbats
		{Lo: 0x2B00, Hi: 0x2BFF, Stride: 1}, // misc symbols and arrows
		{Lo: 0xFE0F, Hi: 0xFE0F, Stride: 1}, // variation selector-16
	},
	R32: []unicode.Range32{
		{Lo: 0x1F000, Hi: 0x1F02F, Stride: 1}, // mahjong tiles
		{Lo: 0x1F300, Hi: 0x1F5FF, Stride: 1}, // misc symbols and pictographs
		{Lo: 0x1F600, Hi: 0x1F64F, Stride: 1}, // emoticons
		{Lo: 0x1F680, Hi: 0x1F6FF, Stride: 1}, // transport and map
		{Lo: 0x1F900, Hi: 0x1F9FF, Stride: 1}, // supplemental symbols
		{Lo: 0x1FA70, Hi: 0x1FAFF, Stride: 1}, // symbols and pictographs extended
	},
}

// Tags derives the classification tags for a name. Output order is fixed so
// repeated derivations of unchanged state stay byte-identical.
func Tags(name string) []string {
	tags := make([]string, 0, 4)

	switch n := utf8.RuneCountInString(name); {
	case n <= 3:
		tags = append(tags, TagShort)
	case n == 4:
		tags = append(tags, TagFourChar)
	case n == 5:
		tags = append(tags, TagFiveChar)
	}

	if isNumbersOnly(name) {
		tags = append(tags, TagNumbersOnly)
	}
	if isLettersOnly(name) {
		tags = append(tags, TagLettersOnly)
	}
	if HasDigit(name) {
		tags = append(tags, TagHasNumbers)
	}
	if HasEmoji(name) {
		tags = append(tags, TagHasEmoji)
	}

	return tags
}

// HasDigit reports whether the name contains at least one decimal digit
func HasDigit(name string) bool {
	for _, r := range name {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// HasEmoji reports whether the name contains at least one emoji rune
func HasEmoji(name string) bool {
	for _, r := range name {
		if unicode.Is(emojiRanges, r) {
			return true
		}
	}
	return false
}

func isNumbersOnly(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func isLettersOnly(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
