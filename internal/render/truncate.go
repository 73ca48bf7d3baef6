package render

import (
	"unicode/utf8"
)

const ellipsis = "…"

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// truncate limits s to max runes. An oversized s is cut to max-1 runes followed
// by an ellipsis; the cut moves back to the start of a markdown link that would
// otherwise be split.
func truncate(s string, max int) string {
	if runeLen(s) <= max {
		return s
	}
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	cut := safeCut(runes, max-1)
	return string(runes[:cut]) + ellipsis
}

// safeCut returns the largest index <= cut that does not fall inside a
// [text](url) link. Brackets that do not start a complete link are plain text.
func safeCut(runes []rune, cut int) int {
	for i := 0; i < cut; i++ {
		if runes[i] != '[' {
			continue
		}
		end := linkEnd(runes, i)
		if end < 0 {
			continue
		}
		if end >= cut {
			return i
		}
		i = end
	}
	return cut
}

// linkEnd returns the index of the ")" closing the link that starts at
// runes[open], or -1 when no complete link starts there
func linkEnd(runes []rune, open int) int {
	for j := open + 1; j < len(runes); j++ {
		switch runes[j] {
		case '[', '\n':
			return -1
		case ']':
			if j+1 >= len(runes) || runes[j+1] != '(' {
				return -1
			}
			for k := j + 2; k < len(runes); k++ {
				switch runes[k] {
				case ')':
					return k
				case ' ', '\n':
					return -1
				}
			}
			return -1
		}
	}
	return -1
}
