package sheets

import (
	"strings"
	"unicode"
	"unicode/utf16"

	gsheets "google.golang.org/api/sheets/v4"
)

type runColor int

// colorRed marks spelling errors, colorGreen marks words changed relative
// to the original text.
const (
	colorNone runColor = iota
	colorRed
	colorGreen
)

var palette = map[runColor]*gsheets.Color{
	colorNone:  {ForceSendFields: []string{"Red", "Green", "Blue"}},
	colorRed:   {Red: 1},
	colorGreen: {Green: 0.6},
}

// stripMarkup removes [[...]] markers and returns the clean text with the
// rune ranges that were marked.
func stripMarkup(text string) (string, [][2]int) {
	var (
		b     strings.Builder
		spans [][2]int
		n     int
	)
	for {
		open := strings.Index(text, "[[")
		if open < 0 {
			break
		}
		end := strings.Index(text[open+2:], "]]")
		if end < 0 {
			break
		}
		before := text[:open]
		inner := text[open+2 : open+2+end]
		b.WriteString(before)
		n += len([]rune(before))
		spans = append(spans, [2]int{n, n + len([]rune(inner))})
		b.WriteString(inner)
		n += len([]rune(inner))
		text = text[open+2+end+2:]
	}
	b.WriteString(text)
	return b.String(), spans
}

type word struct {
	text       string
	start, end int // rune offsets
}

func splitWords(s string) []word {
	var (
		words []word
		cur   []rune
		start int
		i     int
	)
	for _, r := range s {
		if unicode.IsSpace(r) {
			if len(cur) > 0 {
				words = append(words, word{string(cur), start, i})
				cur = cur[:0]
			}
		} else {
			if len(cur) == 0 {
				start = i
			}
			cur = append(cur, r)
		}
		i++
	}
	if len(cur) > 0 {
		words = append(words, word{string(cur), start, i})
	}
	return words
}

// changedWords returns rune ranges of words in corrected that are not part
// of the longest common word subsequence with original.
func changedWords(original, corrected string) [][2]int {
	if original == corrected {
		return nil
	}
	a, b := splitWords(original), splitWords(corrected)

	// lcs[i][j] is the LCS length of a[i:] and b[j:].
	lcs := make([][]int, len(a)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i].text == b[j].text {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	var spans [][2]int
	i, j := 0, 0
	for j < len(b) {
		switch {
		case i < len(a) && a[i].text == b[j].text:
			i++
			j++
		case i < len(a) && lcs[i+1][j] >= lcs[i][j+1]:
			i++
		default:
			spans = append(spans, [2]int{b[j].start, b[j].end})
			j++
		}
	}
	return spans
}

// trimQuotes drops a pair of surrounding double quotes the model sometimes adds.
func trimQuotes(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}

// RichText renders marked text for a cell: the returned value has the
// markup removed, marked spans are red and words changed relative to
// original are green. Red wins where both apply. Run indexes are in UTF-16
// code units as the Sheets API expects.
func RichText(marked, original string) (string, []*gsheets.TextFormatRun) {
	clean, red := stripMarkup(trimQuotes(marked))
	runes := []rune(clean)
	colors := make([]runColor, len(runes))

	for _, sp := range red {
		for k := sp[0]; k < sp[1]; k++ {
			colors[k] = colorRed
		}
	}
	if original != "" {
	words:
		for _, sp := range changedWords(original, clean) {
			for k := sp[0]; k < sp[1]; k++ {
				if colors[k] == colorRed {
					continue words
				}
			}
			for k := sp[0]; k < sp[1]; k++ {
				colors[k] = colorGreen
			}
		}
	}

	var (
		runs  []*gsheets.TextFormatRun
		prev  = colorNone
		units int64
	)
	for k, r := range runes {
		if colors[k] != prev {
			runs = append(runs, &gsheets.TextFormatRun{
				StartIndex: units,
				Format:     &gsheets.TextFormat{ForegroundColor: palette[colors[k]]},
			})
			prev = colors[k]
		}
		units += int64(utf16.RuneLen(r))
	}
	return clean, runs
}
