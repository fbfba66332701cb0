package document

import (
	"strings"
	"unicode"
)

// Split cuts text into windows of at most size runes. Consecutive windows
// share overlap runes. A window ends at its last whitespace when that
// whitespace lies past the overlap region, so words are not split unless a
// single word is longer than the window. Blank windows are dropped.
func Split(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	for start := 0; start < len(runes); {
		end := start + size
		cut := end
		if end >= len(runes) {
			cut = len(runes)
		} else {
			for i := end; i > start+overlap; i-- {
				if unicode.IsSpace(runes[i]) {
					cut = i
					break
				}
			}
		}

		if part := strings.TrimSpace(string(runes[start:cut])); part != "" {
			chunks = append(chunks, part)
		}
		if cut >= len(runes) {
			break
		}

		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}
