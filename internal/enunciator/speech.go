package enunciator

import (
	"regexp"
	"strings"
)

// ChunkSize is the caption width in runes.
const ChunkSize = 53

var abbreviations = []struct {
	short, long string
}{
	{"Dr", "Drive"},
	{"St", "Street"},
	{"Ave", "Avenue"},
	{"Blvd", "Boulevard"},
	{"Ln", "Lane"},
	{"Rd", "Road"},
	{"Pkwy", "Parkway"},
	{"Hwy", "Highway"},
	{"Pl", "Place"},
	{"Ct", "Court"},
	{"Expy", "Expressway"},
	{"Fwy", "Freeway"},
	{"Trl", "Trail"},
	{"Cir", "Circle"},
	{"Sq", "Square"},
	{"Ter", "Terrace"},
	{"Pk", "Park"},
	{"Ctr", "Center"},
	{"Brg", "Bridge"},
}

var abbreviationPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(abbreviations))
	for i, a := range abbreviations {
		out[i] = regexp.MustCompile(`\b` + a.short + `\b`)
	}
	return out
}()

// Expand spells out street abbreviations for text-to-speech. Only whole
// words are replaced, in table order.
func Expand(text string) string {
	for i, re := range abbreviationPatterns {
		text = re.ReplaceAllLiteralString(text, abbreviations[i].long)
	}
	return text
}

// Chunk splits text into caption lines of at most size runes. Line breaks
// always end a chunk and empty lines are dropped.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = ChunkSize
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		r := []rune(line)
		for len(r) > 0 {
			n := min(size, len(r))
			out = append(out, string(r[:n]))
			r = r[n:]
		}
	}
	return out
}
