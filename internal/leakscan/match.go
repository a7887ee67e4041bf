package leakscan

import (
	"iter"

	regexp "github.com/wasilibs/go-re2"
)

// Span is one regex hit. Offset is where the whole match starts; Value is
// the meaningful part (named group "token", else group 1, else the match).
type Span struct {
	Value  string
	Offset int
	Length int
}

// FindAll yields every non-overlapping match of re in text. Nothing is
// evaluated until the sequence is ranged over, and each range starts over.
func FindAll(re *regexp.Regexp, text string) iter.Seq[Span] {
	return func(yield func(Span) bool) {
		tokenGroup := -1
		for i, name := range re.SubexpNames() {
			if name == "token" {
				tokenGroup = i
				break
			}
		}
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			value := groupValue(text, loc, tokenGroup)
			if value == "" {
				value = groupValue(text, loc, 1)
			}
			if value == "" {
				value = text[loc[0]:loc[1]]
			}
			if value == "" {
				continue
			}
			if !yield(Span{Value: value, Offset: loc[0], Length: len(value)}) {
				return
			}
		}
	}
}

func groupValue(text string, loc []int, group int) string {
	if group < 0 || 2*group+1 >= len(loc) {
		return ""
	}
	start, end := loc[2*group], loc[2*group+1]
	if start < 0 || end < 0 {
		return ""
	}
	return text[start:end]
}
