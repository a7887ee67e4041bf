package leakscan

import (
	"encoding/base64"
	"strings"

	regexp "github.com/wasilibs/go-re2"
)

const (
	base64MinRun = 20
	base64MaxRun = 4096
)

var base64Charset = makeASCIISet("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/=")

// asciiSet is a 256-bit membership table for single bytes.
type asciiSet [8]uint32

func makeASCIISet(chars string) asciiSet {
	var as asciiSet
	for i := 0; i < len(chars); i++ {
		c := chars[i]
		as[c/32] |= 1 << (c % 32)
	}
	return as
}

func (as *asciiSet) contains(c byte) bool {
	return (as[c/32] & (1 << (c % 32))) != 0
}

type decodedRun struct {
	encoded string
	decoded string
}

// base64Runs returns maximal runs of base64 alphabet bytes longer than
// base64MinRun.
func base64Runs(text string) []string {
	var runs []string
	start := -1
	for i := 0; i <= len(text); i++ {
		if i < len(text) && base64Charset.contains(text[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start > base64MinRun {
			runs = append(runs, text[start:i])
		}
		start = -1
	}
	return runs
}

func decodedBase64Runs(text string) []decodedRun {
	var out []decodedRun
	for _, run := range base64Runs(text) {
		if len(run) > base64MaxRun {
			continue
		}
		decoded, ok := decodeForgiving(run)
		if !ok {
			continue
		}
		out = append(out, decodedRun{encoded: run, decoded: decoded})
	}
	return out
}

// decodeForgiving accepts unpadded input and trailing padding, and rejects
// '=' anywhere else.
func decodeForgiving(s string) (string, bool) {
	if len(s)%4 == 0 {
		s = strings.TrimSuffix(s, "=")
		s = strings.TrimSuffix(s, "=")
	}
	if len(s)%4 == 1 || strings.Contains(s, "=") {
		return "", false
	}
	b, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil || len(b) == 0 {
		return "", false
	}
	return string(b), true
}

var dataURIPattern = regexp.MustCompile(`(?i)data:(?:image|font|application/(?:font-woff|x-font-ttf|vnd\.ms-fontobject))/[^;]+;base64,`)

type span struct{ start, end int }

// dataURISpans locates binary data URIs. A span runs from the "data:" prefix
// to the next ')'; URIs without a closing parenthesis are ignored.
func dataURISpans(text string) []span {
	var spans []span
	for _, loc := range dataURIPattern.FindAllStringIndex(text, -1) {
		end := strings.IndexByte(text[loc[0]:], ')')
		if end < 0 {
			continue
		}
		spans = append(spans, span{start: loc[0], end: loc[0] + end})
	}
	return spans
}

func insideSpans(spans []span, offset int) bool {
	for _, sp := range spans {
		if offset >= sp.start && offset <= sp.end {
			return true
		}
	}
	return false
}
