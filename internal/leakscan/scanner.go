// Package leakscan finds credential-looking strings in arbitrary text,
// including text hidden inside base64 runs.
package leakscan

import (
	"fmt"
	"strings"

	regexp "github.com/wasilibs/go-re2"
)

const (
	defaultContextRadius = 80
	defaultMinEntropy    = 3.0
)

// DetectionMatch is one accepted leak match.
type DetectionMatch struct {
	Key         string `json:"key"`
	Match       string `json:"match"`
	Context     string `json:"context"`
	EncodedFrom string `json:"encodedFrom,omitempty"`
	Index       int    `json:"index"`
}

// Options configures a Scanner.
type Options struct {
	Rules              []Rule
	DenyList           []string
	IncludeEncoded     bool
	ContextRadius      int
	ExcludedExtensions []string
	MinEntropy         float64
}

// DefaultOptions returns the built-in rules and thresholds.
func DefaultOptions() Options {
	return Options{
		Rules:              DefaultRules(),
		DenyList:           DefaultDenyList(),
		IncludeEncoded:     true,
		ContextRadius:      defaultContextRadius,
		ExcludedExtensions: DefaultExcludedExtensions(),
		MinEntropy:         defaultMinEntropy,
	}
}

type compiledRule struct {
	name string
	re   *regexp.Regexp
	aws  bool
}

// Scanner matches a fixed rule set. It holds no per-scan state and is safe
// for concurrent use.
type Scanner struct {
	rules              []compiledRule
	deny               map[string]struct{}
	includeEncoded     bool
	contextRadius      int
	excludedExtensions []string
	minEntropy         float64
}

// New compiles the rules in opts.
func New(opts Options) (*Scanner, error) {
	s := &Scanner{
		deny:           make(map[string]struct{}, len(opts.DenyList)),
		includeEncoded: opts.IncludeEncoded,
		contextRadius:  opts.ContextRadius,
		minEntropy:     opts.MinEntropy,
	}
	if s.contextRadius < 0 {
		s.contextRadius = defaultContextRadius
	}
	for _, ext := range opts.ExcludedExtensions {
		if ext = strings.ToLower(strings.TrimSpace(ext)); ext != "" {
			s.excludedExtensions = append(s.excludedExtensions, ext)
		}
	}
	for _, v := range opts.DenyList {
		s.deny[v] = struct{}{}
	}
	for _, r := range opts.Rules {
		if r.Name == "" || r.Pattern == "" {
			continue
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile rule %q: %w", r.Name, err)
		}
		s.rules = append(s.rules, compiledRule{
			name: r.Name,
			re:   re,
			aws:  strings.Contains(r.Name, "AWS"),
		})
	}
	return s, nil
}

// MustDefault returns a Scanner with DefaultOptions.
func MustDefault() *Scanner {
	s, err := New(DefaultOptions())
	if err != nil {
		panic(err)
	}
	return s
}

// Excluded reports whether sourceURL ends with an excluded extension.
func (s *Scanner) Excluded(sourceURL string) bool {
	if sourceURL == "" {
		return false
	}
	lower := strings.ToLower(sourceURL)
	for _, ext := range s.excludedExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Scan returns plain-text matches followed by matches found in decoded
// base64 runs, in discovery order.
func (s *Scanner) Scan(text, sourceURL string) []DetectionMatch {
	if text == "" || s.Excluded(sourceURL) {
		return nil
	}
	var results []DetectionMatch
	seen := make(map[string]struct{})
	results = s.scanPlain(text, "", results, seen)
	if s.includeEncoded {
		for _, run := range decodedBase64Runs(text) {
			results = s.scanPlain(run.decoded, run.encoded, results, seen)
		}
	}
	return results
}

func (s *Scanner) scanPlain(text, encodedFrom string, results []DetectionMatch, seen map[string]struct{}) []DetectionMatch {
	dataURIs := dataURISpans(text)
	for _, rule := range s.rules {
		for hit := range FindAll(rule.re, text) {
			if _, denied := s.deny[hit.Value]; denied {
				continue
			}
			if insideSpans(dataURIs, hit.Offset) {
				continue
			}
			if rule.aws && ShannonEntropy(hit.Value) < s.minEntropy {
				continue
			}
			key := rule.name + "|" + hit.Value + "|" + encodedFrom
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			results = append(results, DetectionMatch{
				Key:         rule.name,
				Match:       hit.Value,
				Context:     extractContext(text, hit.Offset, hit.Length, s.contextRadius),
				EncodedFrom: encodedFrom,
				Index:       hit.Offset,
			})
		}
	}
	return results
}

func extractContext(text string, index, length, radius int) string {
	start := max(0, index-radius)
	end := min(len(text), index+length+radius)
	return strings.ToValidUTF8(text[start:end], "")
}

// SummarizeLeakMatch redacts a secret for display: values of 16 characters
// or fewer are kept, longer ones become first8...last6.
func SummarizeLeakMatch(match string) string {
	trimmed := strings.TrimSpace(match)
	runes := []rune(trimmed)
	if len(runes) <= 16 {
		return trimmed
	}
	return string(runes[:8]) + "..." + string(runes[len(runes)-6:])
}
