package analyzer

import (
	"strings"

	ahocorasick "github.com/BobuSumisu/aho-corasick"
)

var (
	sensitiveColumnIndicators = []string{
		"password", "token", "secret", "email", "phone", "address", "ssn",
		"credit", "card", "api", "key", "auth", "metadata",
	}
	sensitiveTableKeywords = []string{
		"profile", "customer", "billing", "invoice", "user", "team", "member",
		"project", "plan", "organization", "message", "contact", "submission",
		"feedback", "chat",
	}
)

// keywordMatcher answers "does this name contain any keyword" over
// lowercase input
type keywordMatcher struct {
	trie *ahocorasick.Trie
}

func newKeywordMatcher(keywords []string) keywordMatcher {
	return keywordMatcher{trie: ahocorasick.NewTrieBuilder().AddStrings(keywords).Build()}
}

func (m keywordMatcher) matches(name string) bool {
	if name == "" {
		return false
	}
	return m.trie.MatchFirst([]byte(strings.ToLower(name))) != nil
}

var (
	columnMatcher = newKeywordMatcher(sensitiveColumnIndicators)
	tableMatcher  = newKeywordMatcher(sensitiveTableKeywords)
)

// IsSensitiveColumn reports whether a column name looks like it holds
// credentials or personal data
func IsSensitiveColumn(name string) bool {
	return columnMatcher.matches(name)
}

// IsSensitiveTable reports whether a table name suggests user-owned data.
// Plural forms match through their singular stem.
func IsSensitiveTable(name string) bool {
	return tableMatcher.matches(name)
}

// SensitiveColumns filters columns down to the sensitive-looking ones,
// preserving order
func SensitiveColumns(columns []string) []string {
	var out []string
	for _, c := range columns {
		if IsSensitiveColumn(c) {
			out = append(out, c)
		}
	}
	return out
}
