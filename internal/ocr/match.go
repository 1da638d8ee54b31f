package ocr

import (
	"strings"
	"unicode"
)

// DefaultSimilarity is the word-containment ratio required by rule 3.
const DefaultSimilarity = 0.65

// Short codes need this share of their characters present in the text.
const (
	coverageRatio  = 0.7
	shortCodeLimit = 10
)

// Rule identifies which matching rule accepted a value.
type Rule int

const (
	NoMatch Rule = iota
	RuleSubstring
	RuleCompact
	RuleWords
	RuleCoverage
)

// Normalize collapses whitespace runs, upper-cases and trims s.
func Normalize(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

func compact(s string) string {
	return strings.ReplaceAll(s, " ", "")
}

// Match reports the first rule under which expected is found in text.
// Both are normalized first. An empty expected value never matches.
func Match(text, expected string, similarity float64) Rule {
	t, e := Normalize(text), Normalize(expected)
	if e == "" {
		return NoMatch
	}
	if strings.Contains(t, e) {
		return RuleSubstring
	}
	tc, ec := compact(t), compact(e)
	if strings.Contains(tc, ec) {
		return RuleCompact
	}
	if wordRatio(strings.Fields(t), strings.Fields(e)) >= similarity {
		return RuleWords
	}
	if len([]rune(ec)) <= shortCodeLimit && hasDigit(ec) && coverage(tc, ec) >= coverageRatio {
		return RuleCoverage
	}
	return NoMatch
}

func wordRatio(textWords, expWords []string) float64 {
	if len(expWords) == 0 {
		return 0
	}
	found := 0
	for _, ew := range expWords {
		for _, tw := range textWords {
			if strings.Contains(tw, ew) || strings.Contains(ew, tw) {
				found++
				break
			}
		}
	}
	return float64(found) / float64(len(expWords))
}

func coverage(text, exp string) float64 {
	runes := []rune(exp)
	if len(runes) == 0 {
		return 0
	}
	hit := 0
	for _, r := range runes {
		if strings.ContainsRune(text, r) {
			hit++
		}
	}
	return float64(hit) / float64(len(runes))
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
