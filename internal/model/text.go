package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText NFC-normalizes s, case-folds it and collapses whitespace.
// Content matchers compare only normalized text so that "José" typed with a
// combining accent and "JOSÉ" are the same name.
func NormalizeText(s string) string {
	folded := cases.Fold().String(norm.NFC.String(s))
	return strings.Join(strings.Fields(folded), " ")
}

// Tokens splits normalized text into word tokens of at least minLen runes.
// Tokens are returned in first-occurrence order without duplicates.
func Tokens(s string, minLen int) []string {
	fields := strings.FieldsFunc(NormalizeText(s), isSeparator)
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if len([]rune(f)) < minLen || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// ContainsPhrase reports whether normalized haystack contains needle as a
// whole-word phrase.
func ContainsPhrase(haystack, needle string) bool {
	h := " " + strings.Join(strings.FieldsFunc(NormalizeText(haystack), isSeparator), " ") + " "
	n := strings.Join(strings.FieldsFunc(NormalizeText(needle), isSeparator), " ")
	if n == "" {
		return false
	}
	return strings.Contains(h, " "+n+" ")
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
