// utils/text.go
package utils

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// TokenSet is an unordered set of normalized words.
type TokenSet map[string]struct{}

// TokenSetFromFields builds a set from an already normalized, space separated string.
func TokenSetFromFields(s string) TokenSet {
	fields := strings.Fields(s)
	set := make(TokenSet, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// SubsetOf reports whether every token of t is in other. An empty set is a
// subset of anything.
func (t TokenSet) SubsetOf(other TokenSet) bool {
	for tok := range t {
		if _, ok := other[tok]; !ok {
			return false
		}
	}
	return true
}

// Slice returns the tokens sorted.
func (t TokenSet) Slice() []string {
	out := make([]string, 0, len(t))
	for tok := range t {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

// String renders the set the way it is stored: sorted and space separated.
func (t TokenSet) String() string {
	return strings.Join(t.Slice(), " ")
}

// NormalizeText lowercases, transliterates and tokenizes a name or address.
// Word order, repetition, punctuation and case do not survive, which is
// exactly what the fallback match ignores.
func NormalizeText(text string) TokenSet {
	if text == "" {
		return TokenSet{}
	}
	folded := cases.Fold().String(text)
	transliterated := Transliterate(folded)

	words := strings.FieldsFunc(transliterated, isSeparator)
	set := make(TokenSet, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Transliterate maps each character to its ASCII base letters (NFKD with the
// combining marks dropped). A character with no ASCII rendering is kept as is,
// so CJK, Cyrillic and similar scripts pass through unchanged.
func Transliterate(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		b.WriteString(transliterateRune(r))
	}
	return b.String()
}

func transliterateRune(r rune) string {
	if r < utf8.RuneSelf {
		return string(r)
	}
	decomposed := norm.NFKD.String(string(r))
	var b strings.Builder
	for i := 0; i < len(decomposed); i++ {
		if c := decomposed[i]; c < utf8.RuneSelf {
			b.WriteByte(c)
		}
	}
	if b.Len() == 0 {
		return string(r)
	}
	return b.String()
}

// isSeparator matches anything that is not a letter or a number; underscore
// included.
func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsNumber(r)
}
