// Package textutil provides the normalization and token-estimation helpers
// shared by the chunker, the trimmer and the retriever.
package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	blankRunRe = regexp.MustCompile(`\n{3,}`)
	spaceRunRe = regexp.MustCompile(`[ \t]{2,}`)
)

// Clean normalizes raw document or query text before it is chunked, indexed
// or embedded: NFKC normalization, C0 control stripping (TAB/LF kept), CRLF
// collapsing, blank-line and whitespace-run collapsing, and a final trim.
func Clean(text string) string {
	normalized := norm.NFKC.String(text)
	normalized = strings.ReplaceAll(normalized, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	normalized = stripControls(normalized)
	normalized = blankRunRe.ReplaceAllString(normalized, "\n\n\n")
	normalized = spaceRunRe.ReplaceAllString(normalized, " ")

	lines := strings.Split(normalized, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// stripControls removes C0 control characters other than TAB and LF.
func stripControls(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\t' || r == '\n' {
			b.WriteRune(r)
			continue
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EstimateTokens approximates the number of LLM tokens for mixed CJK/Latin
// content: 1.5 tokens per CJK character plus 0.75 tokens per word, plus a
// fixed overhead of 1. Exactness is not required — only monotonicity in
// input length, which this formula preserves.
func EstimateTokens(text string) int {
	if text == "" {
		return 1
	}
	cjk := 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		}
	}
	words := countWords(text)
	return int(1.5*float64(cjk)+0.75*float64(words)) + 1
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// countWords counts maximal runs of non-CJK letters/digits as words; CJK
// characters are counted separately by the caller and skipped here.
func countWords(text string) int {
	words := 0
	inWord := false
	for _, r := range text {
		if isCJK(r) {
			inWord = false
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if !inWord {
				words++
				inWord = true
			}
		} else {
			inWord = false
		}
	}
	return words
}

// Tokenize produces the lex_tokens form the lexical index's Chunk field
// stores alongside the free text: lowercased Latin/digit words, each CJK
// character as its own token.
func Tokenize(text string) []string {
	var tokens []string
	var word strings.Builder
	flush := func() {
		if word.Len() > 0 {
			tokens = append(tokens, strings.ToLower(word.String()))
			word.Reset()
		}
	}
	for _, r := range text {
		switch {
		case isCJK(r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}
