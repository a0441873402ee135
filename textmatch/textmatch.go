// Package textmatch provides content normalization, hashing and edit-distance
// similarity used for flashcard duplicate detection.
package textmatch

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	punctRe      = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Normalize trims, lowercases, strips punctuation and collapses whitespace.
// Pure and deterministic: equal inputs always map to equal outputs.
func Normalize(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = punctRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Hash returns the hex-encoded sha256 of the normalized text, so any two
// texts that normalize identically share a hash.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// Similarity scores two texts in [0,1] using levenshtein distance over the
// normalized forms. Identical-after-normalization pairs score 1.0; if
// exactly one side normalizes to empty the score is 0. Symmetric.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return 1.0
	}
	if na == "" || nb == "" {
		return 0.0
	}
	ra, rb := []rune(na), []rune(nb)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	dist := levenshtein(ra, rb)
	return 1.0 - float64(dist)/float64(maxLen)
}

// levenshtein computes edit distance with a two-row rolling table.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
