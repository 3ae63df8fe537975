package chess

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	CastleKingside  = "O-O"
	CastleQueenside = "O-O-O"
)

var castlingSpellings = map[string]string{
	"OO":    CastleKingside,
	"O-O":   CastleKingside,
	"0-0":   CastleKingside,
	"OOO":   CastleQueenside,
	"O-O-O": CastleQueenside,
	"0-0-0": CastleQueenside,
}

// ExtractCandidate picks the move-looking token out of free text.
// Single-token replies are returned trimmed and otherwise untouched.
func ExtractCandidate(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.ContainsFunc(text, unicode.IsSpace) {
		return text
	}
	for _, word := range strings.Fields(text) {
		clean := cleanToken(word)
		if clean == "" {
			continue
		}
		if looksLikeMove(clean) {
			return clean
		}
	}
	return text
}

// NormalizeCastling maps castling spellings onto O-O / O-O-O.
func NormalizeCastling(s string) string {
	if canon, ok := castlingSpellings[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return canon
	}
	return s
}

func isCastling(s string) bool {
	_, ok := castlingSpellings[strings.ToUpper(s)]
	return ok
}

func cleanToken(word string) string {
	var b strings.Builder
	for _, r := range word {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("x+-=", r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Patterns are tried in order: pawn square, piece move, capture marker,
// castling, coordinate pair. Letter case is ignored here; the token itself
// is returned as written.
func looksLikeMove(s string) bool {
	n := utf8.RuneCountInString(s)
	if n != len(s) {
		return strings.Contains(s, "x") || isCastling(s)
	}
	l := strings.ToLower(s)
	switch {
	case n == 2 && isFile(l[0]) && isRank(l[1]):
		return true
	case n == 3 && strings.IndexByte("NBRQK", strings.ToUpper(s)[0]) >= 0 && isFile(l[1]) && isRank(l[2]):
		return true
	case strings.Contains(s, "x"):
		return true
	case isCastling(s):
		return true
	case n == 4 && isFile(l[0]) && isRank(l[1]) && isFile(l[2]) && isRank(l[3]):
		return true
	}
	return false
}

func isFile(b byte) bool { return b >= 'a' && b <= 'h' }
func isRank(b byte) bool { return b >= '1' && b <= '8' }
