// Package query filters and inspects a collection snapshot. Every function is
// pure: the input collection is never modified and equal inputs give equal
// results.
package query

import (
	"errors"
	"math"
	"strings"
	"unicode"

	"heroes/internal/model"
)

// ErrIDSpaceExhausted is returned by NextID when the largest stored id is
// already math.MaxInt64.
var ErrIDSpaceExhausted = errors.New("no character id left above the current maximum")

// fold maps every rune of s to the smallest rune of its simple case folding
// orbit. Runes never expand, so "ß" does not match "ss".
func fold(s string) string {
	return strings.Map(foldRune, s)
}

func foldRune(r rune) rune {
	lowest := r
	for f := unicode.SimpleFold(r); f != r; f = unicode.SimpleFold(f) {
		if f < lowest {
			lowest = f
		}
	}
	return lowest
}

// Search returns the records whose name or real name contains q, compared
// after case folding. A blank q returns the whole collection. The result
// keeps the input order and never aliases the input slice.
func Search(c model.Collection, q string) model.Collection {
	if strings.TrimSpace(q) == "" {
		return c.Clone()
	}

	needle := fold(q)
	out := model.Collection{}
	for _, ch := range c {
		if Matches(ch, needle) {
			out = append(out, ch)
		}
	}
	return out
}

// Matches reports whether an already folded needle occurs in the name or the
// real name of ch.
func Matches(ch model.Character, foldedNeedle string) bool {
	return strings.Contains(fold(ch.Name), foldedNeedle) ||
		strings.Contains(fold(ch.RealName), foldedNeedle)
}

// Find returns the record with the given id and its index.
func Find(c model.Collection, id model.CharacterID) (model.Character, int, bool) {
	for i, ch := range c {
		if ch.ID == id {
			return ch, i, true
		}
	}
	return model.Character{}, -1, false
}

// NextID returns max(id)+1, or 1 for an empty collection.
func NextID(c model.Collection) (model.CharacterID, error) {
	if len(c) == 0 {
		return 1, nil
	}
	maxID := c[0].ID
	for _, ch := range c[1:] {
		if ch.ID > maxID {
			maxID = ch.ID
		}
	}
	if maxID == math.MaxInt64 {
		return 0, model.NewStorageError("assign id", ErrIDSpaceExhausted)
	}
	return maxID + 1, nil
}
