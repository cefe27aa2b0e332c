// Package clinic holds the provider profiles the clinic operates with and the
// weekly business hours each provider keeps.
package clinic

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrUnknownProvider is returned when a source key or provider name does not
// resolve to one of the configured providers.
var ErrUnknownProvider = errors.New("clinic: unknown provider")

// ProviderKey identifies one of the two provider accounts.
type ProviderKey int

const (
	ProviderMarilia ProviderKey = iota + 1
	ProviderMarina
)

// Keys lists every provider in a stable order.
var Keys = []ProviderKey{ProviderMarilia, ProviderMarina}

// SourceKey returns the webhook source key that selects this provider.
func (k ProviderKey) SourceKey() string {
	switch k {
	case ProviderMarilia:
		return "manyChat1"
	case ProviderMarina:
		return "manyChat2"
	default:
		return ""
	}
}

func (k ProviderKey) String() string {
	switch k {
	case ProviderMarilia:
		return "marilia"
	case ProviderMarina:
		return "marina"
	default:
		return "unknown"
	}
}

// ParseSource resolves the webhook source key. Matching is exact.
func ParseSource(source string) (ProviderKey, error) {
	switch strings.TrimSpace(source) {
	case "manyChat1":
		return ProviderMarilia, nil
	case "manyChat2":
		return ProviderMarina, nil
	default:
		return 0, ErrUnknownProvider
	}
}

// MatchName resolves a free-form provider name ("Dra Marina Zaneti",
// "Marília", "MARILIA") by case and diacritic insensitive substring match.
func MatchName(name string) (ProviderKey, bool) {
	folded := Fold(name)
	switch {
	case strings.Contains(folded, "marina"):
		return ProviderMarina, true
	case strings.Contains(folded, "marilia"):
		return ProviderMarilia, true
	default:
		return 0, false
	}
}

var diacritics = runes.Remove(runes.In(unicode.Mn))

// Fold lower-cases s and strips combining marks so "Marília" folds to "marilia".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, diacritics, norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}
