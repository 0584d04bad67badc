package resolver

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/arenastake/wagerd/pkg/wager/ledger"
)

// normalizeName lowercases a contestant name, strips diacritics and
// collapses whitespace, so "Natus Vincere" and "NATUS  VINCERE" compare
// equal and "Köln" matches "koln".
func normalizeName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, name)
	if err != nil {
		stripped = name
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}

// SideForName maps a resolver-reported winner name onto one of the match's
// contestants. It compares contestant IDs verbatim first, then normalized
// names. The second return is false when neither side matches.
func SideForName(ref ledger.MatchRef, winner string) (ledger.Side, bool) {
	if winner == "" {
		return 0, false
	}
	if winner == ref.Contestant1.ID {
		return ledger.Side1, true
	}
	if winner == ref.Contestant2.ID {
		return ledger.Side2, true
	}

	w := normalizeName(winner)
	if w == "" {
		return 0, false
	}
	if w == normalizeName(ref.Contestant1.Name) {
		return ledger.Side1, true
	}
	if w == normalizeName(ref.Contestant2.Name) {
		return ledger.Side2, true
	}
	return 0, false
}
