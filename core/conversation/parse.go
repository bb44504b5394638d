package conversation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type intent int

const (
	intentNone intent = iota
	intentGreeting
	intentHelp
	intentMenu
	intentConfirm
	intentCancel
	intentPaid
)

var keywords = map[string]intent{
	"hi":      intentGreeting,
	"hello":   intentGreeting,
	"hey":     intentGreeting,
	"help":    intentHelp,
	"support": intentHelp,
	"menu":    intentMenu,
	"order":   intentMenu,
	"confirm": intentConfirm,
	"cancel":  intentCancel,
	"paid":    intentPaid,
}

// normalize lowercases and trims a message for keyword matching.
func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func classify(text string) intent {
	return keywords[normalize(text)]
}

// parseItemIDs splits a comma separated selection. Unknown or malformed
// tokens are dropped, duplicates are kept in input order.
func parseItemIDs(text string, known func(int) bool) []int {
	var ids []int
	for _, tok := range strings.Split(text, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil || !known(id) {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

const (
	maxQuantity      = 10000
	maxQuantityScale = 3
)

// quantityRe admits plain decimals only: no sign, exponent or grouping.
var quantityRe = regexp.MustCompile(`^[0-9]{0,5}(\.[0-9]{1,3})?$`)

// parseQuantity accepts a positive decimal up to maxQuantity with at most
// maxQuantityScale fractional digits, optionally followed by unit (e.g. "2.5L").
func parseQuantity(text, unit string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(text)
	if unit != "" && len(s) > len(unit) && strings.EqualFold(s[len(s)-len(unit):], unit) {
		s = strings.TrimSpace(s[:len(s)-len(unit)])
	}
	if s == "" || !quantityRe.MatchString(s) {
		return decimal.Zero, false
	}
	q, err := decimal.NewFromString(s)
	if err != nil || !q.IsPositive() ||
		q.GreaterThan(decimal.NewFromInt(maxQuantity)) || q.Exponent() < -maxQuantityScale {
		return decimal.Zero, false
	}
	return q, true
}
