package reportimport

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var errInvalidMonth = errors.New("invalid month")

// ParseLocaleDecimal parses distributor amounts such as "1,50", "1.234,5" or "1 234,5".
// When a comma is present it is the decimal separator and dots/spaces are grouping.
// A single dot without a comma is a decimal point, so "1.000" is 1, not 1000;
// reports group thousands with a dot only next to a decimal comma.
func ParseLocaleDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "", "'", "").Replace(s)
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	} else if strings.Count(s, ".") > 1 {
		s = strings.ReplaceAll(s, ".", "")
	}
	return decimal.NewFromString(s)
}

var monthLayouts = []string{"200601", "2006-01", "01/2006", "1/2006", "2006/01", "2006-01-02", "01.2006"}

// NormalizeMonth returns the month as YYYYMM.
func NormalizeMonth(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("200601"), nil
		}
	}
	return "", errInvalidMonth
}
