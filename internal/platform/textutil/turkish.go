package textutil

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var turkishUpper = cases.Upper(language.Turkish)

// NormalizeCode upper-cases the value with Turkish casing rules and strips
// surrounding whitespace. Used for coupon codes and order numbers so that
// dotted and dotless i variants compare equal.
func NormalizeCode(value string) string {
	return turkishUpper.String(strings.TrimSpace(value))
}
