// Package currency holds the fixed registry of supported currency codes
// and their display symbols.
package currency

import "sort"

// Default is assigned to new accounts at registration.
const Default = "PKR"

var symbols = map[string]string{
	"PKR": "Rs",
	"AED": "AED",
	"USD": "$",
	"SAR": "SR",
	"INR": "₹",
}

// Supported reports whether code is a known currency.
func Supported(code string) bool {
	_, ok := symbols[code]
	return ok
}

// Symbol returns the display symbol for code.
func Symbol(code string) (string, bool) {
	s, ok := symbols[code]
	return s, ok
}

// Codes returns all supported codes in sorted order.
func Codes() []string {
	codes := make([]string, 0, len(symbols))
	for c := range symbols {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
