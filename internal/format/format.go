// Package format renders game values for display.
package format

import (
	"fmt"
	"time"

	"idlegame/engine/internal/bignum"
)

// Suffixes lists the magnitude abbreviations, one per power of 1000.
var Suffixes = []string{"", "K", "M", "B", "T", "Qa", "Qi", "Sx", "Sp", "Oc"}

// Number renders n compactly: raw digits below 1000, a magnitude suffix with up
// to two decimals up to the Oc range, scientific notation beyond it.
func Number(n bignum.Int) string {
	digits := n.String()
	length := len(digits)

	if length <= 3 {
		return digits
	}

	if length/3 >= len(Suffixes) {
		return fmt.Sprintf("%s.%se%d", digits[:1], digits[1:3], length-1)
	}

	suffixIndex := (length - 1) / 3
	offset := length - suffixIndex*3

	lead := digits[:offset]
	decimals := "00"
	if offset+2 <= length {
		decimals = digits[offset : offset+2]
	}

	if decimals == "00" {
		return lead + Suffixes[suffixIndex]
	}
	return lead + "." + decimals + Suffixes[suffixIndex]
}

// LastSaved describes how long ago savedAt was relative to now. A zero savedAt
// means the game has never been saved.
func LastSaved(savedAt, now time.Time) string {
	if savedAt.IsZero() {
		return "Never"
	}
	seconds := float64(now.Sub(savedAt).Milliseconds()) / 1000
	switch {
	case seconds < 60:
		return "Just now"
	case seconds < 3600:
		return fmt.Sprintf("%.0f minutes ago", seconds/60)
	default:
		return fmt.Sprintf("%.1f hours ago", seconds/3600)
	}
}
