// Package types defines the error taxonomy and number formatting shared by
// every tcalc stage. Values in tcalc are always float64; there is no boolean
// or string type at run time.
package types

import (
	"math"
	"strconv"
	"strings"
)

// Truthy reports whether v counts as true in a condition: any non-zero value.
func Truthy(v float64) bool {
	return v != 0
}

// Bool converts a Go bool to the numeric truth values 1 and 0.
func Bool(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// FormatNumber renders a value the way the CLI and the APIs print results:
// integral values without a fractional part, everything else in the shortest
// representation that round-trips.
func FormatNumber(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// FormatNumbers joins several values with sep.
func FormatNumbers(vs []float64, sep string) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = FormatNumber(v)
	}
	return strings.Join(parts, sep)
}
