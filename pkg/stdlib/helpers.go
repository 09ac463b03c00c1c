package stdlib

import (
	"fmt"

	"github.com/lemonberrylabs/tcalc/pkg/types"
)

// requireArgs checks that the number of args is in range. A negative max
// means unbounded.
func requireArgs(name string, args []float64, min, max int) error {
	if len(args) >= min && (max < 0 || len(args) <= max) {
		return nil
	}
	var msg string
	switch {
	case min == max:
		msg = fmt.Sprintf("%s expects %d argument(s), got %d", name, min, len(args))
	case max < 0:
		msg = fmt.Sprintf("%s expects at least %d argument(s), got %d", name, min, len(args))
	default:
		msg = fmt.Sprintf("%s expects %d-%d arguments, got %d", name, min, max, len(args))
	}
	return &types.Error{Kind: types.KindArity, Message: msg}
}

// unary adapts a one-argument math function.
func unary(fn func(float64) float64) Func {
	return func(args []float64) (float64, error) {
		return fn(args[0]), nil
	}
}

// binary adapts a two-argument math function.
func binary(fn func(float64, float64) float64) Func {
	return func(args []float64) (float64, error) {
		return fn(args[0], args[1]), nil
	}
}
