package stdlib

import (
	"math"

	"github.com/lemonberrylabs/tcalc/pkg/types"
)

// registerMath registers the arithmetic built-ins.
func (r *Registry) registerMath() {
	r.Register("sqrt", 1, unary(math.Sqrt))
	r.Register("pow", 2, binary(math.Pow))
	r.Register("log", 2, mathLog)
	r.Register("ln", 1, unary(math.Log))
	r.Register("exp", 1, unary(math.Exp))
	r.Register("abs", 1, unary(math.Abs))
	r.Register("floor", 1, unary(math.Floor))
	r.Register("ceil", 1, unary(math.Ceil))
	r.Register("round", 1, unary(math.Round))
	r.Register("hypot", 2, binary(math.Hypot))
	r.Register("min", Variadic, mathMin)
	r.Register("max", Variadic, mathMax)
}

// registerConstants registers pi and e.
func (r *Registry) registerConstants() {
	r.RegisterConstant("pi", math.Pi)
	r.RegisterConstant("e", math.E)
}

// mathLog is log(base, x).
func mathLog(args []float64) (float64, error) {
	base, x := args[0], args[1]
	if base <= 0 || base == 1 {
		return 0, types.NewArithmeticError("log base must be positive and not 1, got %s", types.FormatNumber(base))
	}
	if x <= 0 {
		return 0, types.NewArithmeticError("log of non-positive value %s", types.FormatNumber(x))
	}
	return math.Log(x) / math.Log(base), nil
}

func mathMin(args []float64) (float64, error) {
	if err := requireArgs("min", args, 1, -1); err != nil {
		return 0, err
	}
	m := args[0]
	for _, v := range args[1:] {
		if v < m {
			m = v
		}
	}
	return m, nil
}

func mathMax(args []float64) (float64, error) {
	if err := requireArgs("max", args, 1, -1); err != nil {
		return 0, err
	}
	m := args[0]
	for _, v := range args[1:] {
		if v > m {
			m = v
		}
	}
	return m, nil
}
