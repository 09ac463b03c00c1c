package stdlib

import (
	"math"
)

// registerTrig registers the trigonometric built-ins. Angles are radians.
func (r *Registry) registerTrig() {
	r.Register("sin", 1, unary(math.Sin))
	r.Register("cos", 1, unary(math.Cos))
	r.Register("tan", 1, unary(math.Tan))
	r.Register("asin", 1, unary(math.Asin))
	r.Register("acos", 1, unary(math.Acos))
	r.Register("atan", 1, unary(math.Atan))
	r.Register("atan2", 2, binary(math.Atan2))
}
