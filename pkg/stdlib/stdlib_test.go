package stdlib

import (
	"math"
	"testing"

	"github.com/lemonberrylabs/tcalc/pkg/types"
)

func TestBuiltins(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name string
		args []float64
		want float64
	}{
		{"sqrt", []float64{16}, 4},
		{"pow", []float64{2, 10}, 1024},
		{"log", []float64{10, 1000}, 3},
		{"log", []float64{2, 8}, 3},
		{"ln", []float64{math.E}, 1},
		{"exp", []float64{0}, 1},
		{"abs", []float64{-3.5}, 3.5},
		{"floor", []float64{2.7}, 2},
		{"ceil", []float64{2.1}, 3},
		{"round", []float64{2.5}, 3},
		{"hypot", []float64{3, 4}, 5},
		{"min", []float64{3, 1, 2}, 1},
		{"max", []float64{3, 1, 2}, 3},
		{"min", []float64{7}, 7},
		{"sin", []float64{0}, 0},
		{"cos", []float64{0}, 1},
		{"atan2", []float64{0, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Call(tt.name, tt.args)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("%s(%v) = %v, want %v", tt.name, tt.args, got, tt.want)
			}
		})
	}
}

func TestBuiltinErrors(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name string
		args []float64
		kind types.Kind
	}{
		{"sqrt", nil, types.KindArity},
		{"sqrt", []float64{1, 2}, types.KindArity},
		{"pow", []float64{2}, types.KindArity},
		{"min", nil, types.KindArity},
		{"max", nil, types.KindArity},
		{"log", []float64{1, 5}, types.KindArithmetic},
		{"log", []float64{-2, 5}, types.KindArithmetic},
		{"log", []float64{10, 0}, types.KindArithmetic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Call(tt.name, tt.args)
			if err == nil {
				t.Fatal("expected error")
			}
			if types.KindOf(err) != tt.kind {
				t.Errorf("got %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestConstants(t *testing.T) {
	consts := NewRegistry().Constants()
	if consts["pi"] != math.Pi {
		t.Errorf("pi = %v", consts["pi"])
	}
	if consts["e"] != math.E {
		t.Errorf("e = %v", consts["e"])
	}
}

func TestRegistryListing(t *testing.T) {
	r := NewRegistry()
	r.Register("double", 1, func(args []float64) (float64, error) { return args[0] * 2, nil })

	got, err := r.Call("double", []float64{21})
	if err != nil || got != 42 {
		t.Fatalf("double(21) = %v, %v", got, err)
	}

	builtins := r.Builtins()
	for i := 1; i < len(builtins); i++ {
		if builtins[i-1].Name >= builtins[i].Name {
			t.Fatalf("builtins not sorted: %s before %s", builtins[i-1].Name, builtins[i].Name)
		}
	}
	if _, ok := r.Lookup("double"); !ok {
		t.Error("registered function not found")
	}
	if _, err := r.Call("nope", nil); err == nil {
		t.Error("expected error for unknown function")
	}
}
