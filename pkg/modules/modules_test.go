package modules

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/lemonberrylabs/tcalc/pkg/runtime"
	"github.com/lemonberrylabs/tcalc/pkg/types"
)

func writeModule(t *testing.T, dir, file, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", file, err)
	}
}

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(`
name: geo
description: plane geometry
constants:
  tau: 6.5
exports: [area]
source: |
  area(r) = pi * r * r
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name != "geo" {
		t.Errorf("name = %q", m.Name)
	}
	if m.Constants["tau"] != 6.5 {
		t.Errorf("tau = %v", m.Constants["tau"])
	}
	if len(m.Exports) != 1 || m.Exports[0] != "area" {
		t.Errorf("exports = %v", m.Exports)
	}
	if m.Source != "area(r) = pi * r * r\n" {
		t.Errorf("source = %q", m.Source)
	}
}

func TestParseManifestJSON(t *testing.T) {
	m, err := ParseManifest([]byte(`{"name": "k", "constants": {"g": 9.81}, "source": "half(x) = x / 2"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Constants["g"] != 9.81 || m.Source != "half(x) = x / 2" {
		t.Errorf("unexpected manifest: %+v", m)
	}
}

func TestParseManifestErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty", ""},
		{"not a mapping", "- a\n- b\n"},
		{"unknown field", "name: x\nsteps: []\n"},
		{"bad constant name", "constants:\n  2x: 1\n"},
		{"bad export name", "exports: ['a-b']\n"},
		{"constant not a number", "constants:\n  x: hello\n"},
		{"invalid yaml", "name: [unclosed\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.src))
			if err == nil {
				t.Fatal("expected error")
			}
			if _, ok := err.(*ManifestError); !ok {
				t.Errorf("expected *ManifestError, got %T", err)
			}
		})
	}
}

func TestStatic(t *testing.T) {
	s := Static{
		"util": {
			"inc": {Arity: 1, Fn: func(args []float64) (float64, error) { return args[0] + 1, nil }},
		},
	}

	ev := runtime.NewEvaluator(runtime.WithImportResolver(s))
	results, err := ev.EvaluateProgram("import util; inc(41)")
	if err != nil {
		t.Fatalf("eval error: %v", err)
	}
	if len(results) != 1 || results[0] != 42 {
		t.Errorf("got %v, want [42]", results)
	}

	_, err = ev.EvaluateProgram("import missing")
	if !types.IsKind(err, types.KindImport) {
		t.Errorf("expected ImportError, got %v", err)
	}
}

func TestChain(t *testing.T) {
	one := func(v float64) runtime.Callable {
		return runtime.Callable{Arity: 0, Fn: func([]float64) (float64, error) { return v, nil }}
	}
	c := Chain{
		Static{"a": {"val": one(1)}},
		Static{"a": {"val": one(2)}, "b": {"val": one(3)}},
	}

	exports, err := c.Resolve("a")
	if err != nil {
		t.Fatalf("resolve a: %v", err)
	}
	if v, _ := exports["val"].Fn(nil); v != 1 {
		t.Errorf("a.val = %v, want 1 from the first resolver", v)
	}
	if _, err := c.Resolve("b"); err != nil {
		t.Errorf("resolve b: %v", err)
	}
	if _, err := c.Resolve("c"); !isNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestDirSourceModule(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "geo.tc", "# plane geometry\nsq(x) = x * x\narea(r) = pi * sq(r)\n")

	ev := runtime.NewEvaluator(runtime.WithImportResolver(NewDir(dir)))
	results, err := ev.EvaluateProgram("import geo\narea(2)\nsq(3)")
	if err != nil {
		t.Fatalf("eval error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %v", results)
	}
	if math.Abs(results[0]-4*math.Pi) > 1e-12 {
		t.Errorf("area(2) = %v", results[0])
	}
	if results[1] != 9 {
		t.Errorf("sq(3) = %v", results[1])
	}
}

func TestDirManifestModule(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "phys.yaml", `
name: phys
constants:
  g: 10
exports: [fall]
source: |
  helper(t) = t * t
  fall(t) = g * helper(t) / 2
`)

	ev := runtime.NewEvaluator(runtime.WithImportResolver(NewDir(dir)))
	results, err := ev.EvaluateProgram("import phys; fall(2); g()")
	if err != nil {
		t.Fatalf("eval error: %v", err)
	}
	if results[0] != 20 || results[1] != 10 {
		t.Errorf("got %v, want [20 10]", results)
	}

	// helper is not exported.
	if _, err := ev.Evaluate("helper(1)"); !types.IsKind(err, types.KindUndefinedFunction) {
		t.Errorf("expected UndefinedFunctionError, got %v", err)
	}
}

func TestDirNestedImportsAndCycles(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "base.tc", "double(x) = x * 2\n")
	writeModule(t, dir, "top.tc", "import base\nquad(x) = double(double(x))\n")
	writeModule(t, dir, "ping.tc", "import pong\n")
	writeModule(t, dir, "pong.tc", "import ping\n")

	d := NewDir(dir)
	ev := runtime.NewEvaluator(runtime.WithImportResolver(d))
	results, err := ev.EvaluateProgram("import top; quad(3)")
	if err != nil {
		t.Fatalf("eval error: %v", err)
	}
	if results[0] != 12 {
		t.Errorf("quad(3) = %v, want 12", results[0])
	}

	_, err = ev.EvaluateProgram("import ping")
	if !types.IsKind(err, types.KindImport) {
		t.Fatalf("expected ImportError for cycle, got %v", err)
	}
}

func TestDirErrors(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "broken.tc", "f(x) = x +\n")
	writeModule(t, dir, "liar.yaml", "exports: [nothing]\nsource: 'x = 1'\n")
	writeModule(t, dir, "renamed.yaml", "name: other\nsource: ''\n")

	d := NewDir(dir)
	for _, name := range []string{"broken", "liar", "renamed", "absent"} {
		t.Run(name, func(t *testing.T) {
			ev := runtime.NewEvaluator(runtime.WithImportResolver(d))
			_, err := ev.EvaluateProgram("import " + name)
			if !types.IsKind(err, types.KindImport) {
				t.Errorf("expected ImportError, got %v", err)
			}
		})
	}
}

func TestDirReloadsChangedFiles(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "k.tc", "k() = 1\n")
	d := NewDir(dir)

	exports, err := d.Resolve("k")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if v, _ := exports["k"].Fn(nil); v != 1 {
		t.Fatalf("k() = %v, want 1", v)
	}

	writeModule(t, dir, "k.tc", "k() = 2\n")
	exports, err = d.Resolve("k")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if v, _ := exports["k"].Fn(nil); v != 2 {
		t.Errorf("k() = %v after edit, want 2", v)
	}
}

func TestDirList(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "b.tc", "")
	writeModule(t, dir, "a.yaml", "source: ''\n")
	writeModule(t, dir, "a.tc", "")
	writeModule(t, dir, "notes.txt", "")

	names, err := NewDir(dir).List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("List() = %v, want [a b]", names)
	}
}
