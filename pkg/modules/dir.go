package modules

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/segmentio/fasthash/fnv1a"

	"github.com/lemonberrylabs/tcalc/pkg/runtime"
	"github.com/lemonberrylabs/tcalc/pkg/types"
)

// Extensions are the module file extensions, in lookup order.
var Extensions = []string{".tc", ".yaml", ".yml", ".json"}

// Dir resolves imports from module files in a directory. A module named geo
// is read from geo.tc (program source) or from a geo.yaml, geo.yml or
// geo.json manifest. The module source runs in its own Evaluator; its user
// functions (or the manifest's exports) and manifest constants become the
// imported names.
//
// Loaded modules are cached and reloaded when the file contents change.
type Dir struct {
	root string
	opts []runtime.Option

	mu    sync.Mutex
	cache map[string]*loaded
}

type loaded struct {
	path    string
	hash    uint64
	exports map[string]runtime.Callable
}

// NewDir creates a resolver for the module files in root. opts configure the
// Evaluators module sources run in.
func NewDir(root string, opts ...runtime.Option) *Dir {
	return &Dir{
		root:  root,
		opts:  opts,
		cache: make(map[string]*loaded),
	}
}

// Root returns the module directory.
func (d *Dir) Root() string {
	return d.root
}

// Resolve implements runtime.ImportResolver.
func (d *Dir) Resolve(name string) (map[string]runtime.Callable, error) {
	return d.load(name, nil)
}

// List returns the names of the modules available in the directory.
func (d *Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("reading module directory: %w", err)
	}
	seen := make(map[string]bool)
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		name := strings.TrimSuffix(e.Name(), ext)
		if !isModuleExt(ext) || !isName(name) || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func isModuleExt(ext string) bool {
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// load resolves name; chain holds the modules currently being loaded by
// this import, outermost first.
func (d *Dir) load(name string, chain []string) (map[string]runtime.Callable, error) {
	if !isName(name) {
		return nil, types.NewImportError("invalid module name %q", name)
	}
	for _, c := range chain {
		if c == name {
			return nil, types.NewImportError("import cycle: %s -> %s", strings.Join(chain, " -> "), name)
		}
	}

	path, data, err := d.read(name)
	if err != nil {
		return nil, err
	}
	hash := fnv1a.HashBytes64(data)

	d.mu.Lock()
	if c, ok := d.cache[name]; ok && c.path == path && c.hash == hash {
		d.mu.Unlock()
		return c.exports, nil
	}
	d.mu.Unlock()

	next := append(append([]string(nil), chain...), name)
	exports, err := d.build(name, path, data, next)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.cache[name] = &loaded{path: path, hash: hash, exports: exports}
	d.mu.Unlock()

	log.Printf("Loaded module %s from %s (%d exports)", name, path, len(exports))
	return exports, nil
}

// read finds and reads the file for module name.
func (d *Dir) read(name string) (string, []byte, error) {
	for _, ext := range Extensions {
		path := filepath.Join(d.root, name+ext)
		data, err := os.ReadFile(path)
		if err == nil {
			return path, data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", nil, types.NewImportError("reading module '%s': %v", name, err)
		}
	}
	return "", nil, &NotFoundError{Name: name}
}

// build evaluates a module file and collects its exports.
func (d *Dir) build(name, path string, data []byte, chain []string) (map[string]runtime.Callable, error) {
	manifest := &Manifest{Name: name, Source: string(data)}
	if filepath.Ext(path) != ".tc" {
		m, err := ParseManifest(data)
		if err != nil {
			return nil, types.NewImportError("module '%s': %v", name, err)
		}
		manifest = m
		if manifest.Name != "" && manifest.Name != name {
			return nil, types.NewImportError("module '%s': manifest declares name '%s'", name, manifest.Name)
		}
	}

	ev := runtime.NewEvaluator(d.opts...)
	ev.SetImportResolver(runtime.ImportResolverFunc(func(dep string) (map[string]runtime.Callable, error) {
		return d.load(dep, chain)
	}))
	for cname, v := range manifest.Constants {
		ev.DefineConstant(cname, v)
	}
	if _, err := ev.EvaluateProgram(manifest.Source); err != nil {
		if types.IsKind(err, types.KindImport) {
			return nil, err
		}
		return nil, types.NewImportError("module '%s': %v", name, err)
	}

	names := manifest.Exports
	if len(names) == 0 {
		names = ev.UserFunctions()
	}

	exports := make(map[string]runtime.Callable, len(names)+len(manifest.Constants))
	for _, fname := range names {
		arity, ok := ev.Arity(fname)
		if !ok {
			return nil, types.NewImportError("module '%s' exports undefined function '%s'", name, fname)
		}
		fname := fname
		exports[fname] = runtime.Callable{
			Arity: arity,
			Fn: func(args []float64) (float64, error) {
				return ev.Call(fname, args...)
			},
		}
	}
	for cname, v := range manifest.Constants {
		v := v
		exports[cname] = runtime.Callable{
			Arity: 0,
			Fn:    func([]float64) (float64, error) { return v, nil },
		}
	}
	return exports, nil
}
