package modules

import (
	"errors"
	"fmt"

	"github.com/lemonberrylabs/tcalc/pkg/runtime"
)

// NotFoundError is returned when no resolver knows a module.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("module '%s' not found", e.Name)
}

func isNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Static resolves imports from an in-memory table of module name to exports.
type Static map[string]map[string]runtime.Callable

// Resolve implements runtime.ImportResolver.
func (s Static) Resolve(name string) (map[string]runtime.Callable, error) {
	exports, ok := s[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return exports, nil
}

// Chain tries each resolver in order and returns the first module found.
type Chain []runtime.ImportResolver

// Resolve implements runtime.ImportResolver. Failures other than a missing
// module stop the search.
func (c Chain) Resolve(name string) (map[string]runtime.Callable, error) {
	for _, r := range c {
		exports, err := r.Resolve(name)
		if err == nil {
			return exports, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}
	return nil, &NotFoundError{Name: name}
}
