package providers

import (
	"errors"
	"fmt"
	"os"
	"plugin"
	"sort"
	"strings"
	"sync"
)

// ErrModuleNotFound means a module reference resolved to nothing.
var ErrModuleNotFound = errors.New("providers: module not found")

var (
	modulesMu sync.RWMutex
	modules   = map[string]Factory{}
)

// RegisterModule makes a factory loadable by reference. Packages shipping
// custom adapters call it from init, the same way database/sql drivers
// register themselves. Registering a reference twice panics.
func RegisterModule(ref string, f Factory) {
	if ref == "" || f == nil {
		panic("providers: RegisterModule with empty ref or nil factory")
	}
	modulesMu.Lock()
	defer modulesMu.Unlock()
	if _, dup := modules[ref]; dup {
		panic("providers: module registered twice: " + ref)
	}
	modules[ref] = f
}

// Modules lists registered module references.
func Modules() []string {
	modulesMu.RLock()
	defer modulesMu.RUnlock()
	out := make([]string, 0, len(modules))
	for k := range modules {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// OpenModule resolves ref to a factory: first the registry, then, for paths
// to a shared object on disk, a Go plugin exporting NewAdapter (a Factory or
// func(Options) (Adapter, error)) or Adapter (an Adapter variable).
func OpenModule(ref string) (Factory, error) {
	modulesMu.RLock()
	f, ok := modules[ref]
	modulesMu.RUnlock()
	if ok {
		return f, nil
	}
	if !strings.HasSuffix(ref, ".so") {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, ref)
	}
	if _, err := os.Stat(ref); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModuleNotFound, ref, err)
	}
	return openPlugin(ref)
}

func openPlugin(path string) (Factory, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("providers: open plugin %s: %w", path, err)
	}
	if sym, err := p.Lookup("NewAdapter"); err == nil {
		switch fn := sym.(type) {
		case func(Options) (Adapter, error):
			return fn, nil
		case *Factory:
			return *fn, nil
		case Factory:
			return fn, nil
		}
		return nil, fmt.Errorf("providers: plugin %s: NewAdapter has type %T", path, sym)
	}
	sym, err := p.Lookup("Adapter")
	if err != nil {
		return nil, fmt.Errorf("providers: plugin %s exports neither NewAdapter nor Adapter", path)
	}
	a, ok := sym.(*Adapter)
	if !ok || *a == nil {
		return nil, fmt.Errorf("providers: plugin %s: Adapter has type %T", path, sym)
	}
	adapter := *a
	return func(Options) (Adapter, error) { return adapter, nil }, nil
}
