package transport

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrUnknownType   = errors.New("unknown transport type")
	ErrDuplicateType = errors.New("transport type already registered")
)

// DecodeFunc fills a type-specific options struct from raw configuration.
type DecodeFunc func(into interface{}) error

// Factory builds a transport of one type. diag receives diagnostics from the
// transport itself and must not route back into a transport.
type Factory func(decode DecodeFunc, diag *zap.SugaredLogger) (Transport, error)

// Registry maps transport type names to factories. Applications register the
// types they support at startup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds a named transport type.
func (r *Registry) Register(typeName string, f Factory) error {
	if typeName == "" || f == nil {
		return fmt.Errorf("transport type name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[typeName]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateType, typeName)
	}
	r.factories[typeName] = f
	return nil
}

// Build constructs a transport of the given type.
func (r *Registry) Build(typeName string, decode DecodeFunc, diag *zap.SugaredLogger) (Transport, error) {
	r.mu.RLock()
	f, ok := r.factories[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, typeName)
	}
	if diag == nil {
		diag = zap.NewNop().Sugar()
	}
	t, err := f(decode, diag)
	if err != nil {
		return nil, fmt.Errorf("building %s transport: %w", typeName, err)
	}
	return t, nil
}

// Types lists registered type names in alphabetical order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
