package engine

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
)

// LoadFunc is the phase-1 function for an event kind. It declares the
// entities the handler will read and must have no other side effects.
type LoadFunc[P any] func(lc *LoadContext, params P) error

// HandlerFunc is the phase-2 function for an event kind. It must be a
// deterministic function of the event and the entities it reads.
type HandlerFunc[P any] func(hc *HandlerContext, params P) error

// EventKey identifies a registration: contract identity and event kind.
type EventKey struct {
	Contract string
	Kind     string
}

func (k EventKey) String() string {
	return k.Contract + "." + k.Kind
}

// Filter restricts dispatch to a selected subset of registrations.
// Implemented by config.Selection.
type Filter interface {
	Allows(contract, kind string) bool
}

// binding is a registration with its params type erased.
type binding struct {
	key    EventKey
	decode func(raw any) (any, error)
	load   func(lc *LoadContext, params any) error
	handle func(hc *HandlerContext, params any) error
}

// Registry maps (contract, event kind) to its load and handler functions.
//
// Thread-safety: Registry is safe for concurrent use. Registration is
// expected at startup; lookups happen on every event.
type Registry struct {
	mu      sync.RWMutex
	entries map[EventKey]*binding
	filter  Filter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[EventKey]*binding)}
}

// Register installs the (load, handle) pair for contract.kind, replacing
// any earlier registration for the same key. load may be nil for handlers
// that read nothing. Panics if handle is nil.
//
// Event params arriving as P or *P are used directly; json.RawMessage,
// []byte and generic maps (decoded YAML or JSON) are decoded into P.
func Register[P any](r *Registry, contract, kind string, load LoadFunc[P], handle HandlerFunc[P]) {
	if handle == nil {
		panic(fmt.Sprintf("engine: nil handler for %s.%s", contract, kind))
	}
	b := &binding{
		key: EventKey{Contract: contract, Kind: kind},
		decode: func(raw any) (any, error) {
			return decodeParams[P](raw)
		},
		handle: func(hc *HandlerContext, params any) error {
			return handle(hc, params.(P))
		},
	}
	if load != nil {
		b.load = func(lc *LoadContext, params any) error {
			return load(lc, params.(P))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[b.key] = b
}

// SetFilter restricts dispatch. Registrations the filter rejects are
// treated like unknown kinds. A nil filter allows everything.
func (r *Registry) SetFilter(f Filter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filter = f
}

// Keys returns every registered key, sorted.
func (r *Registry) Keys() []EventKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]EventKey, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b EventKey) int {
		if c := cmp.Compare(a.Contract, b.Contract); c != 0 {
			return c
		}
		return cmp.Compare(a.Kind, b.Kind)
	})
	return keys
}

// Has reports whether contract.kind is registered and selected.
func (r *Registry) Has(contract, kind string) bool {
	_, ok := r.lookup(contract, kind)
	return ok
}

// lookup returns the binding for contract.kind. Unknown or filtered-out
// kinds report false; that is not an error.
func (r *Registry) lookup(contract, kind string) (*binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.entries[EventKey{Contract: contract, Kind: kind}]
	if !ok {
		return nil, false
	}
	if r.filter != nil && !r.filter.Allows(contract, kind) {
		return nil, false
	}
	return b, true
}

func decodeParams[P any](raw any) (P, error) {
	var p P
	switch v := raw.(type) {
	case P:
		return v, nil
	case *P:
		if v == nil {
			return p, fmt.Errorf("decode params: nil %T", raw)
		}
		return *v, nil
	case json.RawMessage:
		return unmarshalParams[P](v)
	case []byte:
		return unmarshalParams[P](v)
	case nil:
		return p, fmt.Errorf("decode params: missing params for %T", p)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return p, fmt.Errorf("decode params: %w", err)
		}
		return unmarshalParams[P](data)
	}
}

func unmarshalParams[P any](data []byte) (P, error) {
	var p P
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode params into %T: %w", p, err)
	}
	return p, nil
}
