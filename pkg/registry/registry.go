// Package registry maps type descriptors to envelope decoders.
//
// A Registry is filled at startup and then read concurrently by any
// number of parsers. Default returns one preloaded with the builtin
// descriptors; RegisterType adds application struct types.
package registry

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"firestige.xyz/envelope/pkg/envelope"
)

var (
	ErrTypeNotFound      = errors.New("registry: type not found")
	ErrAlreadyRegistered = errors.New("registry: type already registered")
)

var (
	_ envelope.TypeResolver = (*Registry)(nil)
	_ envelope.TypeNamer    = (*Registry)(nil)
)

// Registry is a concurrency-safe descriptor -> decoder table. It
// implements envelope.TypeResolver and envelope.TypeNamer.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]envelope.DecodeFunc
	names    map[reflect.Type]string // Go type -> descriptor, for encoding
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		decoders: make(map[string]envelope.DecodeFunc),
		names:    make(map[reflect.Type]string),
	}
}

// Register adds a decoder under descriptor.
func (r *Registry) Register(descriptor string, decode envelope.DecodeFunc) error {
	return r.register(descriptor, decode, nil)
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(descriptor string, decode envelope.DecodeFunc) {
	if err := r.Register(descriptor, decode); err != nil {
		panic(err)
	}
}

// Bind associates the dynamic type of sample with an already registered
// descriptor so that encoders tag values of that type.
func (r *Registry) Bind(descriptor string, sample any) error {
	t := reflect.TypeOf(sample)
	if t == nil {
		return fmt.Errorf("registry: cannot bind untyped nil to %q", descriptor)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.decoders[descriptor]; !exists {
		return fmt.Errorf("%w: %q", ErrTypeNotFound, descriptor)
	}
	if bound, exists := r.names[t]; exists && bound != descriptor {
		return fmt.Errorf("registry: %s already bound to %q", t, bound)
	}
	r.names[t] = descriptor
	return nil
}

func (r *Registry) register(descriptor string, decode envelope.DecodeFunc, t reflect.Type) error {
	if descriptor == "" {
		return fmt.Errorf("registry: descriptor is required")
	}
	if decode == nil {
		return fmt.Errorf("registry: decoder for %q is nil", descriptor)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.decoders[descriptor]; exists {
		return fmt.Errorf("%w: %q", ErrAlreadyRegistered, descriptor)
	}
	if t != nil {
		if bound, exists := r.names[t]; exists {
			return fmt.Errorf("registry: %s already bound to %q", t, bound)
		}
		r.names[t] = descriptor
	}
	r.decoders[descriptor] = decode
	return nil
}

// Resolve returns the decoder registered under descriptor.
func (r *Registry) Resolve(descriptor string) (envelope.DecodeFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	decode, ok := r.decoders[descriptor]
	return decode, ok
}

// Get is Resolve with an error for unknown descriptors.
func (r *Registry) Get(descriptor string) (envelope.DecodeFunc, error) {
	decode, ok := r.Resolve(descriptor)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTypeNotFound, descriptor)
	}
	return decode, nil
}

// DescriptorOf returns the descriptor bound to v's dynamic type.
func (r *Registry) DescriptorOf(v any) (string, bool) {
	t := reflect.TypeOf(v)
	if t == nil {
		return "", false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptor, ok := r.names[t]
	return descriptor, ok
}

// Descriptors lists the registered descriptors in sorted order.
func (r *Registry) Descriptors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.decoders))
	for descriptor := range r.decoders {
		out = append(out, descriptor)
	}
	sort.Strings(out)
	return out
}
