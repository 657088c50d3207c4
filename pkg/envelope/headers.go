package envelope

import (
	"sort"

	"github.com/elliotchance/orderedmap/v2"
)

// Headers is an insertion-ordered mapping of header names to values.
// Setting an existing name replaces its value and keeps its position.
// A nil *Headers reads as empty.
type Headers struct {
	m *orderedmap.OrderedMap[string, any]
}

// NewHeaders returns an empty header set.
func NewHeaders() *Headers {
	return &Headers{m: orderedmap.NewOrderedMap[string, any]()}
}

// HeadersFrom copies m into a new header set. Go maps are unordered, so
// names are inserted in sorted order to keep the result deterministic.
func HeadersFrom(m map[string]any) *Headers {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	h := &Headers{m: orderedmap.NewOrderedMapWithCapacity[string, any](len(names))}
	for _, name := range names {
		h.m.Set(name, m[name])
	}
	return h
}

// Set stores value under name.
func (h *Headers) Set(name string, value any) {
	h.m.Set(name, value)
}

// Get returns the value stored under name.
func (h *Headers) Get(name string) (any, bool) {
	if h == nil {
		return nil, false
	}
	return h.m.Get(name)
}

// Has reports whether name is present.
func (h *Headers) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// Len returns the number of headers.
func (h *Headers) Len() int {
	if h == nil {
		return 0
	}
	return h.m.Len()
}

// Range calls fn for each header in insertion order until fn returns false.
func (h *Headers) Range(fn func(name string, value any) bool) {
	if h == nil {
		return
	}
	for el := h.m.Front(); el != nil; el = el.Next() {
		if !fn(el.Key, el.Value) {
			return
		}
	}
}

// Names returns the header names in insertion order.
func (h *Headers) Names() []string {
	names := make([]string, 0, h.Len())
	h.Range(func(name string, _ any) bool {
		names = append(names, name)
		return true
	})
	return names
}

// Map returns an unordered copy of the headers.
func (h *Headers) Map() map[string]any {
	out := make(map[string]any, h.Len())
	h.Range(func(name string, value any) bool {
		out[name] = value
		return true
	})
	return out
}

// Clone returns an independent copy with the same order.
func (h *Headers) Clone() *Headers {
	c := &Headers{m: orderedmap.NewOrderedMapWithCapacity[string, any](h.Len())}
	h.Range(func(name string, value any) bool {
		c.m.Set(name, value)
		return true
	})
	return c
}
