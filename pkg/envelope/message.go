package envelope

// Message is an immutable payload with its headers.
type Message struct {
	payload any
	headers *Headers
}

// Payload returns the message payload, nil when the envelope had none.
func (m *Message) Payload() any {
	return m.payload
}

// Header returns a single header value.
func (m *Message) Header(name string) (any, bool) {
	return m.headers.Get(name)
}

// Headers returns a copy of the message headers.
func (m *Message) Headers() *Headers {
	return m.headers.Clone()
}

// Builder assembles a Message. A Builder is not safe for concurrent use.
type Builder struct {
	payload any
	headers *Headers
}

// WithPayload starts a Builder for a message carrying payload.
func WithPayload(payload any) *Builder {
	return &Builder{payload: payload, headers: NewHeaders()}
}

// FromMessage starts a Builder seeded with m's payload and headers.
func FromMessage(m *Message) *Builder {
	return &Builder{payload: m.payload, headers: m.headers.Clone()}
}

// SetHeader stores one header, replacing any previous value.
func (b *Builder) SetHeader(name string, value any) *Builder {
	b.headers.Set(name, value)
	return b
}

// CopyHeaders copies every entry of h, replacing existing values.
func (b *Builder) CopyHeaders(h *Headers) *Builder {
	h.Range(func(name string, value any) bool {
		b.headers.Set(name, value)
		return true
	})
	return b
}

// CopyHeadersIfAbsent copies the entries of h whose names are not set yet.
func (b *Builder) CopyHeadersIfAbsent(h *Headers) *Builder {
	h.Range(func(name string, value any) bool {
		if !b.headers.Has(name) {
			b.headers.Set(name, value)
		}
		return true
	})
	return b
}

// Build returns the assembled message. The builder may keep being used;
// later changes do not affect messages already built.
func (b *Builder) Build() *Message {
	return &Message{payload: b.payload, headers: b.headers.Clone()}
}
