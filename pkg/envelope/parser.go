package envelope

import (
	"bytes"
	"errors"
	"fmt"
)

// Reserved member names.
const (
	HeadersField = "headers"
	PayloadField = "payload"

	// TypeField and ValueField make up a type-tagged header value:
	// {"@type": "<descriptor>", "value": <encoded value>}.
	TypeField  = "@type"
	ValueField = "value"
)

// DecodeFunc materializes one value of a concrete type. It is entered with
// the cursor on the value's first token and must return with the cursor on
// the value's final token.
type DecodeFunc func(c Cursor) (any, error)

// TypeResolver maps type descriptors to decoders. Resolve is called from
// concurrent parses and must be safe for that.
type TypeResolver interface {
	Resolve(descriptor string) (DecodeFunc, bool)
}

type noResolver struct{}

func (noResolver) Resolve(string) (DecodeFunc, bool) { return nil, false }

// Option configures a Parser.
type Option func(*Parser)

// WithResolver sets the registry consulted for type descriptors.
func WithResolver(r TypeResolver) Option {
	return func(p *Parser) {
		if r != nil {
			p.resolver = r
		}
	}
}

// WithPayloadType sets the expected payload type. Unknown descriptors fall
// back to structural decoding.
func WithPayloadType(descriptor string) Option {
	return func(p *Parser) {
		p.payloadType = descriptor
	}
}

// WithHeaderType decodes untagged values of the named header with the
// given descriptor.
func WithHeaderType(name, descriptor string) Option {
	return func(p *Parser) {
		p.headerTypes[name] = descriptor
	}
}

// WithHeaderTypes is WithHeaderType for several headers.
func WithHeaderTypes(types map[string]string) Option {
	return func(p *Parser) {
		for name, descriptor := range types {
			p.headerTypes[name] = descriptor
		}
	}
}

// WithMaxDepth bounds container nesting inside header and payload values.
func WithMaxDepth(depth int) Option {
	return func(p *Parser) {
		p.maxDepth = depth
	}
}

// Parser turns envelope documents into Messages. It holds configuration
// only and is safe for concurrent use.
type Parser struct {
	resolver    TypeResolver
	payloadType string
	headerTypes map[string]string
	maxDepth    int
}

// NewParser creates a parser.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		resolver:    noResolver{},
		headerTypes: make(map[string]string),
		maxDepth:    DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxDepth <= 0 {
		p.maxDepth = DefaultMaxDepth
	}
	return p
}

// PayloadType returns the configured expected payload descriptor.
func (p *Parser) PayloadType() string {
	return p.payloadType
}

// HeaderTypes returns a copy of the configured per-header descriptors.
func (p *Parser) HeaderTypes() map[string]string {
	out := make(map[string]string, len(p.headerTypes))
	for name, descriptor := range p.headerTypes {
		out[name] = descriptor
	}
	return out
}

var defaultParser = NewParser()

// Parse parses text with a parser that has no type registry.
func Parse(text string, additional *Headers) (*Message, error) {
	return defaultParser.Parse(text, additional)
}

// Parse parses one envelope document. Entries of additional are added to
// the result for names the document does not set.
func (p *Parser) Parse(text string, additional *Headers) (*Message, error) {
	return p.parseDocument(NewStringCursor(text), text, additional)
}

// ParseBytes is Parse for a byte slice.
func (p *Parser) ParseBytes(data []byte, additional *Headers) (*Message, error) {
	return p.parseDocument(NewCursor(bytes.NewReader(data)), string(data), additional)
}

// parseDocument additionally requires the envelope to be the whole text.
func (p *Parser) parseDocument(c Cursor, source string, additional *Headers) (*Message, error) {
	msg, err := p.ParseCursor(c, source, additional)
	if err != nil {
		return nil, err
	}
	s := &parseState{p: p, c: c, source: source}
	tok, err := c.Next()
	if err != nil {
		return nil, s.fail(kindOf(err), "", err)
	}
	if tok.Kind != KindEnd {
		return nil, s.fail(ErrMalformedEnvelope, "", fmt.Errorf("unexpected %s after envelope", tok.Kind))
	}
	return msg, nil
}

// ParseCursor parses the envelope at the start of c and leaves c on its
// closing token. source is quoted in errors and may be empty.
func (p *Parser) ParseCursor(c Cursor, source string, additional *Headers) (*Message, error) {
	s := &parseState{p: p, c: c, source: source}
	return s.envelope(additional)
}

// parseState is the per-call state of one parse.
type parseState struct {
	p      *Parser
	c      Cursor
	source string
}

func (s *parseState) envelope(additional *Headers) (*Message, error) {
	if _, err := expect(s.c, KindObjectStart); err != nil {
		return nil, s.fail(kindOf(err), "", err)
	}

	var (
		headers *Headers
		payload any
	)
	for {
		tok, err := s.c.Next()
		if err != nil {
			return nil, s.fail(kindOf(err), "", err)
		}
		if tok.Kind == KindObjectEnd {
			break
		}
		if tok.Kind != KindFieldName {
			return nil, s.fail(ErrMalformedEnvelope, "", fmt.Errorf("expected %s, got %s", KindFieldName, tok.Kind))
		}

		// A repeated field is decoded again and replaces the first one.
		switch tok.Text {
		case HeadersField:
			if _, err := expect(s.c, KindObjectStart); err != nil {
				return nil, s.fail(kindOf(err), HeadersField, err)
			}
			if headers, err = s.headers(); err != nil {
				return nil, err
			}
		case PayloadField:
			if _, err := s.c.Next(); err != nil {
				return nil, s.fail(kindOf(err), PayloadField, err)
			}
			if payload, err = s.payload(); err != nil {
				return nil, err
			}
		default:
			return nil, s.fail(ErrUnrecognizedField, tok.Text, nil)
		}
	}

	if headers == nil {
		return nil, s.fail(ErrMissingHeaders, HeadersField, nil)
	}

	return WithPayload(payload).
		CopyHeaders(headers).
		CopyHeadersIfAbsent(additional).
		Build(), nil
}

// invoke runs a registry decoder on the value at c's current token and
// checks that it consumed exactly that value.
func (s *parseState) invoke(c Cursor, decode DecodeFunc, field, descriptor string) (any, error) {
	start := c.Current().Kind
	base := c.Depth()
	if start == KindObjectStart || start == KindArrayStart {
		base--
	}

	v, err := decode(c)
	if err != nil {
		pe := s.fail(kindOf(err), field, err)
		if pe.Descriptor == "" {
			pe.Descriptor = descriptor
		}
		return nil, pe
	}

	if c.Depth() != base || !closes(start, c.Current().Kind) {
		pe := s.fail(ErrMalformedEnvelope, field, errors.New("decoder did not consume exactly one value"))
		pe.Descriptor = descriptor
		return nil, pe
	}
	return v, nil
}

func closes(start, end Kind) bool {
	switch start {
	case KindObjectStart:
		return end == KindObjectEnd
	case KindArrayStart:
		return end == KindArrayEnd
	case KindScalar:
		return end == KindScalar
	}
	return false
}

// fail wraps cause as a ParseError. A cause that already is a ParseError
// (a nested parse inside a decoder) is returned as is.
func (s *parseState) fail(kind error, field string, cause error) *ParseError {
	var pe *ParseError
	if errors.As(cause, &pe) {
		return pe
	}
	return &ParseError{
		Kind:   kind,
		Field:  field,
		Source: s.source,
		Err:    cause,
	}
}
