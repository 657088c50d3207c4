package envelope

import "fmt"

// headers decodes the members of the headers object. The cursor is just
// past its opening token; on return it is on the closing token.
func (s *parseState) headers() (*Headers, error) {
	headers := NewHeaders()
	for {
		tok, err := s.c.Next()
		if err != nil {
			return nil, s.fail(kindOf(err), HeadersField, err)
		}
		if tok.Kind == KindObjectEnd {
			return headers, nil
		}
		if tok.Kind != KindFieldName {
			return nil, s.fail(ErrMalformedEnvelope, HeadersField, fmt.Errorf("expected %s, got %s", KindFieldName, tok.Kind))
		}

		name := tok.Text
		if _, err := s.c.Next(); err != nil {
			return nil, s.fail(kindOf(err), name, err)
		}
		value, err := s.header(name)
		if err != nil {
			return nil, err
		}
		headers.Set(name, value)
	}
}

// header decodes one header value starting at the current token.
func (s *parseState) header(name string) (any, error) {
	var c Cursor = s.c

	// Objects are peeked at for a leading type tag. An untagged object
	// gets its first two tokens replayed to whichever decoder runs next.
	if open := c.Current(); open.Kind == KindObjectStart {
		openDepth := c.Depth()
		tok, err := c.Next()
		if err != nil {
			return nil, s.fail(kindOf(err), name, err)
		}
		if tok.Kind == KindFieldName && tok.Text == TypeField {
			return s.tagged(name)
		}
		c = replay(s.c, name,
			replayed{tok: open, depth: openDepth},
			replayed{tok: tok, depth: s.c.Depth()},
		)
	}

	if descriptor, ok := s.p.headerTypes[name]; ok {
		decode, ok := s.p.resolver.Resolve(descriptor)
		if !ok {
			return nil, s.unknownType(name, descriptor)
		}
		return s.invoke(c, decode, name, descriptor)
	}

	value, err := decodeValue(c, s.p.maxDepth)
	if err != nil {
		return nil, s.fail(kindOf(err), name, err)
	}
	return value, nil
}

// tagged decodes {"@type": "<descriptor>", "value": ...} with the cursor on
// the @type field name. The tag must come first and be followed by exactly
// one value member.
func (s *parseState) tagged(name string) (any, error) {
	tok, err := expect(s.c, KindScalar)
	if err != nil {
		return nil, s.fail(kindOf(err), name, err)
	}
	descriptor, ok := tok.Value.(string)
	if !ok || descriptor == "" {
		return nil, s.fail(ErrMalformedEnvelope, name, fmt.Errorf("%s must be a non-empty string", TypeField))
	}

	decode, ok := s.p.resolver.Resolve(descriptor)
	if !ok {
		return nil, s.unknownType(name, descriptor)
	}

	tok, err = expect(s.c, KindFieldName)
	if err != nil {
		return nil, s.fail(kindOf(err), name, err)
	}
	if tok.Text != ValueField {
		return nil, s.fail(ErrMalformedEnvelope, name, fmt.Errorf("expected %q after %s, got %q", ValueField, TypeField, tok.Text))
	}
	if _, err := s.c.Next(); err != nil {
		return nil, s.fail(kindOf(err), name, err)
	}

	value, err := s.invoke(s.c, decode, name, descriptor)
	if err != nil {
		return nil, err
	}

	if _, err := expect(s.c, KindObjectEnd); err != nil {
		return nil, s.fail(kindOf(err), name, fmt.Errorf("tagged value: %w", err))
	}
	return value, nil
}

func (s *parseState) unknownType(name, descriptor string) *ParseError {
	return &ParseError{
		Kind:       ErrUnknownHeaderType,
		Field:      name,
		Descriptor: descriptor,
		Source:     s.source,
	}
}
