package envelope

// payload decodes the payload value starting at the current token. Type
// tags are a headers-only convention and are not interpreted here.
func (s *parseState) payload() (any, error) {
	if s.p.payloadType != "" {
		if decode, ok := s.p.resolver.Resolve(s.p.payloadType); ok {
			return s.invoke(s.c, decode, PayloadField, s.p.payloadType)
		}
	}

	value, err := decodeValue(s.c, s.p.maxDepth)
	if err != nil {
		return nil, s.fail(kindOf(err), PayloadField, err)
	}
	return value, nil
}
