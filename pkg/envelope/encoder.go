package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// TypeNamer reports the descriptor a value's type is registered under.
type TypeNamer interface {
	DescriptorOf(v any) (string, bool)
}

// EncoderOption configures an Encoder.
type EncoderOption func(*Encoder)

// EncodePayloadOnly makes the encoder write the bare payload without the
// envelope.
func EncodePayloadOnly() EncoderOption {
	return func(e *Encoder) {
		e.payloadOnly = true
	}
}

// Encoder writes Messages in the envelope format read by Parser. Header
// values whose type the namer knows are written type-tagged so they decode
// back to the same type.
type Encoder struct {
	namer       TypeNamer
	payloadOnly bool
}

// NewEncoder creates an encoder. namer may be nil, in which case every
// header is written untagged.
func NewEncoder(namer TypeNamer, opts ...EncoderOption) *Encoder {
	e := &Encoder{namer: namer}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Marshal encodes m.
func (e *Encoder) Marshal(m *Message) ([]byte, error) {
	if e.payloadOnly {
		return json.Marshal(m.payload)
	}

	var buf bytes.Buffer
	buf.WriteString(`{"` + HeadersField + `":{`)

	var err error
	first := true
	m.headers.Range(func(name string, value any) bool {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		if err = writeJSON(&buf, name); err != nil {
			return false
		}
		buf.WriteByte(':')
		if err = e.writeHeader(&buf, name, value); err != nil {
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	buf.WriteString(`},"` + PayloadField + `":`)
	if err := writeJSON(&buf, m.payload); err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (e *Encoder) writeHeader(buf *bytes.Buffer, name string, value any) error {
	if e.namer != nil {
		if descriptor, ok := e.namer.DescriptorOf(value); ok {
			buf.WriteString(`{"` + TypeField + `":`)
			if err := writeJSON(buf, descriptor); err != nil {
				return err
			}
			buf.WriteString(`,"` + ValueField + `":`)
			if err := writeJSON(buf, value); err != nil {
				return fmt.Errorf("header %q: %w", name, err)
			}
			buf.WriteByte('}')
			return nil
		}
	}

	// encoding/json sorts map keys, so a plain map holding the tag key
	// would be read back as a tagged value.
	if m, ok := value.(map[string]any); ok {
		if _, reserved := m[TypeField]; reserved {
			return fmt.Errorf("header %q: map uses reserved key %q", name, TypeField)
		}
	}
	if err := writeJSON(buf, value); err != nil {
		return fmt.Errorf("header %q: %w", name, err)
	}
	return nil
}

func writeJSON(buf *bytes.Buffer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}
