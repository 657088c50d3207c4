package envelope

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	X, Y int64
}

type celsius float64

var errBoom = errors.New("boom")

// testTypes is a minimal TypeResolver and TypeNamer.
type testTypes map[string]DecodeFunc

func (tt testTypes) Resolve(descriptor string) (DecodeFunc, bool) {
	decode, ok := tt[descriptor]
	return decode, ok
}

func (tt testTypes) DescriptorOf(v any) (string, bool) {
	switch v.(type) {
	case point:
		return "point", true
	case celsius:
		return "celsius", true
	}
	return "", false
}

func newTestTypes() testTypes {
	return testTypes{
		"upper": func(c Cursor) (any, error) {
			s, ok := c.Current().Value.(string)
			if !ok {
				return nil, fmt.Errorf("expected string")
			}
			return strings.ToUpper(s), nil
		},
		"point": func(c Cursor) (any, error) {
			v, err := DecodeValue(c)
			if err != nil {
				return nil, err
			}
			m, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("expected object")
			}
			x, _ := m["x"].(int64)
			y, _ := m["y"].(int64)
			return point{X: x, Y: y}, nil
		},
		"celsius": func(c Cursor) (any, error) {
			v, err := DecodeValue(c)
			if err != nil {
				return nil, err
			}
			switch n := v.(type) {
			case int64:
				return celsius(n), nil
			case float64:
				return celsius(n), nil
			}
			return nil, fmt.Errorf("expected number")
		},
		// lazy never advances, so it under-consumes anything but a scalar.
		"lazy": func(c Cursor) (any, error) {
			return "lazy", nil
		},
		// greedy reads one token too many.
		"greedy": func(c Cursor) (any, error) {
			v, err := DecodeValue(c)
			if err != nil {
				return nil, err
			}
			_, err = c.Next()
			return v, err
		},
		"fail": func(c Cursor) (any, error) {
			return nil, errBoom
		},
	}
}

func mustParse(t *testing.T, p *Parser, text string) *Message {
	t.Helper()
	msg, err := p.Parse(text, nil)
	require.NoError(t, err)
	require.NotNil(t, msg)
	return msg
}

func TestParse_Scenarios(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantPayload any
		wantHeaders map[string]any
	}{
		{
			name:        "string payload",
			input:       `{"headers":{"id":"42"},"payload":"hello"}`,
			wantPayload: "hello",
			wantHeaders: map[string]any{"id": "42"},
		},
		{
			name:        "array payload",
			input:       `{"headers":{},"payload":[1,2,3]}`,
			wantPayload: []any{int64(1), int64(2), int64(3)},
			wantHeaders: map[string]any{},
		},
		{
			name:        "payload first",
			input:       `{"payload":{"k":[true,null]},"headers":{"n":1.5}}`,
			wantPayload: map[string]any{"k": []any{true, nil}},
			wantHeaders: map[string]any{"n": 1.5},
		},
		{
			name:        "no payload",
			input:       `{"headers":{"a":"b"}}`,
			wantPayload: nil,
			wantHeaders: map[string]any{"a": "b"},
		},
		{
			name:        "composite headers",
			input:       `{"headers":{"list":[1,"x"],"obj":{"a":{"b":false}},"empty":{}},"payload":null}`,
			wantPayload: nil,
			wantHeaders: map[string]any{
				"list":  []any{int64(1), "x"},
				"obj":   map[string]any{"a": map[string]any{"b": false}},
				"empty": map[string]any{},
			},
		},
		{
			name:        "duplicate header name keeps last value",
			input:       `{"headers":{"a":1,"a":2},"payload":0}`,
			wantPayload: int64(0),
			wantHeaders: map[string]any{"a": int64(2)},
		},
		{
			name:        "repeated headers field replaces the first",
			input:       `{"headers":{"a":1},"payload":1,"headers":{"b":2},"payload":2}`,
			wantPayload: int64(2),
			wantHeaders: map[string]any{"b": int64(2)},
		},
		{
			name:        "whitespace",
			input:       "\n{ \"headers\" : { \"id\" : \"42\" } }\n",
			wantPayload: nil,
			wantHeaders: map[string]any{"id": "42"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Parse(tt.input, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPayload, msg.Payload())
			assert.Equal(t, tt.wantHeaders, msg.Headers().Map())
		})
	}
}

func TestParse_HeaderOrder(t *testing.T) {
	msg := mustParse(t, NewParser(), `{"headers":{"z":1,"a":2,"m":3}}`)
	assert.Equal(t, []string{"z", "a", "m"}, msg.Headers().Names())
}

func TestParse_AdditionalHeaders(t *testing.T) {
	extra := NewHeaders()
	extra.Set("a", int64(2))
	extra.Set("b", int64(3))

	msg, err := Parse(`{"headers":{"a":1}}`, extra)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"a": int64(1), "b": int64(3)}, msg.Headers().Map())
	assert.Equal(t, []string{"a", "b"}, msg.Headers().Names())

	// The caller's set is left alone.
	v, _ := extra.Get("a")
	assert.Equal(t, int64(2), v)
}

func TestParse_Idempotent(t *testing.T) {
	p := NewParser(WithResolver(newTestTypes()))
	input := `{"headers":{"id":"42","t":{"@type":"upper","value":"x"}},"payload":{"a":[1,2]}}`

	first := mustParse(t, p, input)
	second := mustParse(t, p, input)

	assert.Equal(t, first.Headers().Map(), second.Headers().Map())
	assert.Equal(t, first.Payload(), second.Payload())
}

func TestParse_Concurrent(t *testing.T) {
	p := NewParser(WithResolver(newTestTypes()))

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			input := fmt.Sprintf(`{"headers":{"n":{"@type":"upper","value":"m%d"}},"payload":%d}`, i, i)
			msg, err := p.Parse(input, nil)
			if err != nil {
				errs <- err
				return
			}
			if v, _ := msg.Header("n"); v != fmt.Sprintf("M%d", i) {
				errs <- fmt.Errorf("message %d: header %v", i, v)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantKind  error
		wantField string
	}{
		{"missing headers", `{"payload":1}`, ErrMissingHeaders, HeadersField},
		{"empty envelope", `{}`, ErrMissingHeaders, HeadersField},
		{"unrecognized field", `{"headers":{},"payload":1,"extra":2}`, ErrUnrecognizedField, "extra"},
		{"not an object", `[1]`, ErrMalformedEnvelope, ""},
		{"empty input", ``, ErrMalformedEnvelope, ""},
		{"headers not an object", `{"headers":[1]}`, ErrMalformedEnvelope, HeadersField},
		{"trailing envelope", `{"headers":{}} {"headers":{}}`, ErrMalformedEnvelope, ""},
		{"truncated", `{"headers":{`, ErrTokenization, HeadersField},
		{"truncated header value", `{"headers":{"a":[1,`, ErrTokenization, "a"},
		{"truncated payload", `{"headers":{},"payload":"abc`, ErrTokenization, PayloadField},
		{"trailing garbage", `{"headers":{}} x`, ErrTokenization, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Parse(tt.input, nil)
			require.Error(t, err)
			assert.Nil(t, msg)
			assert.ErrorIs(t, err, tt.wantKind)

			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.wantField, pe.Field)
			assert.Equal(t, tt.input, pe.Source)
		})
	}
}

func TestParse_TokenizationIsMalformed(t *testing.T) {
	_, err := Parse(`{"headers":{`, nil)

	assert.ErrorIs(t, err, ErrTokenization)
	assert.ErrorIs(t, err, ErrMalformedEnvelope)

	var se *SyntaxError
	assert.ErrorAs(t, err, &se, "lexical cause must be preserved")
}

func TestParseError_Message(t *testing.T) {
	input := `{"headers":{},"extra":1}`
	_, err := Parse(input, nil)
	require.Error(t, err)

	assert.Equal(t,
		`envelope: unrecognized field (field "extra"); expected {"headers":{...},"payload":...} but was: `+input,
		err.Error())
}

func TestParse_TypedHeaders(t *testing.T) {
	p := NewParser(WithResolver(newTestTypes()))

	msg := mustParse(t, p, `{"headers":{`+
		`"name":{"@type":"upper","value":"abc"},`+
		`"at":{"@type":"point","value":{"x":1,"y":2}},`+
		`"temp":{"@type":"celsius","value":21.5},`+
		`"plain":"abc"}}`)

	name, _ := msg.Header("name")
	at, _ := msg.Header("at")
	temp, _ := msg.Header("temp")
	plain, _ := msg.Header("plain")
	assert.Equal(t, "ABC", name)
	assert.Equal(t, point{X: 1, Y: 2}, at)
	assert.Equal(t, celsius(21.5), temp)
	assert.Equal(t, "abc", plain)
}

func TestParse_TagMustComeFirst(t *testing.T) {
	p := NewParser(WithResolver(newTestTypes()))

	msg := mustParse(t, p, `{"headers":{"n":{"value":"abc","@type":"upper"}}}`)
	n, _ := msg.Header("n")
	assert.Equal(t, map[string]any{"value": "abc", "@type": "upper"}, n)
}

func TestParse_TypedHeaderErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind error
		wantType string
	}{
		{"unknown descriptor", `{"headers":{"n":{"@type":"nope","value":1}}}`, ErrUnknownHeaderType, "nope"},
		{"descriptor not a string", `{"headers":{"n":{"@type":1,"value":1}}}`, ErrMalformedEnvelope, ""},
		{"empty descriptor", `{"headers":{"n":{"@type":"","value":1}}}`, ErrMalformedEnvelope, ""},
		{"missing value", `{"headers":{"n":{"@type":"upper"}}}`, ErrMalformedEnvelope, ""},
		{"wrong member", `{"headers":{"n":{"@type":"upper","other":"a"}}}`, ErrMalformedEnvelope, ""},
		{"extra member", `{"headers":{"n":{"@type":"upper","value":"a","x":1}}}`, ErrMalformedEnvelope, ""},
		{"decoder fails", `{"headers":{"n":{"@type":"fail","value":1}}}`, ErrMalformedEnvelope, "fail"},
		{"decoder under-consumes", `{"headers":{"n":{"@type":"lazy","value":{"a":1}}}}`, ErrMalformedEnvelope, "lazy"},
		{"decoder over-consumes", `{"headers":{"n":{"@type":"greedy","value":"a"}}}`, ErrMalformedEnvelope, "greedy"},
	}

	p := NewParser(WithResolver(newTestTypes()))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(tt.input, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantKind)

			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, "n", pe.Field)
			assert.Equal(t, tt.wantType, pe.Descriptor)
		})
	}
}

func TestParse_UnknownTypeWithoutResolver(t *testing.T) {
	_, err := Parse(`{"headers":{"id":{"@type":"uuid","value":"x"}}}`, nil)

	assert.ErrorIs(t, err, ErrUnknownHeaderType)
	assert.Contains(t, err.Error(), `(field "id") (type "uuid")`)
}

func TestParse_DecoderCauseIsKept(t *testing.T) {
	p := NewParser(WithResolver(newTestTypes()))
	_, err := p.Parse(`{"headers":{"n":{"@type":"fail","value":1}}}`, nil)
	assert.ErrorIs(t, err, errBoom)
}

func TestParse_ConfiguredHeaderTypes(t *testing.T) {
	p := NewParser(
		WithResolver(newTestTypes()),
		WithHeaderType("name", "upper"),
		WithHeaderTypes(map[string]string{"at": "point"}),
	)

	msg := mustParse(t, p, `{"headers":{"name":"abc","at":{"x":3,"y":4},"other":"abc"}}`)

	name, _ := msg.Header("name")
	at, _ := msg.Header("at")
	other, _ := msg.Header("other")
	assert.Equal(t, "ABC", name)
	assert.Equal(t, point{X: 3, Y: 4}, at)
	assert.Equal(t, "abc", other)

	assert.Equal(t, map[string]string{"name": "upper", "at": "point"}, p.HeaderTypes())
}

func TestParse_ConfiguredTypeDoesNotOverrideTag(t *testing.T) {
	p := NewParser(WithResolver(newTestTypes()), WithHeaderType("n", "point"))

	msg := mustParse(t, p, `{"headers":{"n":{"@type":"upper","value":"abc"}}}`)
	n, _ := msg.Header("n")
	assert.Equal(t, "ABC", n)
}

func TestParse_ConfiguredTypeUnresolved(t *testing.T) {
	p := NewParser(WithHeaderType("n", "missing"))

	_, err := p.Parse(`{"headers":{"n":"abc"}}`, nil)
	assert.ErrorIs(t, err, ErrUnknownHeaderType)

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "missing", pe.Descriptor)
}

func TestParse_ConfiguredTypeSpanCheck(t *testing.T) {
	p := NewParser(WithResolver(newTestTypes()), WithHeaderType("n", "lazy"))

	_, err := p.Parse(`{"headers":{"n":{"a":1},"m":2}}`, nil)
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestParse_PayloadType(t *testing.T) {
	tests := []struct {
		name        string
		payloadType string
		input       string
		want        any
	}{
		{"resolved", "upper", `{"headers":{},"payload":"abc"}`, "ABC"},
		{"resolved object", "point", `{"headers":{},"payload":{"x":5,"y":6}}`, point{X: 5, Y: 6}},
		{"unknown falls back", "missing", `{"headers":{},"payload":"abc"}`, "abc"},
		{"tags are not interpreted", "", `{"headers":{},"payload":{"@type":"upper","value":"abc"}}`,
			map[string]any{"@type": "upper", "value": "abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser(WithResolver(newTestTypes()), WithPayloadType(tt.payloadType))
			msg := mustParse(t, p, tt.input)
			assert.Equal(t, tt.want, msg.Payload())
		})
	}
}

func TestParse_PayloadDecoderFailure(t *testing.T) {
	p := NewParser(WithResolver(newTestTypes()), WithPayloadType("fail"))

	_, err := p.Parse(`{"headers":{},"payload":1}`, nil)
	assert.ErrorIs(t, err, errBoom)

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, PayloadField, pe.Field)
	assert.Equal(t, "fail", pe.Descriptor)
}

func TestParse_MaxDepth(t *testing.T) {
	p := NewParser(WithMaxDepth(3))

	_, err := p.Parse(`{"headers":{},"payload":[[1]]}`, nil)
	require.NoError(t, err)

	_, err = p.Parse(`{"headers":{},"payload":[[[[1]]]]}`, nil)
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
	assert.Contains(t, err.Error(), "nesting deeper than 3")
}

func TestParseBytes(t *testing.T) {
	p := NewParser()
	msg, err := p.ParseBytes([]byte(`{"headers":{"id":"42"},"payload":"hello"}`), nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Payload())
}

func TestParseCursor_Stream(t *testing.T) {
	p := NewParser()
	c := NewStringCursor(`{"headers":{"n":1}} {"headers":{"n":2}}`)

	for _, want := range []int64{1, 2} {
		msg, err := p.ParseCursor(c, "", nil)
		require.NoError(t, err)
		n, _ := msg.Header("n")
		assert.Equal(t, want, n)
		assert.Equal(t, KindObjectEnd, c.Current().Kind)
	}

	tok, err := c.Next()
	require.NoError(t, err)
	assert.Equal(t, KindEnd, tok.Kind)
}
