package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/envelope/pkg/envelope"
)

type order struct {
	ID      string        `json:"id"`
	Qty     int           `json:"qty"`
	Timeout time.Duration `json:"timeout"`
	At      time.Time     `json:"at"`
}

func parseHeader(t *testing.T, r *Registry, value string) (any, error) {
	t.Helper()
	p := envelope.NewParser(envelope.WithResolver(r))
	msg, err := p.Parse(`{"headers":{"h":`+value+`}}`, nil)
	if err != nil {
		return nil, err
	}
	v, ok := msg.Header("h")
	require.True(t, ok)
	return v, nil
}

func TestRegistry_Register(t *testing.T) {
	noop := func(c envelope.Cursor) (any, error) { return nil, nil }

	r := New()
	assert.NoError(t, r.Register("a", noop))

	err := r.Register("a", noop)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	assert.Error(t, r.Register("", noop))
	assert.Error(t, r.Register("b", nil))

	assert.Panics(t, func() { r.MustRegister("a", noop) })
}

func TestRegistry_Resolve(t *testing.T) {
	r := Default()

	decode, ok := r.Resolve(TypeUUID)
	assert.True(t, ok)
	assert.NotNil(t, decode)

	_, ok = r.Resolve("nope")
	assert.False(t, ok)

	_, err := r.Get("nope")
	assert.ErrorIs(t, err, ErrTypeNotFound)
}

func TestRegistry_Descriptors(t *testing.T) {
	assert.Equal(t, []string{
		"any", "bool", "duration", "float64", "int64",
		"list", "map", "string", "time", "uuid",
	}, Default().Descriptors())

	assert.Empty(t, New().Descriptors())
}

func TestRegistry_DescriptorOf(t *testing.T) {
	r := Default()

	tests := []struct {
		name string
		v    any
		want string
		ok   bool
	}{
		{"uuid", uuid.New(), TypeUUID, true},
		{"time", time.Now(), TypeTime, true},
		{"duration", time.Second, TypeDuration, true},
		{"plain string", "x", "", false},
		{"nil", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.DescriptorOf(tt.v)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry_Bind(t *testing.T) {
	r := Default()

	assert.ErrorIs(t, r.Bind("nope", 1), ErrTypeNotFound)
	assert.Error(t, r.Bind(TypeString, nil))
	assert.Error(t, r.Bind(TypeString, uuid.Nil), "uuid is bound already")

	type label string
	require.NoError(t, r.Bind(TypeString, label("")))
	got, ok := r.DescriptorOf(label("x"))
	assert.True(t, ok)
	assert.Equal(t, TypeString, got)
}

func TestBuiltins(t *testing.T) {
	id := uuid.MustParse("6f1c2a8e-8c1b-4a53-9a36-0d0c8b9e2f11")
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  any
	}{
		{"any", `{"@type":"any","value":{"a":[1]}}`, map[string]any{"a": []any{int64(1)}}},
		{"string from string", `{"@type":"string","value":"x"}`, "x"},
		{"string from number", `{"@type":"string","value":12}`, "12"},
		{"bool", `{"@type":"bool","value":"true"}`, true},
		{"int64 from string", `{"@type":"int64","value":"17"}`, int64(17)},
		{"float64", `{"@type":"float64","value":3}`, 3.0},
		{"uuid", `{"@type":"uuid","value":"6f1c2a8e-8c1b-4a53-9a36-0d0c8b9e2f11"}`, id},
		{"time from string", `{"@type":"time","value":"2024-05-01T10:00:00Z"}`, at},
		{"time from millis", `{"@type":"time","value":1714557600000}`, at},
		{"duration from string", `{"@type":"duration","value":"1m30s"}`, 90 * time.Second},
		{"duration from nanos", `{"@type":"duration","value":1500}`, 1500 * time.Nanosecond},
		{"list", `{"@type":"list","value":[1,"a"]}`, []any{int64(1), "a"}},
		{"map", `{"@type":"map","value":{}}`, map[string]any{}},
	}

	r := Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseHeader(t, r, tt.value)
			require.NoError(t, err)
			if want, ok := tt.want.(time.Time); ok {
				assert.True(t, want.Equal(got.(time.Time)), "got %v", got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuiltins_Errors(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"string from object", `{"@type":"string","value":{"a":1}}`},
		{"int64 from word", `{"@type":"int64","value":"many"}`},
		{"bad uuid", `{"@type":"uuid","value":"nope"}`},
		{"time from bool", `{"@type":"time","value":true}`},
		{"bad duration", `{"@type":"duration","value":"soon"}`},
		{"list from string", `{"@type":"list","value":"x"}`},
		{"map from list", `{"@type":"map","value":[]}`},
	}

	r := Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseHeader(t, r, tt.value)
			assert.ErrorIs(t, err, envelope.ErrMalformedEnvelope)

			var pe *envelope.ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, "h", pe.Field)
			assert.NotEmpty(t, pe.Descriptor)
		})
	}
}

func TestRegisterType(t *testing.T) {
	r := Default()
	require.NoError(t, RegisterType[order](r, "order"))

	got, err := parseHeader(t, r,
		`{"@type":"order","value":{"id":"o-1","qty":"3","timeout":"5s","at":"2024-05-01T10:00:00Z"}}`)
	require.NoError(t, err)

	o, ok := got.(order)
	require.True(t, ok, "got %T", got)
	assert.Equal(t, "o-1", o.ID)
	assert.Equal(t, 3, o.Qty)
	assert.Equal(t, 5*time.Second, o.Timeout)
	assert.True(t, o.At.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))

	descriptor, ok := r.DescriptorOf(order{})
	assert.True(t, ok)
	assert.Equal(t, "order", descriptor)
}

func TestRegisterType_Errors(t *testing.T) {
	r := New()
	require.NoError(t, RegisterType[order](r, "order"))

	assert.ErrorIs(t, RegisterType[order](r, "order"), ErrAlreadyRegistered)
	assert.Error(t, RegisterType[order](r, "order.v2"), "type is bound already")
	assert.Error(t, RegisterType[any](r, "anything"))
	assert.Panics(t, func() { MustRegisterType[order](r, "order") })

	_, err := parseHeader(t, r, `{"@type":"order","value":{"qty":"lots"}}`)
	assert.ErrorIs(t, err, envelope.ErrMalformedEnvelope)
}

func TestRegisterType_EncoderRoundTrip(t *testing.T) {
	r := Default()
	MustRegisterType[order](r, "order")

	want := order{ID: "o-2", Qty: 7, Timeout: 250 * time.Millisecond, At: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	id := uuid.New()
	msg := envelope.WithPayload("body").
		SetHeader("order", want).
		SetHeader("id", id).
		SetHeader("ttl", time.Minute).
		Build()

	data, err := envelope.NewEncoder(r).Marshal(msg)
	require.NoError(t, err)

	back, err := envelope.NewParser(envelope.WithResolver(r)).ParseBytes(data, nil)
	require.NoError(t, err)

	gotOrder, _ := back.Header("order")
	gotID, _ := back.Header("id")
	gotTTL, _ := back.Header("ttl")
	assert.Equal(t, want, gotOrder)
	assert.Equal(t, id, gotID)
	assert.Equal(t, time.Minute, gotTTL)
	assert.Equal(t, "body", back.Payload())
}

func TestRegistry_ConcurrentUse(t *testing.T) {
	r := Default()
	p := envelope.NewParser(envelope.WithResolver(r))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = r.Register(fmt.Sprintf("t%d", i), envelope.DecodeValue)
		}(i)
		go func() {
			defer wg.Done()
			_, err := p.Parse(`{"headers":{"n":{"@type":"int64","value":"1"}}}`, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, r.Descriptors(), 26)
}
