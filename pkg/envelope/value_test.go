package envelope

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeString(t *testing.T, text string) (any, error) {
	t.Helper()
	c := NewStringCursor(text)
	_, err := c.Next()
	require.NoError(t, err)
	return DecodeValue(c)
}

func TestDecodeValue(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  any
	}{
		{"string", `"aé"`, "aé"},
		{"integer", `42`, int64(42)},
		{"negative", `-7`, int64(-7)},
		{"float", `2.5`, 2.5},
		{"integral float literal", `1.0`, 1.0},
		{"exponent", `1e3`, 1000.0},
		{"beyond int64", `9223372036854775808`, 9223372036854775808.0},
		{"true", `true`, true},
		{"null", `null`, nil},
		{"empty array", `[]`, []any{}},
		{"empty object", `{}`, map[string]any{}},
		{"nested", `{"a":[{"b":null}],"c":{}}`, map[string]any{
			"a": []any{map[string]any{"b": nil}},
			"c": map[string]any{},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeString(t, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeValue_LeavesCursorOnLastToken(t *testing.T) {
	c := NewStringCursor(`[{"a":1},2]`)
	_, _ = c.Next()
	_, _ = c.Next()

	v, err := DecodeValue(c)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1)}, v)
	assert.Equal(t, KindObjectEnd, c.Current().Kind)

	tok, err := c.Next()
	require.NoError(t, err)
	assert.Equal(t, KindScalar, tok.Kind)
}

func TestDecodeValue_NotAValue(t *testing.T) {
	c := NewStringCursor(`{"a":1}`)
	_, _ = c.Next()
	_, _ = c.Next() // field name

	_, err := DecodeValue(c)
	assert.Error(t, err)
}

func TestKindOfValue(t *testing.T) {
	tests := []struct {
		v    any
		want ValueKind
	}{
		{nil, ValueNull},
		{true, ValueBool},
		{"s", ValueString},
		{int64(1), ValueInt},
		{1.5, ValueFloat},
		{[]any{}, ValueList},
		{map[string]any{}, ValueMap},
		{uuid.Nil, ValueTyped},
		{point{}, ValueTyped},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, KindOfValue(tt.v))
		})
	}
}
