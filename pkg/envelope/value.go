package envelope

import (
	"encoding/json"
	"fmt"
)

// DefaultMaxDepth bounds container nesting during structural decoding.
const DefaultMaxDepth = 512

// ValueKind classifies decoded values. Structural decoding only ever
// produces the kinds up to ValueMap; anything else came from a registry
// decoder.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueBool
	ValueString
	ValueInt
	ValueFloat
	ValueList
	ValueMap
	ValueTyped
)

func (k ValueKind) String() string {
	switch k {
	case ValueNull:
		return "null"
	case ValueBool:
		return "bool"
	case ValueString:
		return "string"
	case ValueInt:
		return "int"
	case ValueFloat:
		return "float"
	case ValueList:
		return "list"
	case ValueMap:
		return "map"
	default:
		return "typed"
	}
}

// KindOfValue reports which branch of the decoded value set v belongs to.
func KindOfValue(v any) ValueKind {
	switch v.(type) {
	case nil:
		return ValueNull
	case bool:
		return ValueBool
	case string:
		return ValueString
	case int64:
		return ValueInt
	case float64:
		return ValueFloat
	case []any:
		return ValueList
	case map[string]any:
		return ValueMap
	default:
		return ValueTyped
	}
}

// DecodeValue decodes the value starting at the cursor's current token by
// shape alone: objects become map[string]any, arrays []any, numbers int64
// or float64. It returns with the cursor on the value's final token.
func DecodeValue(c Cursor) (any, error) {
	return decodeValue(c, DefaultMaxDepth)
}

func decodeValue(c Cursor, maxDepth int) (any, error) {
	tok := c.Current()
	switch tok.Kind {
	case KindScalar:
		return scalarValue(tok.Value)

	case KindArrayStart:
		if c.Depth() > maxDepth {
			return nil, fmt.Errorf("nesting deeper than %d", maxDepth)
		}
		list := make([]any, 0)
		for {
			tok, err := c.Next()
			if err != nil {
				return nil, err
			}
			if tok.Kind == KindArrayEnd {
				return list, nil
			}
			v, err := decodeValue(c, maxDepth)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}

	case KindObjectStart:
		if c.Depth() > maxDepth {
			return nil, fmt.Errorf("nesting deeper than %d", maxDepth)
		}
		return decodeMembers(c, make(map[string]any), maxDepth)

	default:
		return nil, fmt.Errorf("unexpected %s where a value was expected", tok.Kind)
	}
}

// decodeMembers fills m with the remaining members of an object whose
// opening token has already been consumed.
func decodeMembers(c Cursor, m map[string]any, maxDepth int) (map[string]any, error) {
	for {
		tok, err := c.Next()
		if err != nil {
			return nil, err
		}
		if tok.Kind == KindObjectEnd {
			return m, nil
		}
		if tok.Kind != KindFieldName {
			return nil, fmt.Errorf("expected %s, got %s", KindFieldName, tok.Kind)
		}
		if _, err := c.Next(); err != nil {
			return nil, err
		}
		v, err := decodeValue(c, maxDepth)
		if err != nil {
			return nil, err
		}
		m[tok.Text] = v
	}
}

func scalarValue(v any) (any, error) {
	n, ok := v.(json.Number)
	if !ok {
		return v, nil
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", n.String(), err)
	}
	return f, nil
}
