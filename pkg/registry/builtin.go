package registry

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"firestige.xyz/envelope/pkg/envelope"
)

// Builtin descriptors.
const (
	TypeAny      = "any"
	TypeString   = "string"
	TypeBool     = "bool"
	TypeInt64    = "int64"
	TypeFloat64  = "float64"
	TypeUUID     = "uuid"
	TypeTime     = "time"
	TypeDuration = "duration"
	TypeList     = "list"
	TypeMap      = "map"
)

// Default returns a new registry holding the builtin descriptors.
func Default() *Registry {
	r := New()
	RegisterBuiltins(r)
	return r
}

// RegisterBuiltins adds the builtin descriptors to r. It panics if any of
// them is already taken.
func RegisterBuiltins(r *Registry) {
	r.MustRegister(TypeAny, envelope.DecodeValue)
	r.MustRegister(TypeString, scalar(cast.ToStringE))
	r.MustRegister(TypeBool, scalar(cast.ToBoolE))
	r.MustRegister(TypeInt64, scalar(cast.ToInt64E))
	r.MustRegister(TypeFloat64, scalar(cast.ToFloat64E))
	r.MustRegister(TypeList, shaped(envelope.ValueList))
	r.MustRegister(TypeMap, shaped(envelope.ValueMap))

	mustRegisterBound(r, TypeUUID, decodeUUID, uuid.UUID{})
	mustRegisterBound(r, TypeTime, decodeTime, time.Time{})
	mustRegisterBound(r, TypeDuration, scalar(cast.ToDurationE), time.Duration(0))
}

func mustRegisterBound(r *Registry, descriptor string, decode envelope.DecodeFunc, sample any) {
	r.MustRegister(descriptor, decode)
	if err := r.Bind(descriptor, sample); err != nil {
		panic(err)
	}
}

// scalar adapts a cast conversion into a decoder for scalar tokens.
func scalar[T any](conv func(any) (T, error)) envelope.DecodeFunc {
	return func(c envelope.Cursor) (any, error) {
		if k := c.Current().Kind; k != envelope.KindScalar {
			return nil, fmt.Errorf("expected scalar, got %s", k)
		}
		v, err := envelope.DecodeValue(c)
		if err != nil {
			return nil, err
		}
		out, err := conv(v)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

// shaped decodes structurally and requires the result to be of kind.
func shaped(kind envelope.ValueKind) envelope.DecodeFunc {
	return func(c envelope.Cursor) (any, error) {
		v, err := envelope.DecodeValue(c)
		if err != nil {
			return nil, err
		}
		if got := envelope.KindOfValue(v); got != kind {
			return nil, fmt.Errorf("expected %s, got %s", kind, got)
		}
		return v, nil
	}
}

func decodeUUID(c envelope.Cursor) (any, error) {
	v, err := scalar(cast.ToStringE)(c)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(v.(string))
	if err != nil {
		return nil, fmt.Errorf("invalid uuid: %w", err)
	}
	return id, nil
}

// decodeTime accepts a timestamp string or epoch milliseconds.
func decodeTime(c envelope.Cursor) (any, error) {
	if k := c.Current().Kind; k != envelope.KindScalar {
		return nil, fmt.Errorf("expected scalar, got %s", k)
	}
	v, err := envelope.DecodeValue(c)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case int64:
		return time.UnixMilli(t).UTC(), nil
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed, nil
		}
		return cast.ToTimeE(t)
	default:
		return nil, fmt.Errorf("cannot decode %T as time", v)
	}
}
