package registry

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/envelope/pkg/envelope"
)

// RegisterType registers a decoder that builds a T from the tagged value
// and binds T to descriptor for encoding. Fields are matched by their json
// tag names, the same names encoding/json writes, so a T written by
// envelope.Encoder decodes back into an equal T. Scalars are converted
// loosely ("5" fills an int field) and duration and RFC 3339 time strings
// are understood.
func RegisterType[T any](r *Registry, descriptor string) error {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		return fmt.Errorf("registry: %q: type parameter must not be an interface", descriptor)
	}
	return r.register(descriptor, structDecoder[T](descriptor), t)
}

// MustRegisterType is RegisterType that panics on error.
func MustRegisterType[T any](r *Registry, descriptor string) {
	if err := RegisterType[T](r, descriptor); err != nil {
		panic(err)
	}
}

func structDecoder[T any](descriptor string) envelope.DecodeFunc {
	return func(c envelope.Cursor) (any, error) {
		raw, err := envelope.DecodeValue(c)
		if err != nil {
			return nil, err
		}

		var out T
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &out,
			TagName:          "json",
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToTimeHookFunc(time.RFC3339),
			),
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(raw); err != nil {
			return nil, fmt.Errorf("decode %s: %w", descriptor, err)
		}
		return out, nil
	}
}
