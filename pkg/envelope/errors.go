package envelope

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Every failure returned by the parser is a *ParseError
// whose Kind is one of these, so callers can branch with errors.Is.
var (
	ErrMalformedEnvelope = errors.New("envelope: malformed envelope")
	ErrUnrecognizedField = errors.New("envelope: unrecognized field")
	ErrMissingHeaders    = errors.New("envelope: missing headers")
	ErrUnknownHeaderType = errors.New("envelope: unknown header type")

	// ErrTokenization reports a lexical fault of the underlying text
	// (truncated input, bad escape, invalid literal). It matches
	// ErrMalformedEnvelope as well.
	ErrTokenization = fmt.Errorf("%w: tokenization fault", ErrMalformedEnvelope)
)

// expectedFormat is prefixed to the quoted source in diagnostics.
const expectedFormat = `expected {"headers":{...},"payload":...} but was: `

// ParseError describes why a document could not be turned into a Message.
type ParseError struct {
	Kind       error  // one of the Err* sentinels
	Field      string // top-level field or header name involved, if any
	Descriptor string // unresolved or failing type descriptor, if any
	Source     string // verbatim source text, when known
	Err        error  // underlying cause
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Field != "" {
		fmt.Fprintf(&b, " (field %q)", e.Field)
	}
	if e.Descriptor != "" {
		fmt.Fprintf(&b, " (type %q)", e.Descriptor)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Source != "" {
		b.WriteString("; ")
		b.WriteString(expectedFormat)
		b.WriteString(e.Source)
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// kindOf picks the sentinel for a cause produced while walking tokens.
func kindOf(err error) error {
	if errors.Is(err, ErrTokenization) {
		return ErrTokenization
	}
	return ErrMalformedEnvelope
}
