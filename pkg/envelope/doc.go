// Package envelope parses and writes message envelopes of the form
//
//	{"headers": {<name>: <value>, ...}, "payload": <value>}
//
// Parsing walks a forward-only token Cursor without building a document
// tree. Header values may carry a type tag,
//
//	{"@type": "uuid", "value": "6f1c..."}
//
// which is resolved through a TypeResolver (see package registry) to a
// DecodeFunc that materializes the concrete value. The payload is decoded
// structurally unless the Parser was given an expected payload type.
//
// Anything other than the envelope shape is rejected with a *ParseError
// quoting the source text.
package envelope
