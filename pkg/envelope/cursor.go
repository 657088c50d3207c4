package envelope

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Kind is the lexical class of a Token.
type Kind int

const (
	KindInvalid Kind = iota
	KindObjectStart
	KindObjectEnd
	KindArrayStart
	KindArrayEnd
	KindFieldName
	KindScalar
	KindEnd
)

var kindNames = map[Kind]string{
	KindInvalid:     "invalid",
	KindObjectStart: "object start",
	KindObjectEnd:   "object end",
	KindArrayStart:  "array start",
	KindArrayEnd:    "array end",
	KindFieldName:   "field name",
	KindScalar:      "scalar",
	KindEnd:         "end of stream",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Token is one lexical token. Text holds the name of a KindFieldName token;
// Value holds the scalar of a KindScalar token (nil, bool, string or
// json.Number).
type Token struct {
	Kind  Kind
	Text  string
	Value any
}

// Cursor is a forward-only token source.
//
// Next advances and returns the new current token. Once the stream is
// exhausted it keeps returning a KindEnd token. Lexical faults must be
// reported with errors matching ErrTokenization.
type Cursor interface {
	Next() (Token, error)
	Current() Token
	// FieldName is the object key the current token belongs to, or "".
	FieldName() string
	// Depth is the number of containers open after the current token.
	Depth() int
}

// SyntaxError is a lexical fault reported by the default cursor.
type SyntaxError struct {
	Offset int64
	Err    error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("offset %d: %v", e.Offset, e.Err)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// Is reports SyntaxError as a tokenization fault.
func (e *SyntaxError) Is(target error) bool {
	return target == ErrTokenization || target == ErrMalformedEnvelope
}

// NewCursor returns a Cursor over JSON text read from r. Numbers are kept
// as json.Number so integer precision is not lost before decoding.
func NewCursor(r io.Reader) Cursor {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &jsonCursor{dec: dec}
}

// NewStringCursor returns a Cursor over s.
func NewStringCursor(s string) Cursor {
	return NewCursor(strings.NewReader(s))
}

type frame struct {
	object  bool
	wantKey bool
	field   string
}

// jsonCursor adapts encoding/json's token stream, which does not tell keys
// from string values, by tracking which objects expect a key next.
type jsonCursor struct {
	dec    *json.Decoder
	frames []frame
	cur    Token
	end    bool
}

func (c *jsonCursor) Next() (Token, error) {
	if c.end {
		return c.cur, nil
	}

	raw, err := c.dec.Token()
	if err != nil {
		if err == io.EOF && len(c.frames) == 0 {
			c.end = true
			c.cur = Token{Kind: KindEnd}
			return c.cur, nil
		}
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Token{}, &SyntaxError{Offset: c.dec.InputOffset(), Err: err}
	}

	switch v := raw.(type) {
	case json.Delim:
		switch v {
		case '{':
			c.valueStarted()
			c.frames = append(c.frames, frame{object: true, wantKey: true})
			c.cur = Token{Kind: KindObjectStart}
		case '[':
			c.valueStarted()
			c.frames = append(c.frames, frame{})
			c.cur = Token{Kind: KindArrayStart}
		case '}':
			c.frames = c.frames[:len(c.frames)-1]
			c.cur = Token{Kind: KindObjectEnd}
		case ']':
			c.frames = c.frames[:len(c.frames)-1]
			c.cur = Token{Kind: KindArrayEnd}
		}
	case string:
		if top := c.top(); top != nil && top.object && top.wantKey {
			top.wantKey = false
			top.field = v
			c.cur = Token{Kind: KindFieldName, Text: v}
			return c.cur, nil
		}
		c.valueStarted()
		c.cur = Token{Kind: KindScalar, Value: v}
	default:
		c.valueStarted()
		c.cur = Token{Kind: KindScalar, Value: v}
	}
	return c.cur, nil
}

func (c *jsonCursor) Current() Token { return c.cur }

func (c *jsonCursor) Depth() int { return len(c.frames) }

func (c *jsonCursor) FieldName() string {
	i := len(c.frames) - 1
	if c.cur.Kind == KindObjectStart || c.cur.Kind == KindArrayStart {
		i--
	}
	if i < 0 || !c.frames[i].object {
		return ""
	}
	return c.frames[i].field
}

func (c *jsonCursor) top() *frame {
	if len(c.frames) == 0 {
		return nil
	}
	return &c.frames[len(c.frames)-1]
}

// valueStarted flips the enclosing object back to expecting a key.
func (c *jsonCursor) valueStarted() {
	if top := c.top(); top != nil && top.object {
		top.wantKey = true
	}
}

// replayed is a token already pulled from a cursor, with the depth the
// cursor reported for it.
type replayed struct {
	tok   Token
	depth int
}

// replayCursor hands back tokens that were already pulled from the
// underlying cursor before continuing with it.
type replayCursor struct {
	Cursor
	pending   []replayed
	cur       replayed
	field     string
	replaying bool
}

// replay starts at toks[0]; field is the key that token belongs to.
func replay(c Cursor, field string, toks ...replayed) *replayCursor {
	return &replayCursor{
		Cursor:    c,
		pending:   toks[1:],
		cur:       toks[0],
		field:     field,
		replaying: true,
	}
}

func (r *replayCursor) Next() (Token, error) {
	if len(r.pending) > 0 {
		r.cur = r.pending[0]
		r.pending = r.pending[1:]
		if r.cur.tok.Kind == KindFieldName {
			r.field = r.cur.tok.Text
		}
		return r.cur.tok, nil
	}
	tok, err := r.Cursor.Next()
	if err != nil {
		return tok, err
	}
	r.cur = replayed{tok: tok}
	r.replaying = false
	return tok, nil
}

func (r *replayCursor) Current() Token { return r.cur.tok }

func (r *replayCursor) Depth() int {
	if r.replaying {
		return r.cur.depth
	}
	return r.Cursor.Depth()
}

func (r *replayCursor) FieldName() string {
	if r.replaying {
		return r.field
	}
	return r.Cursor.FieldName()
}

// expect advances c and checks the kind of the new token.
func expect(c Cursor, want Kind) (Token, error) {
	tok, err := c.Next()
	if err != nil {
		return tok, err
	}
	if tok.Kind != want {
		return tok, fmt.Errorf("expected %s, got %s", want, tok.Kind)
	}
	return tok, nil
}
