// Package render prints messages for people and scripts.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"firestige.xyz/envelope/pkg/envelope"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatText Format = "text"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatYAML, FormatText:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (must be json/yaml/text)", s)
}

// Render writes msg to w. JSON output is the envelope format, with typed
// headers tagged through namer so it can be parsed again.
func Render(w io.Writer, msg *envelope.Message, format Format, namer envelope.TypeNamer) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, msg, namer)
	case FormatYAML:
		return renderYAML(w, msg)
	case FormatText:
		return renderText(w, msg)
	}
	return fmt.Errorf("unknown output format %q", format)
}

func renderJSON(w io.Writer, msg *envelope.Message, namer envelope.TypeNamer) error {
	data, err := envelope.NewEncoder(namer).Marshal(msg)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = w.Write(buf.Bytes())
	return err
}

func renderYAML(w io.Writer, msg *envelope.Message) error {
	headers := &yaml.Node{Kind: yaml.MappingNode}
	var err error
	msg.Headers().Range(func(name string, value any) bool {
		node := &yaml.Node{}
		if err = node.Encode(value); err != nil {
			err = fmt.Errorf("header %q: %w", name, err)
			return false
		}
		headers.Content = append(headers.Content, key(name), node)
		return true
	})
	if err != nil {
		return err
	}

	payload := &yaml.Node{}
	if err := payload.Encode(msg.Payload()); err != nil {
		return fmt.Errorf("payload: %w", err)
	}

	doc := &yaml.Node{
		Kind: yaml.MappingNode,
		Content: []*yaml.Node{
			key(envelope.HeadersField), headers,
			key(envelope.PayloadField), payload,
		},
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func key(name string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name}
}

// renderText writes one "name: value" line per header, a blank line and
// the payload.
func renderText(w io.Writer, msg *envelope.Message) error {
	var b strings.Builder
	msg.Headers().Range(func(name string, value any) bool {
		fmt.Fprintf(&b, "%s: %s\n", name, textValue(value))
		return true
	})
	b.WriteByte('\n')
	b.WriteString(textValue(msg.Payload()))
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

func textValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
