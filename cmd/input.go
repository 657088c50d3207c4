package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"firestige.xyz/envelope/internal/config"
	"firestige.xyz/envelope/pkg/envelope"
)

const stdinName = "-"

// input is one envelope document named by its file path, or "-" for stdin.
type input struct {
	name string
	open func() (io.ReadCloser, error)
}

func (in input) read() ([]byte, error) {
	rc, err := in.open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// inputsFor maps command arguments to inputs. No arguments reads stdin.
func inputsFor(args []string, stdin io.Reader) []input {
	if len(args) == 0 {
		args = []string{stdinName}
	}
	inputs := make([]input, 0, len(args))
	for _, name := range args {
		if name == stdinName {
			inputs = append(inputs, input{name: name, open: func() (io.ReadCloser, error) {
				return io.NopCloser(stdin), nil
			}})
			continue
		}
		path := name
		inputs = append(inputs, input{name: name, open: func() (io.ReadCloser, error) {
			return os.Open(path)
		}})
	}
	return inputs
}

// parserFlags are the parser overrides shared by parse and validate.
type parserFlags struct {
	payloadType string
	headerTypes []string
	headers     []string
}

// apply merges the flags into cfg and returns the extra headers to add to
// every message.
func (f *parserFlags) apply(cfg *config.Config) (*envelope.Headers, error) {
	if f.payloadType != "" {
		cfg.Parser.PayloadType = f.payloadType
	}

	types, err := config.ParseAssignments(f.headerTypes)
	if err != nil {
		return nil, fmt.Errorf("--header-type: %w", err)
	}
	if len(types) > 0 && cfg.Parser.HeaderTypes == nil {
		cfg.Parser.HeaderTypes = make(map[string]string, len(types))
	}
	for name, descriptor := range types {
		cfg.Parser.HeaderTypes[name] = descriptor
	}

	values, err := config.ParseAssignments(f.headers)
	if err != nil {
		return nil, fmt.Errorf("--header: %w", err)
	}
	extra := envelope.NewHeaders()
	for _, kv := range f.headers {
		// Command-line order, last value wins.
		name, _, _ := strings.Cut(kv, "=")
		name = strings.TrimSpace(name)
		if !extra.Has(name) {
			extra.Set(name, values[name])
		}
	}

	// Deduplication belongs to long-running consumers.
	cfg.Consumer.Dedupe.Enabled = false
	return extra, nil
}
