package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/envelope/internal/ingest"
	"firestige.xyz/envelope/internal/render"
	"firestige.xyz/envelope/pkg/envelope"
)

var parseCmd = &cobra.Command{
	Use:   "parse [file...]",
	Short: "Parse envelopes and print them",
	Long: `Parse one envelope per file (or from stdin when no file is given, or for "-")
and print the decoded message.

The json output is itself a valid envelope: typed headers are written with
their type tags so the result parses back to the same values.

Examples:
  envelope parse message.json
  envelope parse -o yaml --header-type trace_id=uuid < message.json
  cat message.json | envelope parse -H source=cli -o text`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := render.ParseFormat(parseOutput)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		extra, err := parseOpts.apply(cfg)
		if err != nil {
			return err
		}
		reg := typeRegistry()
		in, err := ingest.FromConfig(cfg, reg, nil, ingest.WithSource("cli"))
		if err != nil {
			return err
		}
		return runParse(cmd.Context(), in, inputsFor(args, cmd.InOrStdin()), extra,
			cmd.OutOrStdout(), format, reg)
	},
}

var (
	parseOutput string
	parseOpts   parserFlags
)

func init() {
	parseCmd.Flags().StringVarP(&parseOutput, "output", "o", string(render.FormatJSON),
		"output format (json, yaml, text)")
	addParserFlags(parseCmd, &parseOpts)
}

func addParserFlags(cmd *cobra.Command, f *parserFlags) {
	cmd.Flags().StringVar(&f.payloadType, "payload-type", "",
		"type descriptor for payloads (overrides parser.payload_type)")
	cmd.Flags().StringArrayVar(&f.headerTypes, "header-type", nil,
		"configured header type as name=descriptor (repeatable)")
	cmd.Flags().StringArrayVarP(&f.headers, "header", "H", nil,
		"header added when the envelope does not set it, as name=value (repeatable)")
}

// runParse parses every input and renders the messages to w. It stops at
// the first input that fails.
func runParse(ctx context.Context, in *ingest.Ingestor, inputs []input, extra *envelope.Headers,
	w io.Writer, format render.Format, namer envelope.TypeNamer) error {
	for i, src := range inputs {
		data, err := src.read()
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", src.name, err)
		}
		msg, err := in.Ingest(ctx, data, extra)
		if err != nil {
			return fmt.Errorf("%s: %w", src.name, err)
		}
		if i > 0 {
			if err := separate(w, format); err != nil {
				return err
			}
		}
		if err := render.Render(w, msg, format, namer); err != nil {
			return fmt.Errorf("%s: %w", src.name, err)
		}
	}
	return nil
}

func separate(w io.Writer, format render.Format) error {
	var sep string
	switch format {
	case render.FormatYAML:
		sep = "---\n"
	case render.FormatText:
		sep = "\n"
	default:
		return nil
	}
	_, err := io.WriteString(w, sep)
	return err
}
