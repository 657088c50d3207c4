package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/envelope/internal/ingest"
	"firestige.xyz/envelope/pkg/envelope"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file...]",
	Short: "Check envelopes without printing them",
	Long: `Parse every file (or stdin) with the configured parser and report
VALID or INVALID for each. Exits with status 1 if any input is invalid.

Examples:
  envelope validate a.json b.json
  envelope validate --header-type trace_id=uuid < message.json`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			exitWithError("failed to load config", err)
		}
		extra, err := validateOpts.apply(cfg)
		if err != nil {
			exitWithError("invalid flags", err)
		}
		in, err := ingest.FromConfig(cfg, typeRegistry(), nil, ingest.WithSource("cli"))
		if err != nil {
			exitWithError("invalid parser config", err)
		}
		if invalid := runValidate(cmd.Context(), in, inputsFor(args, cmd.InOrStdin()), extra, cmd.OutOrStdout()); invalid > 0 {
			os.Exit(1)
		}
	},
}

var validateOpts parserFlags

func init() {
	addParserFlags(validateCmd, &validateOpts)
}

// runValidate reports on every input and returns how many were invalid.
func runValidate(ctx context.Context, in *ingest.Ingestor, inputs []input, extra *envelope.Headers, w io.Writer) int {
	invalid := 0
	for _, src := range inputs {
		data, err := src.read()
		if err == nil {
			var msg *envelope.Message
			msg, err = in.Ingest(ctx, data, extra)
			if err == nil {
				fmt.Fprintf(w, "VALID: %s (%d header(s), %s)\n", src.name, msg.Headers().Len(), payloadKind(msg))
				continue
			}
		}
		invalid++
		fmt.Fprintf(w, "INVALID: %s: %v\n", src.name, err)
	}
	return invalid
}

func payloadKind(msg *envelope.Message) string {
	if msg.Payload() == nil {
		return "no payload"
	}
	return fmt.Sprintf("%s payload", envelope.KindOfValue(msg.Payload()))
}
