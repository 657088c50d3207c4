package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/envelope/pkg/registry"
)

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List registered type descriptors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTypes(typeRegistry(), cmd.OutOrStdout())
	},
}

func runTypes(reg *registry.Registry, w io.Writer) error {
	for _, descriptor := range reg.Descriptors() {
		if _, err := fmt.Fprintln(w, descriptor); err != nil {
			return err
		}
	}
	return nil
}
