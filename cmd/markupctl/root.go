// markupctl works with markup schemas and records from the command line.
//
// Usage:
//
//	markupctl decode --type=2 record.json
//	markupctl schema lint form.yaml
//	markupctl schema flatten form.yaml
//	markupctl schema pull --id=7 > form.yaml
//	markupctl schema push --id=7 form.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "markupctl",
		Short:         "Decode records and manage markup schemas",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}
	root.AddCommand(newDecodeCmd())
	root.AddCommand(newSchemaCmd())
	root.Version = version
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
