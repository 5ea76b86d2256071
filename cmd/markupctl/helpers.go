package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rwfshr/markup/internal/services"
)

// readInput reads a file argument, or stdin when the path is "-" or absent.
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", args[0], err)
	}
	return data, nil
}

// loadForm parses a schema form. JSON is valid YAML, so both go through yaml.v3.
func loadForm(data []byte) (services.SchemaForm, error) {
	var form services.SchemaForm
	if err := yaml.Unmarshal(data, &form); err != nil {
		return services.SchemaForm{}, fmt.Errorf("parse schema form: %w", err)
	}
	return form, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printIssues(w io.Writer, issues []services.ValidationIssue) {
	for _, is := range issues {
		switch {
		case is.Group < 0:
			fmt.Fprintf(w, "schema: %s: %s\n", is.Code, is.Message)
		case is.Option < 0:
			fmt.Fprintf(w, "group %d: %s: %s\n", is.Group+1, is.Code, is.Message)
		default:
			fmt.Fprintf(w, "group %d option %d: %s: %s\n", is.Group+1, is.Option+1, is.Code, is.Message)
		}
	}
}
