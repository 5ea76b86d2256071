package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rwfshr/markup/internal/services"
)

func newDecodeCmd() *cobra.Command {
	var flags struct {
		typeID int
		view   bool
	}
	cmd := &cobra.Command{
		Use:   "decode [record.json|-]",
		Short: "Decode a raw record into typed fields",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch := services.BatchType(flags.typeID)
			if batch != services.BatchSingle && batch != services.BatchCompare {
				return fmt.Errorf("unknown batch type %d (want 1 or 2)", flags.typeID)
			}
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			fields := services.DecodeRecord(strings.TrimSpace(string(data)), batch)
			if flags.view {
				return printJSON(cmd.OutOrStdout(), services.BuildView(fields, batch))
			}
			return printJSON(cmd.OutOrStdout(), fields)
		},
	}
	f := cmd.Flags()
	f.IntVar(&flags.typeID, "type", int(services.BatchSingle), "Batch type: 1 single, 2 comparison")
	f.BoolVar(&flags.view, "view", false, "Print the display layout instead of the fields")
	return cmd
}
