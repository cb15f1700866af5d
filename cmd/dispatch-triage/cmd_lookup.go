package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"dispatch_triage/reference"
)

func newLookupCmd(_ *cli) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "lookup <region> <code>",
		Short: "Show a regional call-type code",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			ds, err := reference.Default()
			if err != nil {
				return err
			}
			entry, err := ds.Lookup(args[0], args[1])
			if err != nil {
				return fmt.Errorf("%w (known regions: %v)", err, ds.Regions())
			}
			w := cmd.OutOrStdout()
			if format == "json" {
				return json.NewEncoder(w).Encode(entry)
			}
			fmt.Fprintf(w, "%s %s\n", entry.Code, entry.Description)
			fmt.Fprintf(w, "Category: %s\nPriority: %s\nSeverity: %d\n", entry.Category, entry.Priority, entry.Severity)
			if entry.Letter != "" {
				fmt.Fprintf(w, "Letter: %s\n", entry.Letter)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or json")
	return cmd
}
