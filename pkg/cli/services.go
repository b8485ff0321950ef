package cli

import (
	"github.com/spf13/cobra"
)

func NewServicesCommand() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "services",
		Short: "List well-known mail services usable as 'service'",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			rows := serviceRows()
			if outputFormat == "" || Format(outputFormat) == FormatTable {
				WriteServiceTable(rt.Writer(), rows)
				return nil
			}
			return WriteObject(rt.Writer(), Format(outputFormat), rows)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "", "Output format: table, json, yaml")

	return cmd
}
