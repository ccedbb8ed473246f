package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tradewell/execution/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit log",
}

var auditTailN int

var auditTailCmd = &cobra.Command{
	Use:   "tail <db-path>",
	Short: "Print the most recent audit events from a SQLite audit database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sink, err := audit.NewSQLiteSink(args[0])
		if err != nil {
			return err
		}
		defer sink.Close()

		records, err := sink.Tail(auditTailN)
		if err != nil {
			return err
		}
		return printJSON(cmd, records)
	},
}

func init() {
	auditTailCmd.Flags().IntVarP(&auditTailN, "count", "n", 20, "number of events to show")
	auditCmd.AddCommand(auditTailCmd)
	rootCmd.AddCommand(auditCmd)
}
