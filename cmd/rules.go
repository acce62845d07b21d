package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gnolang/dfa/internal"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the available rules",
	Run: func(cmd *cobra.Command, args []string) {
		for _, rule := range internal.Rules() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-14s %s\n", rule.Name, rule.Category, rule.Severity)
		}
	},
}
