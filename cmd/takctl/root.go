package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "takctl",
	Short: "TAK backend CLI",
	Long: "-------------------------------------------------------------------\n" +
		"                         TAK backend CLI\n" +
		"-------------------------------------------------------------------",
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	cobra.EnableCommandSorting = false

	rootCmd.PersistentFlags().String("url", "", "API base URL (or TAKCTL_URL env var)")
	rootCmd.PersistentFlags().String("token", "", "Bearer token (or TAKCTL_TOKEN env var)")
	rootCmd.PersistentFlags().String("output", "", "Output format: json")

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(instanceCmd)
	rootCmd.AddCommand(sequenceCmd)
	rootCmd.AddCommand(clientCmd)
	rootCmd.AddCommand(tokenCmd)
}
