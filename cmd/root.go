// Package cmd implements the study-assistant command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "study-assistant",
	Short: "Retrieval-grounded study assistant backend",
	Long: `study-assistant serves a conversational study assistant: students chat
with a text-generation backend grounded in per-course reference material
via semantic retrieval.

Run "study-assistant serve" to start the HTTP API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
