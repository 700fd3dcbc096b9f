// Package app implements the main application commands.
package app

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gendoc",
	Short: "Gendoc is a web-based document generation service",
	Long: `Gendoc is a web-based document generation service for intranets
that renders documents from administrator-managed templates and manages
users with local and directory-backed authentication.`,
	Args: cobra.OnlyValidArgs,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
