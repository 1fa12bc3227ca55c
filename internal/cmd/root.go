package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "embucketd",
	Short: "Embucket is a Snowflake-compatible analytic SQL engine backed by Apache Iceberg.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
