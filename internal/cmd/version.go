package cmd

import (
	"fmt"

	"github.com/embucket/embucket/internal/config"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the Embucket version",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(cfgFile); err != nil {
			fmt.Println("dev")
			return nil
		}
		fmt.Println(config.Get().EmbucketVersion)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
