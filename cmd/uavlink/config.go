package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration.",
	Long: "`config` prints the configuration after defaults, the YAML file " +
		"and the environment are merged. The result is valid input for " +
		"--config.",
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := cfg.Write(os.Stdout); err != nil {
			return fmt.Errorf("write config: %w", err)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
