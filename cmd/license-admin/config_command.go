package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"desktop-license-server/config"
)

// RunInitConfigCommand writes a sample config.json to start from
func RunInitConfigCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write a sample configuration file (default config.json)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "config.json"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}
			if err := config.GenerateSampleConfig(path); err != nil {
				return err
			}
			cmd.Printf("Sample configuration written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}
