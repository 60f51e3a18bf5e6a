package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "license-admin",
		Short:        "Administration tool for the desktop license server",
		SilenceUsage: true,
	}

	root.AddCommand(
		RunKeygenCommand(),
		RunInspectCommand(),
		RunSweepStaleCommand(),
		RunRevokeCommand(),
		RunSessionCommand(),
		RunInitConfigCommand(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
