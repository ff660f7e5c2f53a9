package main

import (
	"github.com/fatih/color"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/config"
	"github.com/spf13/cobra"
	"os"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "coedit",
		Short: "Realtime collaborative document editing server",
		Long: `coedit serves shared documents over websockets. Each field of a
document is held by one writer at a time and saved after a short pause in
typing.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&config.Path, "config", "c", config.Path, "path to the JSON configuration file")

	rootCmd.AddCommand(
		serveCmd(),
		purgeCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		_, _ = color.New(color.FgRed).Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}
}
