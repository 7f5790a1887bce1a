package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/handiism/photo-mirror/internal/config"
	"github.com/handiism/photo-mirror/internal/logging"
	"github.com/handiism/photo-mirror/internal/tui"
)

func main() {
	var configPath string
	root := &cobra.Command{
		Use:           "photo-mirror-tui",
		Short:         "Interactive photo-mirror",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", config.DefaultConfigPath, "Path to config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	settings, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	// The screen belongs to the UI, so logs go to a file next to the history.
	logPath := filepath.Join(filepath.Dir(settings.History.Path), "tui.log")
	log, closer, err := logging.NewFile(settings.Logging.Level, settings.Logging.Format, logPath)
	if err != nil {
		return err
	}
	defer closer.Close()

	return tui.Run(settings, log)
}
