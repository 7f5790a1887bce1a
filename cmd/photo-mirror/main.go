package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/handiism/photo-mirror/internal/config"
	"github.com/handiism/photo-mirror/internal/logging"
)

// Exit codes.
const (
	exitOK        = 0
	exitError     = 1
	exitCancelled = 130
)

// Mocked for unit testing.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	verbose    bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCommand()
	root.SetArgs(args)

	err := root.Execute()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		return exitCancelled
	default:
		return exitError
	}
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "photo-mirror",
		Short: "Mirror VK photo albums into Yandex Disk or S3",
		Long: `photo-mirror copies the photos of a VK account's albums into a cloud
destination, names them by like count, verifies they arrived and writes a
JSON manifest of what was mirrored.

For interactive mode, use: photo-mirror-tui`,
		SilenceUsage: true,

		// run prints the error, so cobra must not.
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&flags.configPath, "config", config.DefaultConfigPath, "Path to config file")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Show verbose output")

	root.AddCommand(
		newSyncCommand(flags),
		newAlbumsCommand(flags),
		newHistoryCommand(flags),
		newConfigCommand(flags),
	)
	return root
}

// load reads the settings and builds the logger every command uses.
func (f *globalFlags) load() (*config.Settings, *logrus.Logger, error) {
	settings, err := config.Load(f.configPath)
	if err != nil {
		return nil, nil, err
	}

	level := settings.Logging.Level
	if f.verbose {
		level = "debug"
	}
	log, err := logging.New(level, settings.Logging.Format, stderr)
	if err != nil {
		return nil, nil, err
	}
	return settings, log, nil
}
