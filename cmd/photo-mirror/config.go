package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/handiism/photo-mirror/internal/config"
	ioutils "github.com/handiism/photo-mirror/internal/io"
)

func newConfigCommand(global *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the default settings",
		Long: `Write a configuration file with the default settings.

Tokens can be left empty in the file and supplied through VK_TOKEN and
YD_TOKEN, or any setting through PHOTOMIRROR_<SECTION>_<KEY>.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.ExpandPath(global.configPath)
			if err != nil {
				return err
			}
			exists, err := ioutils.Exists(afero.NewOsFs(), path)
			if err != nil {
				return err
			}
			if exists && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite it", path)
			}

			if err := config.DefaultSettings().Save(path); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	cmd.AddCommand(initCmd)
	return cmd
}
