package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wagiedev/daemonlink-go/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	var defaults bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		Long: `Print the configuration after defaults and flag overrides are applied.
With --defaults the built-in defaults are printed without reading any file,
which is a starting point for a new config.toml.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cfg *config.File

			if defaults {
				def := config.Default()
				cfg = &def
			} else {
				loaded, err := ctx.ensureConfig()
				if err != nil {
					return err
				}

				cfg = loaded

				fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", ctx.configPath)
			}

			data, err := cfg.Encode()
			if err != nil {
				return err
			}

			_, err = cmd.OutOrStdout().Write(data)

			return err
		},
	}

	cmd.Flags().BoolVar(&defaults, "defaults", false, "Print built-in defaults instead of the loaded file")

	return cmd
}
