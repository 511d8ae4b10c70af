package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/snyk-tools/snyk-tag-updater/internal/config"
	"github.com/snyk-tools/snyk-tag-updater/pkg/client"
	"github.com/snyk-tools/snyk-tag-updater/pkg/logging"
	"github.com/snyk-tools/snyk-tag-updater/pkg/snyk"
)

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "snyktag",
		Short: "Enumerate Snyk projects and apply tags interactively",
		Long: `snyktag walks the Snyk REST API hierarchy (group, organizations,
targets, projects), renders the aggregate, optionally exports it to files,
and interactively applies a tag to selected projects.

The API token is read from ` + config.TokenEnvVar + `.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logging.Setup(logging.Config{
				Level:  logging.LogLevel(cfg.Logging.Level),
				Pretty: cfg.Logging.Format == "console",
				Output: os.Stderr,
			})

			c, err := client.New(cfg.ClientConfig())
			if err != nil {
				return err
			}

			driver := newDriver(cfg, snyk.NewAPI(c), cmd.InOrStdin(), cmd.OutOrStdout())
			return driver.run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file (default: ./snyktag.yaml)")

	return cmd
}
