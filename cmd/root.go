package cmd

import (
	"github.com/spf13/cobra"
	"github.com/stratastor/mpathd/cmd/config"
	"github.com/stratastor/mpathd/cmd/health"
	"github.com/stratastor/mpathd/cmd/logs"
	"github.com/stratastor/mpathd/cmd/maps"
	"github.com/stratastor/mpathd/cmd/serve"
	"github.com/stratastor/mpathd/cmd/status"
	"github.com/stratastor/mpathd/cmd/version"
	cfg "github.com/stratastor/mpathd/config"
)

func NewRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "mpathd",
		Short: "mpathd: multipath devmap event daemon",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Config is loaded once; later GetConfig calls reuse it
			cfg.LoadConfig(configPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")

	rootCmd.AddCommand(serve.NewServeCmd())
	rootCmd.AddCommand(version.NewVersionCmd())
	rootCmd.AddCommand(health.NewHealthCmd())
	rootCmd.AddCommand(status.NewStatusCmd())
	rootCmd.AddCommand(logs.NewLogsCmd())
	rootCmd.AddCommand(config.NewConfigCmd())
	rootCmd.AddCommand(maps.NewMapsCmd())

	return rootCmd
}
