package health

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/stratastor/mpathd/config"
	"github.com/stratastor/mpathd/pkg/httpclient"
)

func NewHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check mpathd health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.GetConfig() // cfg shoudln't be nil
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			h, err := httpclient.NewAPIClient(cfg.Server.Port).Health(ctx, cfg.Health.Endpoint)
			if err != nil {
				fmt.Println("Health check failed: ", err)
				return nil
			}
			fmt.Printf("Status: %s\nVersion: %s\nActive waiters: %d\n", h.Status, h.Version, h.ActiveWaiters)
			return nil
		},
	}
}
