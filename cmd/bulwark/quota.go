package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bulwark-ai/bulwark/pkg/config"
	"github.com/bulwark-ai/bulwark/pkg/ratelimit"
	"github.com/bulwark-ai/bulwark/pkg/store"
)

func newQuotaCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show the sliding-window quota from the persisted state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			db, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			limiter := ratelimit.New(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window, ratelimit.WithStore(db))
			status := limiter.Check()

			fmt.Printf("Remaining: %d of %d per %s\n", status.Remaining, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
			if status.Limited {
				fmt.Printf("Limited:   yes, resets %s\n", humanize.Time(status.ResetAt))
			} else {
				fmt.Println("Limited:   no")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "bulwark.yaml", "path to config file")
	return cmd
}
