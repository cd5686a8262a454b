package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bulwark-ai/bulwark/pkg/config"
	"github.com/bulwark-ai/bulwark/pkg/store"
)

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the durable response cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show persisted cache entry count",
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

			count, err := db.CacheCount()
			if err != nil {
				return err
			}
			fmt.Printf("Persisted entries: %s\n", humanize.Comma(count))
			return nil
		},
	}

	var expiredOnly bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear persisted cache entries",
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

			if expiredOnly {
				if err := db.PurgeExpiredCache(time.Now()); err != nil {
					return err
				}
				fmt.Println("Expired cache entries cleared.")
				return nil
			}
			if err := db.ClearCache(); err != nil {
				return err
			}
			fmt.Println("All cache entries cleared.")
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&expiredOnly, "expired", false, "only clear expired entries")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "bulwark.yaml", "path to config file")
	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}
