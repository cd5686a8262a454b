package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bulwark-ai/bulwark/pkg/audit"
	"github.com/bulwark-ai/bulwark/pkg/config"
	"github.com/bulwark-ai/bulwark/pkg/models"
)

func newAuditCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the invocation audit trail",
	}

	openLogger := func() (*audit.Logger, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		return audit.New(cfg.Audit)
	}

	var (
		kind       string
		limit      int
		errorsOnly bool
	)
	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "Show recent invocations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLogger()
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()

			recs, err := l.Query(cmd.Context(), models.InvocationQuery{
				Kind:       kind,
				Limit:      limit,
				ErrorsOnly: errorsOnly,
			})
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Println("No invocations recorded.")
				return nil
			}
			for _, rec := range recs {
				line := fmt.Sprintf("%-12s %-11s %4dms  %s",
					rec.Kind, rec.Source, rec.LatencyMs, humanize.Time(rec.CreatedAt))
				if rec.Error != "" {
					line += fmt.Sprintf("  error: %s", rec.Error)
				}
				fmt.Println(line)
			}
			return nil
		},
	}
	recentCmd.Flags().StringVar(&kind, "kind", "", "only show this operation kind")
	recentCmd.Flags().IntVar(&limit, "limit", 20, "maximum records to show")
	recentCmd.Flags().BoolVar(&errorsOnly, "errors", false, "only show failed invocations")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-kind daily invocation counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLogger()
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()

			stats, err := l.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if len(stats) == 0 {
				fmt.Println("No invocations recorded.")
				return nil
			}
			for _, s := range stats {
				fmt.Printf("%s  %-12s %s\n", s.Day, s.Kind, humanize.Comma(s.Count))
			}
			return nil
		},
	}

	var retainDays int
	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete records past the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if retainDays > 0 {
				cfg.Audit.RetentionDays = retainDays
			}
			l, err := audit.New(cfg.Audit)
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()

			deleted, err := l.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %s records older than %s.\n",
				humanize.Comma(deleted),
				humanize.Time(time.Now().AddDate(0, 0, -cfg.Audit.RetentionDays)))
			return nil
		},
	}
	cleanupCmd.Flags().IntVar(&retainDays, "retain-days", 0, "override the configured retention period")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "bulwark.yaml", "path to config file")
	cmd.AddCommand(recentCmd, statsCmd, cleanupCmd)
	return cmd
}
