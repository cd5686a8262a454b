package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/bulwark-ai/bulwark/pkg/audit"
	"github.com/bulwark-ai/bulwark/pkg/breaker"
	"github.com/bulwark-ai/bulwark/pkg/cache"
	"github.com/bulwark-ai/bulwark/pkg/config"
	"github.com/bulwark-ai/bulwark/pkg/fallback"
	"github.com/bulwark-ai/bulwark/pkg/faults"
	"github.com/bulwark-ai/bulwark/pkg/orchestrator"
	"github.com/bulwark-ai/bulwark/pkg/queue"
	"github.com/bulwark-ai/bulwark/pkg/ratelimit"
	"github.com/bulwark-ai/bulwark/pkg/store"
)

// newDemoCmd runs the full pipeline against a simulated remote service with
// configurable failure rate and latency, printing where each result came
// from.
func newDemoCmd() *cobra.Command {
	var (
		configPath string
		calls      int
		failRate   float64
		latency    time.Duration
		premium    bool
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Exercise the resilience pipeline against a simulated flaky remote",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg.Preferences.Premium = premium

			var db *store.DB
			cacheOpts := []cache.Option{
				cache.WithMaxSize(cfg.Cache.MaxSize),
				cache.WithTTL(cfg.Cache.TTL),
			}
			limiterOpts := []ratelimit.Option{}
			if cfg.Cache.Persist || cfg.RateLimit.Persist {
				db, err = store.Open(cfg.DBPath)
				if err != nil {
					return err
				}
				defer func() { _ = db.Close() }()
				if cfg.Cache.Persist {
					cacheOpts = append(cacheOpts, cache.WithStore(db))
				}
				if cfg.RateLimit.Persist {
					limiterOpts = append(limiterOpts, ratelimit.WithStore(db))
				}
			}

			q := queue.New(queue.Config{
				MaxConcurrent: cfg.Queue.MaxConcurrent,
				MaxQueueSize:  cfg.Queue.MaxQueueSize,
				MaxRetries:    cfg.Queue.MaxRetries,
				Timeout:       cfg.Queue.Timeout,
				Backoff:       cfg.Queue.Backoff,
			})
			defer q.Close()

			fb := fallback.New()
			fb.Register("chat", func(input any) (json.RawMessage, error) {
				return json.Marshal(map[string]string{
					"reply": "The assistant is temporarily offline; try again shortly.",
				})
			})

			orch := orchestrator.New(cfg,
				cache.New(cacheOpts...),
				ratelimit.New(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window, limiterOpts...),
				breaker.New(cfg.Breaker.Threshold, cfg.Breaker.Cooldown),
				q,
				fb,
			)
			orch.Register("chat", simulatedRemote(failRate, latency))

			if cfg.Audit.Enabled {
				auditor, err := audit.New(cfg.Audit)
				if err != nil {
					return err
				}
				defer func() { _ = auditor.Close() }()
				orch.SetAuditor(auditor)
			}

			ctx := cmd.Context()
			for i := 0; i < calls; i++ {
				prompt := fmt.Sprintf("what is the weather like on day %d", i%3)
				result, err := orch.Invoke(ctx, "chat", prompt)
				if err != nil {
					var limitErr *faults.RateLimitError
					if errors.As(err, &limitErr) {
						fmt.Printf("call %2d: rate limited, resets in %s\n", i+1, limitErr.ResetIn.Round(time.Second))
						continue
					}
					fmt.Printf("call %2d: error: %v\n", i+1, err)
					continue
				}
				fmt.Printf("call %2d: source=%-11s degraded=%-5v latency=%s\n",
					i+1, result.Source, result.Degraded, result.Latency.Round(time.Millisecond))
			}

			state := orch.State()
			fmt.Printf("\nquota remaining: %d, circuit: %s\n", state.RemainingQuota, orch.Circuit().Status)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "bulwark.yaml", "path to config file")
	cmd.Flags().IntVar(&calls, "calls", 10, "number of invocations to run")
	cmd.Flags().Float64Var(&failRate, "fail-rate", 0.3, "probability a simulated remote call fails")
	cmd.Flags().DurationVar(&latency, "latency", 150*time.Millisecond, "simulated remote latency")
	cmd.Flags().BoolVar(&premium, "premium", false, "enqueue at high priority")
	return cmd
}

// simulatedRemote fails with a mix of network and server errors at the
// given rate, otherwise answers after the configured latency.
func simulatedRemote(failRate float64, latency time.Duration) orchestrator.RemoteFunc {
	return func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if rand.Float64() < failRate {
			if rand.Intn(2) == 0 {
				return nil, &faults.NetworkError{Err: errors.New("connection reset by peer")}
			}
			return nil, &faults.RemoteError{StatusCode: 503, Message: "model overloaded"}
		}
		return json.Marshal(map[string]string{
			"reply": fmt.Sprintf("echo: %s", string(input)),
		})
	}
}
