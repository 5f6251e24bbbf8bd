package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"adminpanel/api/internal/cache"
	"adminpanel/api/internal/config"
	"adminpanel/api/internal/database"
	"adminpanel/api/internal/jobs"
	"adminpanel/api/internal/log"
	"adminpanel/api/internal/repository"
	"adminpanel/api/internal/tasks"
)

func newSessionsCmd() *cobra.Command {
	sessions := &cobra.Command{
		Use:   "sessions",
		Short: "Session maintenance",
	}

	var enqueue bool
	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Revoke sessions past their absolute expiry",
		Long: `Revoke every live session whose absolute expiry has passed.

With --enqueue the sweep is handed to the worker through the task stream
instead of running in this process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			return runSweep(ctx, cmd, enqueue)
		},
	}
	sweep.Flags().BoolVar(&enqueue, "enqueue", false, "enqueue the sweep for the worker instead of running it here")

	sessions.AddCommand(sweep)
	return sessions
}

func runSweep(ctx context.Context, cmd *cobra.Command, enqueue bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := log.Component(log.New(cfg.Environment), "adminctl")

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer client.Close()

	if enqueue {
		scheduler := jobs.NewScheduler(client, cfg.Queue.Stream, cfg.Session.SweepSchedule, logger)
		if err := scheduler.EnqueueSweep(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sweep enqueued on %s\n", cfg.Queue.Stream)
		return nil
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()

	store, err := repository.NewSessionStore(cfg.Session, pool, client)
	if err != nil {
		return err
	}
	swept, err := tasks.NewProcessor(store, nil, logger).SweepNow(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d sessions revoked\n", swept)
	return nil
}
