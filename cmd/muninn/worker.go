package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	workerOnce     bool
	workerInterval time.Duration
	workerJobType  string
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Drain the work queue, running deferred analyses",
	Long: `Processes pending work_queue jobs batch-by-batch. With --once
(the mode lifecycle hooks spawn), it drains everything currently pending
and exits; otherwise it polls on --interval until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if workerOnce {
			total := 0
			for {
				n, err := a.dispatcher.RunOnce(ctx, workerJobType)
				if err != nil {
					return err
				}
				if n == 0 {
					break
				}
				total += n
			}
			logger.Debug("worker drained queue", zap.Int("jobs", total))
			return nil
		}

		ticker := time.NewTicker(workerInterval)
		defer ticker.Stop()
		for {
			if _, err := a.dispatcher.RunOnce(ctx, workerJobType); err != nil {
				logger.Warn("worker pass failed: " + err.Error())
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	},
}

func init() {
	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "process pending jobs and exit")
	workerCmd.Flags().DurationVar(&workerInterval, "interval", 30*time.Second, "poll interval in continuous mode")
	workerCmd.Flags().StringVar(&workerJobType, "job-type", "", "only process jobs of this type")
}
