package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ygrebnov/asyncio/scheduler"
	"github.com/ygrebnov/asyncio/task"
)

func newDelayCmd() *cobra.Command {
	var steps int
	var stepMs int64
	var workers uint

	cmd := &cobra.Command{
		Use:   "delay",
		Short: "Chain N delayed callbacks through TaskScheduler and print each step",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelay(steps, stepMs, workers, cmd)
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 5, "number of chained steps")
	cmd.Flags().Int64Var(&stepMs, "step-ms", 200, "delay between steps, in milliseconds")
	cmd.Flags().UintVar(&workers, "workers", 0, "scheduler worker goroutines (0 = GOMAXPROCS)")
	return cmd
}

func runDelay(steps int, stepMs int64, workers uint, cmd *cobra.Command) error {
	if steps <= 0 {
		return fmt.Errorf("--steps must be positive")
	}

	s, err := scheduler.NewOptions(scheduler.WithLogger(newLogger()))
	if err != nil {
		return fmt.Errorf("construct scheduler: %w", err)
	}
	if err := s.Start(workers); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer s.Close()

	start := time.Now()
	done := make(chan struct{})

	var n int
	var cb task.Callback
	cb = func(t *task.Task) {
		n++
		fmt.Fprintf(cmd.OutOrStdout(), "step %d/%d at +%v\n", n, steps, time.Since(start).Round(time.Millisecond))
		if n >= steps {
			close(done)
			return
		}
		t.SetCallback(cb)
		_ = s.PostDelay(t, stepMs)
	}

	t := task.New(cb)
	if err := s.PostDelay(t, stepMs); err != nil {
		return fmt.Errorf("post first step: %w", err)
	}

	<-done
	return nil
}
