package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/fleet-recurring/internal/scheduler"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start and manage background workers such as the scheduled recurring generation.`,
}

var recurringWorkerCmd = &cobra.Command{
	Use:   "recurring",
	Short: "Start the recurring generation scheduler",
	Long:  `Run the batch generation for every franchise on the configured cron schedule`,
	Run: func(cmd *cobra.Command, args []string) {
		startRecurringWorker()
	},
}

var (
	workerSchedule string
	workerRunNow   bool
	workerTimeout  time.Duration
)

func startRecurringWorker() {
	config, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	a, err := newApp(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	logger := a.logger
	sched := scheduler.NewGenerationScheduler(a.engine, logger, scheduler.Config{
		Spec:        getStringFlag(workerSchedule, config.Recurring.Schedule),
		Location:    config.Recurring.Location(),
		HorizonDays: config.Recurring.HorizonDays,
		Timeout:     workerTimeout,
	})

	if workerRunNow {
		if _, err := sched.RunOnce(context.Background()); err != nil {
			logger.Error("initial recurring generation failed", "error", err)
		}
	}

	if err := sched.Start(); err != nil {
		logger.Error("failed to start recurring scheduler", "error", err)
		return
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("recurring worker is running. Press Ctrl+C to stop.")

	sig := <-sigChan
	logger.Info("received signal, shutting down recurring worker", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdownDone := make(chan struct{})
	go func() {
		sched.Stop()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		logger.Info("recurring worker shutdown complete")
	case <-ctx.Done():
		logger.Warn("shutdown timeout reached, forcing exit")
	}
}

func getStringFlag(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func init() {
	recurringWorkerCmd.Flags().StringVar(&workerSchedule, "schedule", "", "Cron schedule (overrides config)")
	recurringWorkerCmd.Flags().BoolVar(&workerRunNow, "run-now", false, "Run one batch immediately before waiting for the schedule")
	recurringWorkerCmd.Flags().DurationVar(&workerTimeout, "timeout", 10*time.Minute, "Upper bound for a single batch run")

	workerCmd.AddCommand(recurringWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
