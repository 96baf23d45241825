package cmd

import (
	"context"

	"github.com/frahmantamala/fleet-recurring/internal/audit"
	"github.com/frahmantamala/fleet-recurring/internal/core/events"
	"github.com/frahmantamala/fleet-recurring/pkg/logger"
	"github.com/spf13/cobra"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Inspect the event bus and the audit sink`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a test recurring event",
	Long:  `Publish a recurring event through the bus so the audit output can be checked`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		publishTestEvent(args[0])
	},
}

var (
	eventTemplateID string
	eventOwnerID    string
)

func publishTestEvent(eventType string) {
	logger := logger.LoggerWrapper()

	eventBus := events.NewEventBus(logger)
	audit.Subscribe(eventBus, audit.NewLogSink(logger))

	event := events.NewTemplateEvent(eventType, eventTemplateID, eventOwnerID, "cli")
	logger.Info("publishing test event", "event_type", eventType, "event_id", event.EventID())

	if err := eventBus.PublishSync(context.Background(), event); err != nil {
		logger.Error("failed to publish event", "error", err)
		return
	}
	logger.Info("test event published successfully")
}

func init() {
	publishEventCmd.Flags().StringVar(&eventTemplateID, "template", "test-template", "Template id carried by the event")
	publishEventCmd.Flags().StringVar(&eventOwnerID, "owner", "test-franchise", "Owner id carried by the event")

	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}
