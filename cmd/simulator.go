package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"atmoview.dev/telemetry/internal/simulator"
	"atmoview.dev/telemetry/pkg/metrics"
)

var simulatorCmd = &cobra.Command{
	Use:   "simulator",
	Short: "Run the device simulator",
	Long: `Run the device simulator that:
- Registers synthetic devices through the hub's HTTP API
- Publishes generated readings to the ingest queue on an interval`,
	RunE: runSimulator,
}

func init() {
	rootCmd.AddCommand(simulatorCmd)

	// Simulator-specific flags
	simulatorCmd.Flags().String("api-url", "http://localhost:8080", "hub HTTP API base URL")
	simulatorCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	simulatorCmd.Flags().String("queue-name", "telemetry", "RabbitMQ queue name for device samples")
	simulatorCmd.Flags().Int("device-count", 3, "number of devices to register")
	simulatorCmd.Flags().Duration("interval", 0, "time between published readings (default 10s)")

	// Bind flags to viper
	_ = viper.BindPFlag("simulator.api_url", simulatorCmd.Flags().Lookup("api-url"))
	_ = viper.BindPFlag("simulator.rabbitmq.url", simulatorCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("simulator.rabbitmq.queue_name", simulatorCmd.Flags().Lookup("queue-name"))
	_ = viper.BindPFlag("simulator.device_count", simulatorCmd.Flags().Lookup("device-count"))
	_ = viper.BindPFlag("simulator.interval", simulatorCmd.Flags().Lookup("interval"))
}

func runSimulator(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting simulator service")

	sim, err := simulator.New(&simulator.Config{
		Logger:      logger,
		APIBaseURL:  viper.GetString("simulator.api_url"),
		RabbitMQURL: viper.GetString("simulator.rabbitmq.url"),
		QueueName:   viper.GetString("simulator.rabbitmq.queue_name"),
		DeviceCount: viper.GetInt("simulator.device_count"),
		Interval:    viper.GetDuration("simulator.interval"),
		Metrics:     metrics.NewSimulatorMetrics("atmoview"),
		MQMetrics:   metrics.NewMQMetrics("atmoview"),
	})
	if err != nil {
		logger.Error("failed to create simulator", "error", err)
		return err
	}

	if err := sim.Run(context.Background()); err != nil {
		logger.Error("simulator error", "error", err)
		return err
	}

	logger.Info("simulator stopped")
	return nil
}
