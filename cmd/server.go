package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"atmoview.dev/telemetry/internal/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the telemetry hub server",
	Long: `Run the telemetry hub server that:
- Consumes device samples from RabbitMQ
- Persists samples to per-device PostgreSQL partitions
- Sweeps samples past the retention horizon
- Serves the REST dashboard API`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// Server-specific flags
	serverCmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	serverCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	serverCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	serverCmd.Flags().String("db-password", "", "PostgreSQL password")
	serverCmd.Flags().String("db-name", "atmoview", "PostgreSQL database name")
	serverCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	serverCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	serverCmd.Flags().String("queue-name", "telemetry", "RabbitMQ queue name for device samples")
	serverCmd.Flags().Int("http-port", 8080, "HTTP API port")
	serverCmd.Flags().Duration("retention", 0, "sample retention horizon (default 720h)")
	serverCmd.Flags().Duration("sweep-interval", 0, "retention sweep interval (default 15m)")
	serverCmd.Flags().String("admin-user", "admin", "account granted every new device")

	// Bind flags to viper
	_ = viper.BindPFlag("server.db.host", serverCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("server.db.port", serverCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("server.db.user", serverCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("server.db.password", serverCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("server.db.name", serverCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("server.db.sslmode", serverCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("server.rabbitmq.url", serverCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("server.rabbitmq.queue_name", serverCmd.Flags().Lookup("queue-name"))
	_ = viper.BindPFlag("server.http.port", serverCmd.Flags().Lookup("http-port"))
	_ = viper.BindPFlag("server.retention", serverCmd.Flags().Lookup("retention"))
	_ = viper.BindPFlag("server.sweep_interval", serverCmd.Flags().Lookup("sweep-interval"))
	_ = viper.BindPFlag("server.admin_user", serverCmd.Flags().Lookup("admin-user"))
}

func runServer(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting server service")

	config := &server.ServerConfig{
		Logger:        logger,
		DBHost:        viper.GetString("server.db.host"),
		DBPort:        viper.GetInt("server.db.port"),
		DBUser:        viper.GetString("server.db.user"),
		DBPassword:    viper.GetString("server.db.password"),
		DBName:        viper.GetString("server.db.name"),
		DBSSLMode:     viper.GetString("server.db.sslmode"),
		RabbitMQURL:   viper.GetString("server.rabbitmq.url"),
		QueueName:     viper.GetString("server.rabbitmq.queue_name"),
		HTTPPort:      viper.GetInt("server.http.port"),
		Retention:     viper.GetDuration("server.retention"),
		SweepInterval: viper.GetDuration("server.sweep_interval"),
		AdminUser:     viper.GetString("server.admin_user"),
	}

	srv, err := server.NewServer(config)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		return err
	}

	logger.Info("server configuration",
		"db_host", config.DBHost,
		"db_port", config.DBPort,
		"db_name", config.DBName,
		"rabbitmq_url", config.RabbitMQURL,
		"queue", config.QueueName,
		"http_port", config.HTTPPort,
		"retention", config.Retention,
	)

	if err := srv.Run(context.Background()); err != nil {
		logger.Error("server error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}
