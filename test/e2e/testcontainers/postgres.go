// Package testcontainers provides container helpers shared by the e2e
// suites.
package testcontainers

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresInfo is the connection info of a started Postgres container,
// shaped to feed storage.DBConfig directly.
type PostgresInfo struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// StartPostgres starts a Postgres container and returns it with its
// connection info. The caller terminates the container.
func StartPostgres(ctx context.Context) (testcontainers.Container, *PostgresInfo, error) {
	info := &PostgresInfo{
		User:     "postgres",
		Password: "postgres",
		Database: "atmoview_test",
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("database system is ready to accept connections"),
			),
			Env: map[string]string{
				"POSTGRES_USER":     info.User,
				"POSTGRES_PASSWORD": info.Password,
				"POSTGRES_DB":       info.Database,
			},
		},
		Started: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start Postgres container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to get container port: %w", err)
	}

	info.Host = host
	info.Port = port.Int()
	return container, info, nil
}
