package testcontainers

import (
	"context"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// MySQLConfig holds configuration for the MySQL test container.
type MySQLConfig struct {
	// User is the application user (default: weather)
	User string
	// Password is the user and root password (default: weather)
	Password string
	// Database is the database name (default: weather)
	Database string
	// ContainerName is the name of the container (optional)
	ContainerName string
}

// StartMySQL starts a MySQL container. The returned config carries the applied
// defaults.
func StartMySQL(ctx context.Context, config *MySQLConfig) (*Endpoint, *MySQLConfig, error) {
	cfg := MySQLConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.User == "" {
		cfg.User = "weather"
	}
	if cfg.Password == "" {
		cfg.Password = "weather"
	}
	if cfg.Database == "" {
		cfg.Database = "weather"
	}

	ep, err := start(ctx, testcontainers.ContainerRequest{
		Image:        "mysql:8.4",
		ExposedPorts: []string{"3306/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("3306/tcp"),
			wait.ForLog("port: 3306  MySQL Community Server"),
		),
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": cfg.Password,
			"MYSQL_USER":          cfg.User,
			"MYSQL_PASSWORD":      cfg.Password,
			"MYSQL_DATABASE":      cfg.Database,
		},
		Name: cfg.ContainerName,
	}, "3306")
	if err != nil {
		return nil, nil, err
	}
	return ep, &cfg, nil
}
