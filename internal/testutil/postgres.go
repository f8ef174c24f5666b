//go:build integration
// +build integration

package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"gorm.io/gorm"

	"github.com/quillpress/quill/pkg/database"
)

// SetupPostgresDB starts a PostgreSQL container and returns a migrated
// database on it. The container is removed when the test ends.
func SetupPostgresDB(t testing.TB) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("quill"),
		tcpostgres.WithUsername("quill"),
		tcpostgres.WithPassword("quill"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	db, err := database.Connect(database.Config{
		Driver:   database.DriverPostgres,
		Host:     host,
		Port:     port.Int(),
		User:     "quill",
		Password: "quill",
		DBName:   "quill",
	}, nil)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
