// Package dbtest opens migrated in-memory sqlite databases for repository
// tests.
package dbtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Additional-Code/cafe/internal/config"
	"github.com/Additional-Code/cafe/internal/database"
	"github.com/Additional-Code/cafe/internal/migration"
)

// New returns connections to a fresh, fully migrated database that is closed
// when the test ends.
func New(t testing.TB) *database.Connections {
	t.Helper()

	cfg := config.Config{Database: config.Database{Driver: "sqlite"}}
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())

	logger := zaptest.NewLogger(t)
	db, err := database.Open(cfg.Database, dsn, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	conns := &database.Connections{Writer: db, Reader: db}
	migrator, err := migration.New(cfg, conns, logger)
	require.NoError(t, err)
	require.NoError(t, migrator.Up(context.Background()))

	return conns
}
