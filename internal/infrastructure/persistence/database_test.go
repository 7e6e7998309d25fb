package persistence

import (
	"path/filepath"
	"testing"

	"github.com/garage/billing/internal/infrastructure/config"
	"github.com/garage/billing/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestNewDatabase(t *testing.T) {
	t.Run("sqlite file with zap gorm logger", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		cfg := &config.DatabaseConfig{
			Driver:       "sqlite",
			Path:         filepath.Join(t.TempDir(), "billing.db"),
			MaxOpenConns: 4,
			MaxIdleConns: 2,
		}

		db, err := NewDatabase(cfg, logger.NewGormLogger(zap.New(core), gormlogger.Info))
		require.NoError(t, err)
		defer db.Close()

		assert.Equal(t, "sqlite", db.Driver())
		require.NoError(t, db.AutoMigrate())
		assert.True(t, db.DB.Migrator().HasTable("invoices"))
		assert.True(t, db.DB.Migrator().HasTable("billing_settings"))
		assert.NotEmpty(t, recorded.FilterMessage("SQL statement").All())

		stats, err := db.PoolStats()
		require.NoError(t, err)
		assert.Equal(t, 4, stats.MaxOpenConnections)
	})

	t.Run("in-memory sqlite is pinned to one connection", func(t *testing.T) {
		db := newSQLiteDatabase(t)
		stats, err := db.PoolStats()
		require.NoError(t, err)
		assert.Equal(t, 1, stats.MaxOpenConnections)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := NewDatabase(&config.DatabaseConfig{Driver: "oracle"}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported database driver")
	})
}

func TestDatabase_Ping(t *testing.T) {
	db, mock := newMockDatabase(t)
	mock.ExpectPing()

	assert.NoError(t, db.Ping())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_Close(t *testing.T) {
	db, mock := newMockDatabase(t)
	mock.ExpectClose()

	assert.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
