package store

import (
	"fmt"
	"os"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/greenhouse/core/pkg/types"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectorFunc is injected into Open, following the teacher's
// infrastructure/repositories/database.ConnectorFunc pattern so tests can
// swap in an in-memory sqlite connection without touching call sites.
type ConnectorFunc func() (*gorm.DB, error)

// NewSQLiteConnector opens the on-disk (or in-memory, for tests) sqlite
// database this deployment uses for the Store. Postgres is not wired: the
// spec's scale (single greenhouse deployment, §1 non-goals exclude
// clustering) never exercises anything Postgres would add over sqlite, and
// the teacher's own dev/test path is this same connector.
func NewSQLiteConnector(path string, log zerolog.Logger) ConnectorFunc {
	return func() (*gorm.DB, error) {
		db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
			Logger: logger.New(&log, logger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
			}),
		})
		if err != nil {
			return nil, err
		}

		db.Exec("PRAGMA foreign_keys = ON")

		if path == "file::memory:?cache=shared" {
			sqlDB, _ := db.DB()
			sqlDB.SetMaxOpenConns(1)
		}

		return db, nil
	}
}

// LoadConnectorFromEnv mirrors the teacher's pattern of choosing a
// connector based on environment variables at startup.
func LoadConnectorFromEnv(log zerolog.Logger) ConnectorFunc {
	path := env.GetVariableOrDefault(log, "GREENHOUSE_SQLITE_PATH", "")
	if path == "" {
		if _, err := os.Stat("/opt/greenhouse"); err == nil {
			path = "/opt/greenhouse/core.db"
		} else {
			path = "file::memory:?cache=shared"
		}
	}
	return NewSQLiteConnector(path, log)
}

func Open(connect ConnectorFunc) (*gorm.DB, error) {
	db, err := connect()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStoreUnavailable, err)
	}

	err = db.AutoMigrate(
		&User{},
		&Sensor{},
		&Reading{},
		&Device{},
		&DeviceEvent{},
		&Rule{},
		&RuleExecution{},
		&Notification{},
		&NotificationTemplate{},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: migration failed: %s", ErrStoreUnavailable, err)
	}

	for _, kind := range []types.SensorKind{
		types.SensorTEMHUM, types.SensorWaterQuality, types.SensorTempPressure,
		types.SensorLight, types.SensorPower,
	} {
		table := readingsTableForKind(kind)
		if err := db.Table(table).AutoMigrate(&Reading{}); err != nil {
			return nil, fmt.Errorf("%w: migration failed for %s: %s", ErrStoreUnavailable, table, err)
		}
	}

	return db, nil
}
