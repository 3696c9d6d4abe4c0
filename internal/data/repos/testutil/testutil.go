package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/datasetagg/internal/data/db"
	types "github.com/yungbote/datasetagg/internal/domain"
	"github.com/yungbote/datasetagg/internal/platform/logger"
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	return logger.Nop()
}

// DB opens a fresh migrated database for tb. It uses TEST_POSTGRES_DSN when
// set and a private in-memory SQLite database otherwise.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	opts := db.Options{
		Driver: db.DriverSQLite,
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		Silent: true,
	}
	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		opts = db.Options{Driver: db.DriverPostgres, DSN: dsn, Silent: true}
	}
	svc, err := db.NewService(opts, Logger(tb))
	if err != nil {
		tb.Fatalf("failed to init test db: %v", err)
	}
	tb.Cleanup(func() { _ = svc.Close() })
	if err := db.AutoMigrateAll(svc.DB()); err != nil {
		tb.Fatalf("failed to migrate test db: %v", err)
	}
	return svc.DB()
}

func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}

func SeedDataset(tb testing.TB, ctx context.Context, tx *gorm.DB, title string) *types.Dataset {
	tb.Helper()
	d := &types.Dataset{
		ID:                 uuid.New(),
		Title:              title,
		Columns:            datatypes.JSON([]byte("[]")),
		AggregatedDatasets: datatypes.JSON([]byte("{}")),
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed dataset: %v", err)
	}
	return d
}
