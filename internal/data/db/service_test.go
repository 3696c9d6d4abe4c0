package db

import (
	"testing"

	"github.com/google/uuid"

	types "github.com/yungbote/datasetagg/internal/domain"
	"github.com/yungbote/datasetagg/internal/platform/logger"
)

func TestNewServiceSQLiteMigrates(t *testing.T) {
	svc, err := NewService(Options{
		Driver: DriverSQLite,
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		Silent: true,
	}, logger.Nop())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })

	if err := AutoMigrateAll(svc.DB()); err != nil {
		t.Fatalf("AutoMigrateAll: %v", err)
	}
	for _, model := range []interface{}{&types.Dataset{}, &types.Observation{}, &types.Calculation{}} {
		if !svc.DB().Migrator().HasTable(model) {
			t.Fatalf("missing table for %T", model)
		}
	}
	if svc.Driver() != DriverSQLite {
		t.Fatalf("Driver: want=%s got=%s", DriverSQLite, svc.Driver())
	}
}

func TestNewServiceRejectsUnknownDriver(t *testing.T) {
	if _, err := NewService(Options{Driver: "oracle", DSN: "x"}, logger.Nop()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
	if _, err := NewService(Options{Driver: DriverSQLite}, logger.Nop()); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}
