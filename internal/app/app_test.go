package app

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/datasetagg/internal/config"
	"github.com/yungbote/datasetagg/internal/frame"
	"github.com/yungbote/datasetagg/internal/locks"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.DB.DSN = "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	return cfg
}

func TestNewWiresCalculationFlow(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	a.Start()

	svc := a.Services.Calculations
	id, err := svc.CreateDataset(ctx, "orders", frame.MustNew([]string{"region", "amount"},
		frame.Row{"region": "eu", "amount": 10},
		frame.Row{"region": "us", "amount": 4},
	))
	if err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}
	if _, err := svc.AddCalculation(ctx, id, "amount_max", "max(amount)", []string{"region"}); err != nil {
		t.Fatalf("AddCalculation: %v", err)
	}
	if err := svc.AppendObservations(ctx, id, frame.MustNew([]string{"region", "amount"}, frame.Row{"region": "us", "amount": 9})); err != nil {
		t.Fatalf("AppendObservations: %v", err)
	}
	got, err := svc.AggregatedFrame(ctx, id, []string{"region"})
	if err != nil {
		t.Fatalf("AggregatedFrame: %v", err)
	}
	want := frame.MustNew([]string{"region", "amount_max"},
		frame.Row{"region": "eu", "amount_max": 10},
		frame.Row{"region": "us", "amount_max": 9},
	)
	if !frame.Equal(got, want) {
		t.Fatalf("want=%s got=%s", want, got)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.DB.Driver = "oracle"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatalf("unknown driver should fail")
	}
}

func TestWireLockerDefaultsToInProcess(t *testing.T) {
	a := &App{Cfg: testConfig()}
	l, err := a.wireLocker(context.Background())
	if err != nil {
		t.Fatalf("wireLocker: %v", err)
	}
	if _, ok := l.(*locks.KeyedMutex); !ok || a.redis != nil {
		t.Fatalf("want in-process locker, got %T", l)
	}
}
