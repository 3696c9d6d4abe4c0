package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/datasetagg/internal/platform/logger"
)

type Metrics struct {
	aggOps        *CounterVec
	aggLatency    *HistogramVec
	aggOpsTotal   *Counter
	aggOpsFailed  *Counter
	aggConflicts  *CounterVec
	aggRetries    *CounterVec
	linksCreated  *Counter
	linkedGrouped *CounterVec
	updatePaths   *CounterVec
	dbStats       *GaugeVec
	redisUp       *Gauge
	redisPing     *Gauge

	scrapeInterval time.Duration
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Current() *Metrics {
	return instance
}

// Init builds the process-wide Metrics once. It returns nil when disabled;
// every method on a nil *Metrics is a no-op.
func Init(log *logger.Logger, enabled bool) *Metrics {
	if !enabled {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics()
		if log != nil {
			log.Info("metrics initialized")
		}
	})
	return instance
}

func NewMetrics() *Metrics {
	return &Metrics{
		aggOps: NewCounterVec("dsa_aggregate_operations_total", "Aggregate operations by name/status.", []string{"op", "status"}),
		aggLatency: NewHistogramVec(
			"dsa_aggregate_operation_duration_seconds",
			"Aggregate operation latency in seconds by name/status.",
			[]string{"op", "status"},
			[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		),
		aggOpsTotal:   NewCounter("dsa_aggregate_operations_total_all", "Total aggregate operations (all)."),
		aggOpsFailed:  NewCounter("dsa_aggregate_operations_failed_all", "Failed aggregate operations (all)."),
		aggConflicts:  NewCounterVec("dsa_aggregate_conflicts_total", "Conflicts by operation.", []string{"op"}),
		aggRetries:    NewCounterVec("dsa_aggregate_retryable_total", "Retryable storage failures by operation.", []string{"op"}),
		linksCreated:  NewCounter("dsa_aggregated_datasets_created_total", "Aggregated datasets created and linked."),
		linkedGrouped: NewCounterVec("dsa_aggregated_datasets_created_by_grouping_total", "Aggregated datasets created by grouped or ungrouped signature.", []string{"grouping"}),
		updatePaths:   NewCounterVec("dsa_aggregate_updates_total", "Incremental updates by path (reduce|recompute).", []string{"path"}),
		dbStats:       NewGaugeVec("dsa_db_pool", "database/sql pool stats.", []string{"stat"}),
		redisUp:       NewGauge("dsa_redis_up", "Redis ping status (1=up)."),
		redisPing:     NewGauge("dsa_redis_ping_seconds", "Redis ping latency in seconds."),

		scrapeInterval: 10 * time.Second,
	}
}

// SetScrapeInterval changes how often the collectors sample.
func (m *Metrics) SetScrapeInterval(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.scrapeInterval = d
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	all := []promWriter{
		m.aggOps, m.aggLatency, m.aggOpsTotal, m.aggOpsFailed,
		m.aggConflicts, m.aggRetries, m.linksCreated, m.linkedGrouped,
		m.updatePaths, m.dbStats, m.redisUp, m.redisPing,
	}
	for _, pw := range all {
		if err := pw.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAggregateOperation(op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	op = strings.TrimSpace(op)
	if op == "" {
		op = "unknown"
	}
	status = strings.TrimSpace(status)
	if status == "" {
		status = "success"
	}
	m.aggOps.Inc(op, status)
	m.aggLatency.Observe(dur.Seconds(), op, status)
	m.aggOpsTotal.Inc()
	if isFailureStatus(status) {
		m.aggOpsFailed.Inc()
	}
}

func (m *Metrics) IncAggregateConflict(op string) {
	if m == nil {
		return
	}
	m.aggConflicts.Inc(strings.TrimSpace(op))
}

func (m *Metrics) IncAggregateRetry(op string) {
	if m == nil {
		return
	}
	m.aggRetries.Inc(strings.TrimSpace(op))
}

// IncLinkCreated counts a new aggregated dataset. The signature itself is
// unbounded so only whether it is grouped becomes a label.
func (m *Metrics) IncLinkCreated(signature string) {
	if m == nil {
		return
	}
	m.linksCreated.Inc()
	grouping := "grouped"
	if strings.TrimSpace(signature) == "" {
		grouping = "ungrouped"
	}
	m.linkedGrouped.Inc(grouping)
}

func (m *Metrics) IncUpdatePath(path string) {
	if m == nil {
		return
	}
	path = strings.TrimSpace(path)
	if path == "" {
		path = "unknown"
	}
	m.updatePaths.Inc(path)
}

func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(m.scrapeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sampleDB(log, db)
			}
		}
	}()
}

func (m *Metrics) sampleDB(log *logger.Logger, db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		if log != nil {
			log.Warn("metrics: db stats unavailable", "error", err)
		}
		return
	}
	stats := sqlDB.Stats()
	m.dbStats.Set(float64(stats.OpenConnections), "open_connections")
	m.dbStats.Set(float64(stats.InUse), "in_use")
	m.dbStats.Set(float64(stats.Idle), "idle")
	m.dbStats.Set(float64(stats.WaitCount), "wait_count")
	m.dbStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
	m.dbStats.Set(float64(stats.MaxOpenConnections), "max_open_connections")
}

// StartRedisCollector pings the lock backend. The client is owned by the
// caller and is not closed here.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(m.scrapeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sampleRedis(ctx, log, rdb)
			}
		}
	}()
}

func (m *Metrics) sampleRedis(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	start := time.Now()
	if err := rdb.Ping(ctx).Err(); err != nil {
		m.redisUp.Set(0)
		if log != nil {
			log.Warn("metrics: redis ping failed", "error", err)
		}
		return
	}
	m.redisUp.Set(1)
	m.redisPing.Set(time.Since(start).Seconds())
}
