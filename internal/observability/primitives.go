package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// Metric primitives rendered in the Prometheus text exposition format.
// Label sets are written in sorted order so scrapes are stable.

// family holds one counter or gauge metric keyed by rendered label set.
type family struct {
	name   string
	help   string
	kind   string
	labels []string

	mu     sync.Mutex
	series map[string]float64
}

func newFamily(name, help, kind string, labels []string) *family {
	return &family{name: name, help: help, kind: kind, labels: labels, series: map[string]float64{}}
}

func (f *family) apply(values []string, fn func(float64) float64) {
	key := renderLabels(f.labels, values)
	f.mu.Lock()
	f.series[key] = fn(f.series[key])
	f.mu.Unlock()
}

func (f *family) get(values []string) float64 {
	key := renderLabels(f.labels, values)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.series[key]
}

func (f *family) write(w io.Writer) error {
	pw := &promText{w: w}
	pw.header(f.name, f.help, f.kind)
	f.mu.Lock()
	for _, key := range sortedKeys(f.series) {
		pw.linef("%s%s %g", f.name, key, f.series[key])
	}
	f.mu.Unlock()
	return pw.err
}

// CounterVec is a monotonically increasing counter partitioned by labels.
type CounterVec struct{ f *family }

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{f: newFamily(name, help, "counter", labels)}
}

func (c *CounterVec) Inc(values ...string) { c.Add(1, values...) }

func (c *CounterVec) Add(v float64, values ...string) {
	if c == nil || v < 0 {
		return
	}
	c.f.apply(values, func(cur float64) float64 { return cur + v })
}

func (c *CounterVec) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	return c.f.write(w)
}

// Counter is an unlabeled CounterVec.
type Counter struct{ vec *CounterVec }

func NewCounter(name, help string) *Counter {
	return &Counter{vec: NewCounterVec(name, help, nil)}
}

func (c *Counter) Inc() {
	if c != nil {
		c.vec.Inc()
	}
}

func (c *Counter) Value() float64 {
	if c == nil {
		return 0
	}
	return c.vec.f.get(nil)
}

func (c *Counter) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	return c.vec.WritePrometheus(w)
}

// GaugeVec holds the last value set per label set.
type GaugeVec struct{ f *family }

func NewGaugeVec(name, help string, labels []string) *GaugeVec {
	return &GaugeVec{f: newFamily(name, help, "gauge", labels)}
}

func (g *GaugeVec) Set(v float64, values ...string) {
	if g == nil {
		return
	}
	g.f.apply(values, func(float64) float64 { return v })
}

func (g *GaugeVec) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	return g.f.write(w)
}

// Gauge is an unlabeled GaugeVec.
type Gauge struct{ vec *GaugeVec }

func NewGauge(name, help string) *Gauge {
	return &Gauge{vec: NewGaugeVec(name, help, nil)}
}

func (g *Gauge) Set(v float64) {
	if g != nil {
		g.vec.Set(v)
	}
}

func (g *Gauge) Value() float64 {
	if g == nil {
		return 0
	}
	return g.vec.f.get(nil)
}

func (g *Gauge) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	return g.vec.WritePrometheus(w)
}

var defaultBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}

// HistogramVec tracks observation distributions per label set. Bounds must be
// ascending; the +Inf bucket is implicit.
type HistogramVec struct {
	name   string
	help   string
	labels []string
	bounds []float64

	mu     sync.Mutex
	series map[string]*histogram
}

type histogram struct {
	hits  []uint64 // per bucket, last slot is +Inf
	sum   float64
	count uint64
}

func NewHistogramVec(name, help string, labels []string, bounds []float64) *HistogramVec {
	if len(bounds) == 0 {
		bounds = defaultBuckets
	}
	return &HistogramVec{name: name, help: help, labels: labels, bounds: bounds, series: map[string]*histogram{}}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	key := renderLabels(h.labels, values)
	slot := sort.SearchFloat64s(h.bounds, v)

	h.mu.Lock()
	defer h.mu.Unlock()
	hist := h.series[key]
	if hist == nil {
		hist = &histogram{hits: make([]uint64, len(h.bounds)+1)}
		h.series[key] = hist
	}
	hist.hits[slot]++
	hist.sum += v
	hist.count++
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if h == nil {
		return nil
	}
	pw := &promText{w: w}
	pw.header(h.name, h.help, "histogram")
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, key := range sortedKeys(h.series) {
		hist := h.series[key]
		var cumulative uint64
		for i, bound := range h.bounds {
			cumulative += hist.hits[i]
			pw.linef("%s_bucket%s %d", h.name, withLe(key, fmt.Sprintf("%g", bound)), cumulative)
		}
		pw.linef("%s_bucket%s %d", h.name, withLe(key, "+Inf"), hist.count)
		pw.linef("%s_sum%s %g", h.name, key, hist.sum)
		pw.linef("%s_count%s %d", h.name, key, hist.count)
	}
	return pw.err
}

// promText latches the first write error so callers check once.
type promText struct {
	w   io.Writer
	err error
}

func (p *promText) linef(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *promText) header(name, help, kind string) {
	p.linef("# HELP %s %s", name, help)
	p.linef("# TYPE %s %s", name, kind)
}

// renderLabels renders values against names as {a="x",b="y"}. Missing values
// render as "unknown".
func renderLabels(names, values []string) string {
	if len(names) == 0 {
		return ""
	}
	pairs := make([]string, len(names))
	for i, name := range names {
		val := "unknown"
		if i < len(values) {
			val = values[i]
		}
		pairs[i] = name + `="` + escapeLabel(val) + `"`
	}
	return "{" + strings.Join(pairs, ",") + "}"
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func escapeLabel(v string) string { return labelEscaper.Replace(v) }

func withLe(labels, le string) string {
	pair := `le="` + escapeLabel(le) + `"`
	if labels == "" {
		return "{" + pair + "}"
	}
	return strings.TrimSuffix(labels, "}") + "," + pair + "}"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isFailureStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "success", "ok":
		return false
	default:
		return true
	}
}
