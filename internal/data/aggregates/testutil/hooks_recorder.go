package testutil

import (
	"sync"

	agtest "github.com/yungbote/datasetagg/internal/aggregator/testutil"
	"github.com/yungbote/datasetagg/internal/data/aggregates"
)

// HooksRecorder adds the storage signals to the aggregator recorder, so one
// value can be handed to both the Store and the aggregator.
type HooksRecorder struct {
	agtest.HooksRecorder

	mu        sync.Mutex
	Conflicts []string
	Retries   []string
}

var _ aggregates.MetricsHooks = (*HooksRecorder)(nil)

func (h *HooksRecorder) IncConflict(name string) {
	h.mu.Lock()
	h.Conflicts = append(h.Conflicts, name)
	h.mu.Unlock()
}

func (h *HooksRecorder) IncRetry(name string) {
	h.mu.Lock()
	h.Retries = append(h.Retries, name)
	h.mu.Unlock()
}
