package testutil

import (
	"sync"
	"time"

	"github.com/yungbote/datasetagg/internal/aggregator"
)

// HooksRecorder captures aggregator hook signals in tests.
type HooksRecorder struct {
	mu sync.Mutex

	Operations  []OperationEvent
	LinkCreated []string
	UpdatePaths []string
}

type OperationEvent struct {
	Name     string
	Status   string
	Duration time.Duration
}

var _ aggregator.Hooks = (*HooksRecorder)(nil)

func (h *HooksRecorder) ObserveOperation(name, status string, dur time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Operations = append(h.Operations, OperationEvent{Name: name, Status: status, Duration: dur})
}

func (h *HooksRecorder) IncLinkCreated(signature string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.LinkCreated = append(h.LinkCreated, signature)
}

func (h *HooksRecorder) IncUpdatePath(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.UpdatePaths = append(h.UpdatePaths, path)
}

// Last returns the most recent operation event.
func (h *HooksRecorder) Last() (OperationEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.Operations) == 0 {
		return OperationEvent{}, false
	}
	return h.Operations[len(h.Operations)-1], true
}

// OperationsNamed returns the recorded events for name.
func (h *HooksRecorder) OperationsNamed(name string) []OperationEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []OperationEvent
	for _, op := range h.Operations {
		if op.Name == name {
			out = append(out, op)
		}
	}
	return out
}
