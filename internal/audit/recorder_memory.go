package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryRecorder implements Recorder in memory for dev mode and tests.
type MemoryRecorder struct {
	mu      sync.RWMutex
	actions []Action
	nextID  int64
}

// NewMemoryRecorder constructs an empty MemoryRecorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{nextID: 1}
}

func (r *MemoryRecorder) Record(ctx context.Context, action Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	action.ID = r.nextID
	r.nextID++
	if action.ActionTime.IsZero() {
		action.ActionTime = time.Now().UTC()
	}
	r.actions = append(r.actions, action)
	return nil
}

func (r *MemoryRecorder) List(ctx context.Context, limit int) ([]Action, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Action, 0, limit)
	for i := len(r.actions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.actions[i])
	}
	return out, nil
}

var _ Recorder = (*MemoryRecorder)(nil)
