package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/tasknotify/internal/registry"
)

// PushRecord is one call observed by RecordingPusher.
type PushRecord struct {
	UserID string
	Push   registry.Push
}

// RecordingPusher records every push it is asked to deliver.
type RecordingPusher struct {
	mu     sync.Mutex
	pushes []PushRecord
}

// PushToUser records the push.
func (p *RecordingPusher) PushToUser(_ context.Context, userID string, push registry.Push) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, PushRecord{UserID: userID, Push: push})
}

// Pushes returns a copy of the recorded pushes in call order.
func (p *RecordingPusher) Pushes() []PushRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PushRecord, len(p.pushes))
	copy(out, p.pushes)
	return out
}

// Reset forgets all recorded pushes.
func (p *RecordingPusher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = nil
}
