package bridge

import (
	"context"
	"sync"

	"github.com/anicoll/cloudage-integration/internal/pkg/model"
)

// outbox holds a device's pending notifications in cell-write order. States
// are pushed while the device write lock is held and delivered by a single
// drainer at a time, so observers see writes in the order the cells took
// them even when a notifier issues a command from inside StateChanged.
type outbox struct {
	mu       sync.Mutex
	pending  []model.OutputState
	draining bool
}

func (o *outbox) push(state model.OutputState) {
	o.mu.Lock()
	o.pending = append(o.pending, state)
	o.mu.Unlock()
}

func (s *service) outboxFor(deviceID string) *outbox {
	ob, _ := s.outboxes.LoadOrStore(deviceID, &outbox{})
	return ob.(*outbox)
}

// flush delivers pending notifications. If another call is already draining
// (on this goroutine further up the stack, or another one) it returns and
// leaves the states to that drainer.
func (s *service) flush(ctx context.Context, ob *outbox) {
	ob.mu.Lock()
	if ob.draining {
		ob.mu.Unlock()
		return
	}
	ob.draining = true
	for len(ob.pending) > 0 {
		batch := ob.pending
		ob.pending = nil
		ob.mu.Unlock()
		for _, state := range batch {
			s.notifier.StateChanged(ctx, state)
		}
		ob.mu.Lock()
	}
	ob.draining = false
	ob.mu.Unlock()
}
