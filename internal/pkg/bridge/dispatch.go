package bridge

import (
	"context"
	"sync"
)

type statusMessage struct {
	deviceID string
	topic    string
	payload  []byte
}

type worker struct {
	queue chan statusMessage
	stop  chan struct{}
}

// dispatcher keeps status messages of one device in delivery order while
// letting different devices proceed in parallel. Each device gets its own
// queue and goroutine, created on first use.
type dispatcher struct {
	size   int
	handle func(ctx context.Context, msg statusMessage)

	mu      sync.Mutex
	ctx     context.Context
	workers map[string]*worker
	wg      sync.WaitGroup
}

func newDispatcher(size int, handle func(ctx context.Context, msg statusMessage)) *dispatcher {
	if size <= 0 {
		size = 1
	}
	return &dispatcher{
		size:    size,
		handle:  handle,
		workers: make(map[string]*worker),
	}
}

func (d *dispatcher) start(ctx context.Context) {
	d.mu.Lock()
	d.ctx = ctx
	d.mu.Unlock()
}

// enqueue blocks while the device's queue is full so nothing is reordered or
// dropped. It reports false once the dispatcher is stopped.
func (d *dispatcher) enqueue(msg statusMessage) bool {
	d.mu.Lock()
	ctx := d.ctx
	if ctx == nil || ctx.Err() != nil {
		d.mu.Unlock()
		return false
	}
	w, ok := d.workers[msg.deviceID]
	if !ok {
		w = &worker{
			queue: make(chan statusMessage, d.size),
			stop:  make(chan struct{}),
		}
		d.workers[msg.deviceID] = w
		d.wg.Add(1)
		go d.run(ctx, w)
	}
	d.mu.Unlock()

	select {
	case w.queue <- msg:
		return true
	case <-w.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func (d *dispatcher) run(ctx context.Context, w *worker) {
	defer d.wg.Done()
	for {
		select {
		case msg := <-w.queue:
			d.handle(ctx, msg)
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// retire stops the worker of a device that left the registry.
func (d *dispatcher) retire(deviceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if w, ok := d.workers[deviceID]; ok {
		close(w.stop)
		delete(d.workers, deviceID)
	}
}

// wait blocks until every worker has exited.
func (d *dispatcher) wait() {
	d.wg.Wait()
}
