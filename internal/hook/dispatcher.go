package hook

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/ayusman/mudra/internal/events"
)

const dispatchQueue = 32

// Dispatcher is an events.Sink that runs subscribed hooks one event at a
// time on a background goroutine. Events are dropped while the queue is full.
type Dispatcher struct {
	manager  *Manager
	executor *Executor

	queue  chan events.Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	runs    int
	failed  int
	dropped int
}

// NewDispatcher starts a dispatcher for the hooks known to manager.
func NewDispatcher(manager *Manager, executor *Executor) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		manager:  manager,
		executor: executor,
		queue:    make(chan events.Event, dispatchQueue),
		ctx:      ctx,
		cancel:   cancel,
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

// Publish implements events.Sink.
func (d *Dispatcher) Publish(e events.Event) {
	if len(d.manager.Subscribed(string(e.Type))) == 0 {
		return
	}

	select {
	case d.queue <- e:
	default:
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
	}
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case e := <-d.queue:
			d.dispatch(e)
		}
	}
}

func (d *Dispatcher) dispatch(e events.Event) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		log.Printf("Hook payload for %s: %v", e.Type, err)
		return
	}

	for _, h := range d.manager.Subscribed(string(e.Type)) {
		req := &Request{
			Event:  string(e.Type),
			Time:   e.Time,
			Data:   data,
			Config: h.Manifest.Config,
		}

		resp, err := d.executor.Execute(d.ctx, h, req)

		d.mu.Lock()
		d.runs++
		if err != nil || !resp.Success {
			d.failed++
		}
		d.mu.Unlock()

		switch {
		case err != nil:
			log.Printf("Hook %s on %s: %v", h.Manifest.Name, e.Type, err)
		case !resp.Success:
			log.Printf("Hook %s on %s reported failure: %s", h.Manifest.Name, e.Type, resp.Error)
		}
	}
}

// Counts returns how many hook runs happened, failed and were dropped.
func (d *Dispatcher) Counts() (runs, failed, dropped int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runs, d.failed, d.dropped
}

// Close stops the dispatcher. Queued events are discarded.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}
