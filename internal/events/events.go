// Package events is the in-process pub/sub backbone. Emit is synchronous:
// by the time it returns, every sync subscriber has run. Handlers never see
// each other's panics.
package events

import (
	"context"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/neoalexandria/backend/internal/platform/logger"
)

// Closed catalog of event names.
const (
	ResourceCreated        = "resource.created"
	ResourceUpdated        = "resource.updated"
	ResourceContentChanged = "resource.content_changed"
	ResourceDeleted        = "resource.deleted"
	ResourceReady          = "resource.ready"
	ResourceIngestFailed   = "resource.ingest_failed"

	CitationResolved          = "citation.resolved"
	CitationImportanceUpdated = "citation.importance_updated"

	GraphInvalidated = "graph.invalidated"
	GraphValidated   = "graph.validated"

	TaxonomyNodeUpdated = "taxonomy.node_updated"
)

type Payload map[string]any

type Handler func(ctx context.Context, payload Payload)

type Bus interface {
	// Subscribe registers a sync handler. Higher priority runs first;
	// equal priorities run in registration order.
	Subscribe(name string, priority int, h Handler)
	// SubscribeAsync registers a handler that runs on the bus worker pool
	// instead of the emitter's goroutine.
	SubscribeAsync(name string, h Handler)
	// Emit delivers to all current subscribers of name. FIFO per name.
	Emit(ctx context.Context, name string, payload Payload)
	Close()
}

type subscriber struct {
	priority int
	seq      int
	handler  Handler
	async    bool
}

type memoryBus struct {
	log *logger.Logger

	mu   sync.Mutex
	subs map[string][]subscriber
	seq  int

	// Per-name emit locks keep delivery FIFO per event name without
	// serializing unrelated events.
	emitMu map[string]*sync.Mutex

	tasks chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

func NewBus(log *logger.Logger, asyncWorkers int) Bus {
	if asyncWorkers <= 0 {
		asyncWorkers = 4
	}
	b := &memoryBus{
		log:    log.With("component", "EventBus"),
		subs:   map[string][]subscriber{},
		emitMu: map[string]*sync.Mutex{},
		tasks:  make(chan func(), 256),
	}
	for i := 0; i < asyncWorkers; i++ {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			for task := range b.tasks {
				task()
			}
		}()
	}
	return b
}

func (b *memoryBus) Subscribe(name string, priority int, h Handler) {
	b.subscribe(name, priority, h, false)
}

func (b *memoryBus) SubscribeAsync(name string, h Handler) {
	b.subscribe(name, 0, h, true)
}

func (b *memoryBus) subscribe(name string, priority int, h Handler, async bool) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	list := append(b.subs[name], subscriber{priority: priority, seq: b.seq, handler: h, async: async})
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].priority != list[j].priority {
			return list[i].priority > list[j].priority
		}
		return list[i].seq < list[j].seq
	})
	b.subs[name] = list
}

func (b *memoryBus) Emit(ctx context.Context, name string, payload Payload) {
	b.mu.Lock()
	subs := b.subs[name]
	lock, ok := b.emitMu[name]
	if !ok {
		lock = &sync.Mutex{}
		b.emitMu[name] = lock
	}
	b.mu.Unlock()

	if len(subs) == 0 {
		return
	}

	lock.Lock()
	defer lock.Unlock()

	for _, s := range subs {
		if s.async {
			s := s
			select {
			case b.tasks <- func() { b.invoke(ctx, name, s, payload) }:
			default:
				// Pool saturated; run inline rather than drop the event.
				b.invoke(ctx, name, s, payload)
			}
			continue
		}
		b.invoke(ctx, name, s, payload)
	}
}

func (b *memoryBus) invoke(ctx context.Context, name string, s subscriber, payload Payload) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked",
				"event", name, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	s.handler(ctx, payload)
}

func (b *memoryBus) Close() {
	b.once.Do(func() {
		close(b.tasks)
	})
	b.wg.Wait()
}
