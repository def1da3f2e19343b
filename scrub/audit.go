package scrub

import (
	"context"
	"sync"
	"time"
)

const (
	defaultAuditQueueSize  = 1024
	defaultAuditConcurrent = 5
)

// AuditEvent records what one exchange redacted. Redaction results can
// never reach the client (response headers are final before the body phase
// runs), so this internal channel is the only place the information exists.
type AuditEvent struct {
	ExchangeID string
	Path       string
	MatchCount int
	Categories []string
	BodyBytes  int
	Duration   time.Duration
}

// AuditSink consumes audit events. Sinks may block; delivery happens on a
// bounded worker pool off the request path.
type AuditSink func(AuditEvent)

// Auditor delivers redaction audit events asynchronously. Enqueueing never
// blocks an exchange: when the queue is full the event is dropped.
type Auditor struct {
	sink    AuditSink
	events  chan AuditEvent
	sem     chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	closeCh chan struct{}
}

// NewAuditor starts an auditor feeding the given sink. queueSize and
// maxConcurrent fall back to defaults when non-positive.
func NewAuditor(sink AuditSink, queueSize, maxConcurrent int) *Auditor {
	if queueSize <= 0 {
		queueSize = defaultAuditQueueSize
	}
	if maxConcurrent <= 0 {
		maxConcurrent = defaultAuditConcurrent
	}

	a := &Auditor{
		sink:    sink,
		events:  make(chan AuditEvent, queueSize),
		sem:     make(chan struct{}, maxConcurrent),
		closeCh: make(chan struct{}),
	}

	a.wg.Add(1)
	go a.run()

	return a
}

// Add enqueues an event. Safe for concurrent use and safe on a nil
// auditor, which makes auditing strictly optional for the filter.
func (a *Auditor) Add(evt AuditEvent) {
	if a == nil {
		return
	}
	select {
	case a.events <- evt:
	case <-a.closeCh:
	default:
		// Queue full; auditing is best effort and must not stall exchanges.
	}
}

// Shutdown drains pending events and stops the workers.
func (a *Auditor) Shutdown(ctx context.Context) error {
	if a == nil {
		return nil
	}

	a.once.Do(func() {
		close(a.closeCh)
		close(a.events)
	})

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Auditor) run() {
	defer a.wg.Done()
	for evt := range a.events {
		a.sem <- struct{}{}
		a.wg.Add(1)
		go func(e AuditEvent) {
			defer a.wg.Done()
			defer func() { <-a.sem }()
			a.sink(e)
		}(evt)
	}
}
