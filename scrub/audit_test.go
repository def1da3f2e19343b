package scrub

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAuditorDeliversEvents(t *testing.T) {
	var mu sync.Mutex
	var got []AuditEvent

	a := NewAuditor(func(evt AuditEvent) {
		mu.Lock()
		got = append(got, evt)
		mu.Unlock()
	}, 16, 2)

	for i := 0; i < 5; i++ {
		a.Add(AuditEvent{ExchangeID: "ex", MatchCount: i})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 5 {
		t.Fatalf("delivered %d events, want 5", len(got))
	}
}

func TestAuditorNilSafe(t *testing.T) {
	var a *Auditor
	a.Add(AuditEvent{ExchangeID: "ex"})
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestAuditorShutdownIdempotent(t *testing.T) {
	a := NewAuditor(func(AuditEvent) {}, 4, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("first shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}

func TestAuditFlowsFromExchange(t *testing.T) {
	var mu sync.Mutex
	var got []AuditEvent

	cfg := DefaultConfig()
	cfg.Audit = NewAuditor(func(evt AuditEvent) {
		mu.Lock()
		got = append(got, evt)
		mu.Unlock()
	}, 16, 1)
	f := NewFilter(cfg)

	host := newFakeHost("/api/user",
		map[string]string{"Content-Type": "application/json"},
		[]byte(`{"ssn":"123-45-6789","email":"jane@example.com"}`))
	runExchange(f, host)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cfg.Audit.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	evt := got[0]
	if evt.Path != "/api/user" || evt.MatchCount != 2 {
		t.Fatalf("event = %+v", evt)
	}
	if len(evt.Categories) != 2 {
		t.Fatalf("categories = %v", evt.Categories)
	}
	if evt.ExchangeID == "" {
		t.Fatal("missing exchange id")
	}
}
