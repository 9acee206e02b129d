package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/premierreview/reviewbot/internal/models"
	"github.com/premierreview/reviewbot/internal/store"
	"github.com/premierreview/reviewbot/internal/testutil"
)

// trackingProcessor fails the test if two events of one user overlap.
type trackingProcessor struct {
	t      *testing.T
	mu     sync.Mutex
	active map[string]bool
	done   atomic.Int64
	delay  time.Duration
}

func (p *trackingProcessor) Process(ctx context.Context, ev models.InboundEvent) {
	id := ev.UserID()
	p.mu.Lock()
	if p.active[id] {
		p.t.Errorf("concurrent processing for user %s", id)
	}
	p.active[id] = true
	p.mu.Unlock()

	time.Sleep(p.delay)

	p.mu.Lock()
	p.active[id] = false
	p.mu.Unlock()
	p.done.Add(1)
}

func TestDispatcher_SerializesPerUser(t *testing.T) {
	proc := &trackingProcessor{t: t, active: map[string]bool{}, delay: 2 * time.Millisecond}
	d := NewDispatcher(proc, store.NewInMemoryStore(), WithWorkers(6), WithQueueSize(100))
	d.Start(context.Background())

	total := 0
	for i := 0; i < 20; i++ {
		for _, u := range []string{"a", "b", "c"} {
			if err := d.Submit(testutil.TextEvent(u, fmt.Sprintf("%s-%d", u, i), "hi")); err != nil {
				t.Fatalf("Submit: %v", err)
			}
			total++
		}
	}
	d.Stop()
	if got := proc.done.Load(); got != int64(total) {
		t.Errorf("expected Stop to drain %d events, processed %d", total, got)
	}
}

func TestDispatcher_SubmitAfterStop(t *testing.T) {
	d := NewDispatcher(&trackingProcessor{t: t, active: map[string]bool{}}, store.NewInMemoryStore())
	d.Start(context.Background())
	d.Stop()
	d.Stop()
	if err := d.Submit(testutil.TextEvent("u1", "", "hi")); !errors.Is(err, ErrDispatcherStopped) {
		t.Errorf("expected ErrDispatcherStopped, got %v", err)
	}
}

func TestDispatcher_QueueFull(t *testing.T) {
	d := NewDispatcher(&trackingProcessor{t: t, active: map[string]bool{}}, store.NewInMemoryStore(), WithQueueSize(1))
	// Not started, so nothing drains the queue.
	if err := d.Submit(testutil.TextEvent("u1", "", "one")); err != nil {
		t.Fatal(err)
	}
	if err := d.Submit(testutil.TextEvent("u1", "", "two")); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestDispatcher_EndToEndWithPipeline(t *testing.T) {
	f := newFixture(t)
	d := NewDispatcher(f.p, f.st, WithWorkers(4))
	d.Start(context.Background())
	for i := 0; i < 5; i++ {
		if err := d.Submit(testutil.TextEvent("u1", fmt.Sprintf("m%d", i), "hello")); err != nil {
			t.Fatal(err)
		}
	}
	d.Stop()
	if n, _ := f.st.CountChatLogs(context.Background(), "u1"); n != 10 {
		t.Errorf("expected 5 inbound and 5 outbound rows, got %d", n)
	}
}
