package taskpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/semantic-router/router/pkg/types"
)

func TestSubmit_BackpressureAtQueueDepth(t *testing.T) {
	block := make(chan struct{})
	handler := func(ctx context.Context, task *types.Task) (*types.ResultEnvelope, error) {
		<-block
		return types.InlineText("done"), nil
	}

	p := New(1, 1, handler)
	p.Start()
	defer func() {
		close(block)
		p.Shutdown(context.Background())
	}()

	// First submit is picked up immediately by the one worker, which then
	// blocks on `block`, so the next submit fills the depth-1 queue.
	if _, err := p.Submit("fs", "read_file", nil, 0); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if _, err := p.Submit("fs", "read_file", nil, 0); err != nil {
		t.Fatalf("second Submit: %v", err)
	}

	_, err := p.Submit("fs", "read_file", nil, 0)
	re := types.AsRouterError(err)
	if re == nil || re.Kind != types.ErrBackpressure {
		t.Fatalf("expected BACKPRESSURE, got %v", err)
	}
}

func TestPoll_UnknownTask(t *testing.T) {
	p := New(1, 10, func(ctx context.Context, task *types.Task) (*types.ResultEnvelope, error) {
		return types.InlineText("ok"), nil
	})
	_, err := p.Poll("does-not-exist")
	re := types.AsRouterError(err)
	if re == nil || re.Kind != types.ErrUnknownTool {
		t.Fatalf("expected UNKNOWN_TOOL, got %v", err)
	}
}

func TestPriorityOrdering(t *testing.T) {
	var mu sync.Mutex
	var order []string

	done := make(chan struct{})
	handler := func(ctx context.Context, task *types.Task) (*types.ResultEnvelope, error) {
		mu.Lock()
		order = append(order, task.ToolName)
		n := len(order)
		mu.Unlock()
		if n == 3 {
			close(done)
		}
		return types.InlineText("ok"), nil
	}

	// Single worker, started only after all three submissions land in the
	// queue, so priority ordering among them is observable.
	p := New(1, 10, handler)

	if _, err := p.Submit("fs", "B", nil, 1); err != nil {
		t.Fatalf("Submit B: %v", err)
	}
	if _, err := p.Submit("fs", "C", nil, 1); err != nil {
		t.Fatalf("Submit C: %v", err)
	}
	if _, err := p.Submit("fs", "A", nil, 5); err != nil {
		t.Fatalf("Submit A: %v", err)
	}

	p.Start()
	defer p.Shutdown(context.Background())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not complete in time")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "A" || order[1] != "B" || order[2] != "C" {
		t.Errorf("expected order [A B C] (priority then FIFO), got %v", order)
	}
}
