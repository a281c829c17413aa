// Package taskpool runs background tool invocations through a bounded,
// priority-ordered worker pool: execute_tool(in_background=true) submits a
// Task here and returns immediately with a task_id; poll_task_result reads
// it back once a worker has picked it up.
package taskpool

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/semantic-router/router/pkg/types"
)

// Handler executes one task's tool call and returns its envelope.
type Handler func(ctx context.Context, task *types.Task) (*types.ResultEnvelope, error)

// Pool is a fixed-size worker pool draining a priority queue, ordered by
// (-priority, submitted_at) so higher-priority tasks run first and ties
// break FIFO.
type Pool struct {
	handler     Handler
	workers     int
	queueDepth  int
	shutdownCtx context.Context
	cancel      context.CancelFunc

	mu      sync.Mutex
	pq      taskHeap
	tasks   map[string]*types.Task
	notify  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// New builds a Pool. It does not start workers until Start is called.
func New(workers, queueDepth int, handler Handler) *Pool {
	if workers <= 0 {
		workers = types.DefaultTaskPoolWorkers
	}
	if queueDepth <= 0 {
		queueDepth = types.DefaultQueueDepth
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		handler:     handler,
		workers:     workers,
		queueDepth:  queueDepth,
		shutdownCtx: ctx,
		cancel:      cancel,
		tasks:       make(map[string]*types.Task),
		notify:      make(chan struct{}, workers),
	}
}

// Start launches the fixed worker goroutines. Safe to call once.
func (p *Pool) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Submit enqueues a task and returns its task_id. Returns ErrBackpressure
// if the queue is already at capacity.
func (p *Pool) Submit(serverName, toolName string, arguments []byte, priority int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pq) >= p.queueDepth {
		return "", types.NewError(types.ErrBackpressure, "task queue is full")
	}

	task := &types.Task{
		TaskID:      uuid.NewString(),
		ServerName:  serverName,
		ToolName:    toolName,
		Arguments:   arguments,
		Priority:    priority,
		SubmittedAt: time.Now(),
		Status:      types.TaskQueued,
	}
	p.tasks[task.TaskID] = task
	heap.Push(&p.pq, task)

	select {
	case p.notify <- struct{}{}:
	default:
	}
	return task.TaskID, nil
}

// Poll returns the current state of a task, or UNKNOWN_TOOL-shaped error
// if the task_id is unrecognized (tasks are retained after completion for
// later polling, but this pool does not persist across restarts).
func (p *Pool) Poll(taskID string) (*types.Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	task, ok := p.tasks[taskID]
	if !ok {
		return nil, types.NewError(types.ErrUnknownTool, "no task with that id")
	}
	snapshot := *task
	return &snapshot, nil
}

// Cancel marks a queued task cancelled; it is a no-op once a worker has
// already started running it.
func (p *Pool) Cancel(taskID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	task, ok := p.tasks[taskID]
	if !ok {
		return types.NewError(types.ErrUnknownTool, "no task with that id")
	}
	if task.Status != types.TaskQueued {
		return nil
	}
	task.Status = types.TaskCancelled
	p.pq.remove(taskID)
	return nil
}

// Depth returns the number of tasks currently queued (not yet picked up
// by a worker).
func (p *Pool) Depth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pq)
}

// Shutdown stops accepting new work from the queue and waits (bounded by
// ctx) for in-flight workers to drain.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		if p.shutdownCtx.Err() != nil {
			return
		}
		task := p.nextTask()
		if task == nil {
			select {
			case <-p.shutdownCtx.Done():
				return
			case <-p.notify:
				continue
			}
		}

		p.mu.Lock()
		task.Status = types.TaskRunning
		p.mu.Unlock()

		result, err := p.handler(p.shutdownCtx, task)

		p.mu.Lock()
		if err != nil {
			task.Status = types.TaskFailed
			task.Error = err.Error()
		} else {
			task.Status = types.TaskSucceeded
			task.Result = result
		}
		p.mu.Unlock()
	}
}

func (p *Pool) nextTask() *types.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.pq.Len() > 0 {
		task := heap.Pop(&p.pq).(*types.Task)
		if task.Status == types.TaskCancelled {
			continue
		}
		return task
	}
	return nil
}

// taskHeap is a container/heap priority queue ordered by (-priority,
// submitted_at): higher priority first, FIFO within equal priority.
type taskHeap []*types.Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].SubmittedAt.Before(h[j].SubmittedAt)
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x interface{}) {
	*h = append(*h, x.(*types.Task))
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func (h *taskHeap) remove(taskID string) {
	for i, t := range *h {
		if t.TaskID == taskID {
			heap.Remove(h, i)
			return
		}
	}
}
