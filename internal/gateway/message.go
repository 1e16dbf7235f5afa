package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/htmlgxn/signal-bot-orx/internal/pkg/logs"
)

type QueueOptions struct {
	LaneBuffer    int
	MaxConcurrent int
	LaneIdleTTL   time.Duration
}

// queuedTask is one unit of classified background work bound to a session.
type queuedTask struct {
	session string
	run     func(ctx context.Context) error
}

type lane struct {
	tasks chan *queuedTask
}

// MessageQueue serializes work per conversation. Each session key gets its
// own lane so replies within one chat stay ordered while different chats
// proceed in parallel, bounded by a global concurrency cap. A lane that sits
// idle past LaneIdleTTL retires itself so long-running deployments do not
// accumulate one goroutine and channel per chat ever seen.
type MessageQueue struct {
	lanes         map[string]*lane
	mu            sync.Mutex
	ctx           context.Context
	laneBuffer    int
	laneIdleTTL   time.Duration
	maxConcurrent chan struct{}
}

func newMessageQueue(opts QueueOptions) *MessageQueue {
	laneBuffer := opts.LaneBuffer
	if laneBuffer <= 0 {
		laneBuffer = 10
	}

	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 100
	}

	idleTTL := opts.LaneIdleTTL
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}

	return &MessageQueue{
		lanes:         make(map[string]*lane),
		laneBuffer:    laneBuffer,
		laneIdleTTL:   idleTTL,
		maxConcurrent: make(chan struct{}, maxConcurrent),
	}
}

func (q *MessageQueue) Init(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ctx = ctx
	return nil
}

// Enqueue hands a task to the session's lane, creating it on first use.
func (q *MessageQueue) Enqueue(ctx context.Context, session string, run func(ctx context.Context) error) error {
	task := &queuedTask{session: session, run: run}

	q.mu.Lock()
	ln, exists := q.lanes[session]
	if !exists {
		ln = &lane{tasks: make(chan *queuedTask, q.laneBuffer)}
		q.lanes[session] = ln
		go q.processLane(session, ln)
	}
	// Fast path while holding the lock: a non-empty lane cannot retire, so
	// the task is safe once buffered.
	select {
	case ln.tasks <- task:
		q.mu.Unlock()
		return nil
	default:
	}
	q.mu.Unlock()

	select {
	case ln.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LaneCount reports the live lanes, for tests and debugging.
func (q *MessageQueue) LaneCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes)
}

func (q *MessageQueue) processLane(session string, ln *lane) {
	idle := time.NewTimer(q.laneIdleTTL)
	defer idle.Stop()

	for {
		select {
		case <-q.ctx.Done():
			q.removeLane(session)
			return
		case <-idle.C:
			// Retire only when nothing is buffered; the map delete and the
			// emptiness check happen under the same lock Enqueue uses.
			if q.retireIfEmpty(session, ln) {
				return
			}
			idle.Reset(q.laneIdleTTL)
		case task := <-ln.tasks:
			if err := q.acquire(q.ctx); err != nil {
				q.removeLane(session)
				return
			}
			err := task.run(q.ctx)
			q.release()
			if err != nil {
				logs.CtxWarn(q.ctx, "[queue] task failed in lane %s: %v", session, err)
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(q.laneIdleTTL)
		}
	}
}

func (q *MessageQueue) retireIfEmpty(session string, ln *lane) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(ln.tasks) > 0 {
		return false
	}
	delete(q.lanes, session)
	return true
}

func (q *MessageQueue) removeLane(session string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.lanes, session)
}

func (q *MessageQueue) acquire(ctx context.Context) error {
	select {
	case q.maxConcurrent <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MessageQueue) release() {
	select {
	case <-q.maxConcurrent:
	default:
	}
}
