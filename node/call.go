package node

import (
	"sync"

	"github.com/tangrc99/Gossip/pkg/rpc"
)

// RetryPolicy selects the peer a failed call is redriven against.
type RetryPolicy int

const (
	// RetryNone discards the call if it fails.
	RetryNone RetryPolicy = iota
	// RetryAnyLive redrives the call against any live peer. Used for
	// broadcasts where the destination doesn't matter.
	RetryAnyLive
	// RetryOriginal redrives the call against the peer it was first sent
	// to.
	RetryOriginal
)

func (p RetryPolicy) String() string {
	switch p {
	case RetryNone:
		return "none"
	case RetryAnyLive:
		return "any-live"
	case RetryOriginal:
		return "original"
	default:
		return "unknown"
	}
}

// call is an asynchronous call to a peer.
type call struct {
	rpcType rpc.Type
	// req is the request payload, which must not be modified once the call
	// is issued since it may be shared with other calls.
	req any

	retry RetryPolicy
	// attempts is the number of remaining retries.
	attempts int

	// onResponse is called on the peers drain loop when the call succeeds.
	onResponse func(link *PeerLink, resp any)
}

// exclude returns the names of nodes the call must not be redriven
// against.
func (c *call) exclude() []string {
	switch req := c.req.(type) {
	case *rpc.SlotUpdate:
		return append([]string(nil), req.Visited...)
	case *rpc.NodeInfo:
		exclude := make([]string, 0, len(req.Visited)+1)
		exclude = append(exclude, req.Visited...)
		return append(exclude, req.Name)
	default:
		return nil
	}
}

// retryTask is a failed call waiting to be redriven.
type retryTask struct {
	call *call
	// target is the name of the peer the call failed against.
	target string
}

// retryQueue is a queue of failed calls waiting to be redriven by the daemon.
type retryQueue struct {
	tasks []*retryTask
	mu    sync.Mutex
}

func (q *retryQueue) Push(task *retryTask) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tasks = append(q.tasks, task)
}

// Drain removes and returns all queued tasks.
func (q *retryQueue) Drain() []*retryTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	tasks := q.tasks
	q.tasks = nil
	return tasks
}

func (q *retryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.tasks)
}

// nameQueue is a FIFO queue of unique node names.
type nameQueue struct {
	names  []string
	queued map[string]struct{}
	mu     sync.Mutex
}

func newNameQueue() *nameQueue {
	return &nameQueue{
		queued: make(map[string]struct{}),
	}
}

// Push adds the name to the queue. Returns false if the name is already
// queued.
func (q *nameQueue) Push(name string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.queued[name]; ok {
		return false
	}
	q.queued[name] = struct{}{}
	q.names = append(q.names, name)
	return true
}

func (q *nameQueue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.names) == 0 {
		return "", false
	}
	name := q.names[0]
	q.names = q.names[1:]
	delete(q.queued, name)
	return name, true
}

func (q *nameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.names)
}
