package kos

import "github.com/inobulles/aqua/pkg/alog"

// queueCap is the action queue's bound, fixed by the spec: a 17th action
// queued before the next flush is dropped, not blocked on.
const queueCap = 16

// action is one entry in the deferred action queue: a cookie, the callback
// that performs the deferred work, and whatever parameters it closed over.
type action struct {
	cookie uint64
	run    func(sync bool)
}

// actionQueue is a bounded FIFO of pending actions. It is not safe for
// concurrent use; callers hold KOS.mu.
type actionQueue struct {
	entries []action
}

func newActionQueue() *actionQueue {
	return &actionQueue{entries: make([]action, 0, queueCap)}
}

// push appends a, dropping it (and logging) if the queue is already at
// capacity — drop-newest, never block, per the spec's action-queue
// invariant.
func (q *actionQueue) push(a action) bool {
	if len(q.entries) >= queueCap {
		alog.Error("kos: action queue full (cap=%d), dropping action for cookie %d", queueCap, a.cookie)
		return false
	}
	q.entries = append(q.entries, a)
	return true
}

func (q *actionQueue) len() int { return len(q.entries) }

// drain removes and returns every queued action, head first, in the order
// they were pushed.
func (q *actionQueue) drain() []action {
	out := q.entries
	q.entries = make([]action, 0, queueCap)
	return out
}
