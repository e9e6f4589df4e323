package generation

import "sync"

// Queue hands results from workers to the tick. Any number of goroutines may
// enqueue; a single consumer drains.
type Queue struct {
	mu      sync.Mutex
	pending []Result
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Enqueue(res Result) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, res)
}

// Drain removes up to max results in enqueue order. max <= 0 drains all.
func (q *Queue) Drain(max int) []Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	if max <= 0 || max >= len(q.pending) {
		batch := q.pending
		q.pending = nil
		return batch
	}
	batch := append([]Result(nil), q.pending[:max]...)
	q.pending = append([]Result(nil), q.pending[max:]...)
	return batch
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
