package generation

import (
	"sync"
	"sync/atomic"
)

// Dispatcher starts generation jobs. Implementations must not block the
// caller on job completion.
type Dispatcher interface {
	DispatchData(job DataJob)
	DispatchMesh(job MeshJob)
}

// Pool runs every job on its own goroutine and posts the result to a Queue.
// Jobs are never cancelled.
type Pool struct {
	queue    *Queue
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

func NewPool(queue *Queue) *Pool {
	return &Pool{queue: queue}
}

func (p *Pool) DispatchData(job DataJob) {
	p.spawn(func() Result { return RunData(job) })
}

func (p *Pool) DispatchMesh(job MeshJob) {
	p.spawn(func() Result { return RunMesh(job) })
}

func (p *Pool) spawn(run func() Result) {
	p.wg.Add(1)
	p.inFlight.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inFlight.Add(-1)
		p.queue.Enqueue(run())
	}()
}

// Wait blocks until every spawned job has posted its result.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// InFlight returns the number of jobs still running.
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}

// Inline runs jobs synchronously on the caller's goroutine. It is used by
// tools that want deterministic completion order.
type Inline struct {
	Queue *Queue
}

func (d Inline) DispatchData(job DataJob) {
	d.Queue.Enqueue(RunData(job))
}

func (d Inline) DispatchMesh(job MeshJob) {
	d.Queue.Enqueue(RunMesh(job))
}
