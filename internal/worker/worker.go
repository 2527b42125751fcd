package worker

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
)

// Task is a background job, typically a cache write queued after a mutation.
type Task func(ctx context.Context) error

type Pool struct {
	tasks     chan Task
	wg        sync.WaitGroup
	isClosing atomic.Bool
}

// NewPool starts size workers sharing a buffered queue. Tasks submitted
// when the queue is full are dropped, background work here is best effort.
func NewPool(size, queueSize int) *Pool {
	p := &Pool{
		tasks: make(chan Task, queueSize),
	}

	for range size {
		p.wg.Add(1)
		go p.run()
	}

	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for task := range p.tasks {
		if err := task(context.Background()); err != nil {
			log.Printf("Worker task failed: %v", err)
		}
	}
}

func (p *Pool) Submit(t Task) {
	if p.isClosing.Load() {
		log.Println("Warning: task submitted during shutdown, dropping.")
		return
	}
	select {
	case p.tasks <- t:
	default:
		log.Println("Task queue full, dropping task!")
	}
}

// Shutdown stops accepting tasks and waits for in-flight ones to finish.
func (p *Pool) Shutdown() {
	p.isClosing.Store(true)
	close(p.tasks)
	p.wg.Wait()
}
