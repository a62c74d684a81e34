// Package workers provides the worker pool for background task processing.
package workers

import (
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"

	"git.uuxo.net/uuxo/maxdiskusage/internal/config"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// Task represents a unit of work for the worker pool.
type Task struct {
	Name    string
	Execute func() error
}

// Pool manages a pool of worker goroutines. Submit never blocks, so the
// pool can be fed from request hot paths.
type Pool struct {
	tasks      chan Task
	wg         sync.WaitGroup
	quit       chan struct{}
	stopOnce   sync.Once
	numWorkers int
}

// NewPool creates a new worker pool.
func NewPool(numWorkers, queueSize int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Pool{
		tasks:      make(chan Task, queueSize),
		quit:       make(chan struct{}),
		numWorkers: numWorkers,
	}
}

// NewPoolFromConfig creates a pool sized by the workers section.
func NewPoolFromConfig(cfg *config.WorkersConfig) *Pool {
	return NewPool(cfg.NumWorkers, cfg.QueueSize)
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	log.Infof("Worker pool started with %d workers", p.numWorkers)
}

// Stop signals all workers to finish the queued tasks and waits for them.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
		p.wg.Wait()
		log.Info("Worker pool stopped")
	})
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.tasks:
			p.run(id, task)
		case <-p.quit:
			for {
				select {
				case task := <-p.tasks:
					p.run(id, task)
				default:
					return
				}
			}
		}
	}
}

func (p *Pool) run(id int, task Task) {
	if err := task.Execute(); err != nil {
		log.Errorf("Worker %d: task %s failed: %v", id, task.Name, err)
	}
}

// Submit queues a task. It returns false when the queue is full or the
// pool is stopped.
func (p *Pool) Submit(task Task) bool {
	select {
	case <-p.quit:
		return false
	default:
	}
	select {
	case p.tasks <- task:
		return true
	default:
		log.Warnf("Worker pool queue full, task %s dropped", task.Name)
		return false
	}
}

// Queued returns the number of tasks waiting for a worker.
func (p *Pool) Queued() int {
	return len(p.tasks)
}
