package jobs

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/lumen/engine/core"
)

// Task is a unit of background work, used for asynchronous pipeline warmup.
type Task struct {
	Name       string
	OnStart    func() error
	OnComplete func()
	OnFailure  func(err error)
}

// Pool runs tasks on a fixed set of workers. The queue channel is never
// closed; shutdown is signalled through done so submissions racing a
// Shutdown are dropped instead of panicking.
type Pool struct {
	numWorkers int
	queue      chan Task
	done       chan struct{}
	stop       sync.Once
	wg         sync.WaitGroup
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")

func NewPool(numWorkers int, channelSize int) (*Pool, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	p := &Pool{
		numWorkers: numWorkers,
		queue:      make(chan Task, channelSize),
		done:       make(chan struct{}),
	}
	p.start()

	return p, nil
}

func (p *Pool) start() {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case task := <-p.queue:
					p.run(task)
				case <-p.done:
					// Drain whatever was queued before the shutdown.
					for {
						select {
						case task := <-p.queue:
							p.run(task)
						default:
							return
						}
					}
				}
			}
		}()
	}
}

func (p *Pool) run(task Task) {
	if err := task.OnStart(); err != nil {
		core.LogError("task %s failed: %s", task.Name, err.Error())
		if task.OnFailure != nil {
			task.OnFailure(err)
		}
		return
	}
	if task.OnComplete != nil {
		task.OnComplete()
	}
}

// Submit queues the task for execution, blocking when the queue is full.
// Tasks submitted after Shutdown are dropped.
func (p *Pool) Submit(t Task) {
	select {
	case <-p.done:
		return
	default:
	}
	select {
	case p.queue <- t:
	case <-p.done:
	}
}

// SubmitNonBlocking queues the task without blocking the caller.
func (p *Pool) SubmitNonBlocking(t Task) {
	go p.Submit(t)
}

// Shutdown drains the queue and waits for the workers to exit. Safe to call
// more than once.
func (p *Pool) Shutdown() error {
	p.stop.Do(func() {
		close(p.done)
		p.wg.Wait()
	})
	return nil
}
