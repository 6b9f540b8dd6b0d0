package systems

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

// JobTask is a unit of recording work. OnStart runs on a worker and receives the recording
// thread index owned by that worker, so it may take secondary command buffers of that thread.
type JobTask struct {
	Name       string
	OnStart    func(thread uint32) error
	OnComplete func()
	OnFailure  func(err error)
}

// JobSystem runs jobs on a fixed set of workers. Worker i always records as thread
// firstThread+i, which keeps per-thread command pools free of sharing.
type JobSystem struct {
	numWorkers  int
	firstThread uint32
	jobQueue    chan JobTask
	wg          sync.WaitGroup
	pending     sync.WaitGroup

	// closeMu keeps Submit from sending on a closed queue.
	closeMu sync.RWMutex
	closed  bool

	mu   sync.Mutex
	errs error
}

var ErrNoWorkers = errors.New("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = errors.New("attempting to create worker pool with a negative channel size")
var ErrJobSystemClosed = errors.New("job system is shut down")

func NewJobSystem(firstThread uint32, numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers:  numWorkers,
		firstThread: firstThread,
		jobQueue:    make(chan JobTask, channelSize),
	}

	js.start()

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		thread := js.firstThread + uint32(i)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				js.run(job, thread)
			}
		}()
	}
}

func (js *JobSystem) run(job JobTask, thread uint32) {
	defer js.pending.Done()

	if err := job.OnStart(thread); err != nil {
		err = errors.Wrapf(err, "job %q on thread %d", job.Name, thread)
		core.LogError(err.Error())
		js.mu.Lock()
		js.errs = errors.CombineErrors(js.errs, err)
		js.mu.Unlock()
		if job.OnFailure != nil {
			job.OnFailure(err)
		}
		return
	}
	if job.OnComplete != nil {
		job.OnComplete()
	}
}

// Threads returns the recording thread indices owned by the workers.
func (js *JobSystem) Threads() []uint32 {
	threads := make([]uint32, js.numWorkers)
	for i := range threads {
		threads[i] = js.firstThread + uint32(i)
	}
	return threads
}

// Submit queues jt, blocking while the queue is full.
func (js *JobSystem) Submit(jt JobTask) error {
	js.closeMu.RLock()
	defer js.closeMu.RUnlock()
	if js.closed {
		return ErrJobSystemClosed
	}
	js.pending.Add(1)
	js.jobQueue <- jt
	return nil
}

// Wait blocks until every submitted job has finished and returns the failures since the
// previous Wait.
func (js *JobSystem) Wait() error {
	js.pending.Wait()

	js.mu.Lock()
	defer js.mu.Unlock()
	err := js.errs
	js.errs = nil
	return err
}

// Shutdown drains the queue and stops the workers.
func (js *JobSystem) Shutdown() error {
	js.closeMu.Lock()
	if js.closed {
		js.closeMu.Unlock()
		return nil
	}
	js.closed = true
	close(js.jobQueue)
	js.closeMu.Unlock()

	js.wg.Wait()
	return js.Wait()
}
