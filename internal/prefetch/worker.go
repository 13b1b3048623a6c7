package prefetch

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/timmy/lazyimg/internal/domain"
	"github.com/timmy/lazyimg/internal/logger"
	"github.com/timmy/lazyimg/internal/storage"
	"github.com/timmy/lazyimg/internal/transport"
)

// Job asks the worker to fetch Location on behalf of the logical URL.
type Job struct {
	URL      string
	Location string
}

// Result reports a finished fetch attempt. Err is nil on success; the table
// treats both outcomes as completion.
type Result struct {
	URL         string
	Location    string
	Err         error
	Size        int64
	ContentType string
	Format      string
	Width       int
	Height      int
	Duration    time.Duration
}

// Fetcher performs the network GET.
type Fetcher interface {
	Fetch(ctx context.Context, location string) (*transport.Blob, error)
}

// Recorder persists fetch attempts.
type Recorder interface {
	Record(ctx context.Context, rec *domain.FetchRecord) error
}

// WorkerConfig holds optional worker collaborators.
type WorkerConfig struct {
	Workers  int
	Store    storage.BlobStore // fetched bytes are kept here when set
	Recorder Recorder          // one ledger row per attempt when set
}

// Worker runs fetch jobs off the event loop. Submit never blocks; results
// are handed to report in completion order.
type Worker struct {
	fetcher  Fetcher
	report   func(Result)
	store    storage.BlobStore
	recorder Recorder
	workers  int

	mu     sync.Mutex
	queue  []Job
	notify chan struct{}
	wg     sync.WaitGroup

	log *logger.Logger
}

// NewWorker creates a worker pool.
// Parameters:
//   - fetcher: transport used for GETs.
//   - report: called from a worker goroutine with each result.
//   - cfg: optional settings; nil means one goroutine, no store, no ledger.
//   - log: base logger.
// Returns:
//   - *Worker: worker ready to Start.
func NewWorker(fetcher Fetcher, report func(Result), cfg *WorkerConfig, log *logger.Logger) *Worker {
	if cfg == nil {
		cfg = &WorkerConfig{}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Worker{
		fetcher:  fetcher,
		report:   report,
		store:    cfg.Store,
		recorder: cfg.Recorder,
		workers:  workers,
		notify:   make(chan struct{}, 1),
		log:      log.WithComponent("prefetch_worker"),
	}
}

// Start launches the worker goroutines. They exit when ctx is done.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go func(workerID int) {
			defer w.wg.Done()
			w.run(ctx, workerID)
		}(i)
	}
}

// Wait blocks until all worker goroutines have exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// Submit queues a job.
func (w *Worker) Submit(job Job) {
	w.mu.Lock()
	w.queue = append(w.queue, job)
	w.mu.Unlock()
	w.signal()
}

// Queued returns the number of jobs not yet picked up.
func (w *Worker) Queued() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

func (w *Worker) signal() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (w *Worker) next() (Job, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return Job{}, false
	}
	job := w.queue[0]
	w.queue = w.queue[1:]
	if len(w.queue) > 0 {
		// Wake another idle goroutine for the rest.
		w.signal()
	}
	return job, true
}

func (w *Worker) run(ctx context.Context, workerID int) {
	for {
		job, ok := w.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-w.notify:
				continue
			}
		}
		if ctx.Err() != nil {
			return
		}
		w.report(w.process(ctx, workerID, job))
	}
}

func (w *Worker) process(ctx context.Context, workerID int, job Job) Result {
	start := time.Now()
	res := Result{URL: job.URL, Location: job.Location}

	blob, err := w.fetcher.Fetch(ctx, job.Location)
	if err != nil {
		res.Err = err
	} else {
		res.Size = int64(len(blob.Data))
		res.ContentType = blob.ContentType

		if width, height, format, perr := Probe(blob.Data); perr == nil {
			res.Width, res.Height, res.Format = width, height, format
		}

		if w.store != nil {
			key := storage.KeyForURL(job.URL)
			if err := w.store.Put(ctx, key, bytes.NewReader(blob.Data), res.Size, blob.ContentType); err != nil {
				w.log.WithField(logger.FieldURL, job.URL).WithError(err).Warn("Failed to store prefetched blob")
			}
		}
	}
	res.Duration = time.Since(start)

	status := string(domain.FetchStatusOK)
	if res.Err != nil {
		status = string(domain.FetchStatusFailed)
	}
	logger.With(logger.Fields{
		logger.FieldURL:        job.URL,
		"worker_id":            workerID,
		logger.FieldStatus:     status,
		logger.FieldSize:       res.Size,
		logger.FieldDurationMs: res.Duration.Milliseconds(),
	}).Debug(w.log.WithContext(ctx), "Prefetch job finished")

	w.record(ctx, res)
	return res
}

func (w *Worker) record(ctx context.Context, res Result) {
	if w.recorder == nil {
		return
	}
	rec := &domain.FetchRecord{
		URL:         res.URL,
		Location:    res.Location,
		Status:      domain.FetchStatusOK,
		Size:        res.Size,
		ContentType: res.ContentType,
		Width:       res.Width,
		Height:      res.Height,
		DurationMs:  res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		rec.Status = domain.FetchStatusFailed
		rec.Error = res.Err.Error()
	}
	if err := w.recorder.Record(ctx, rec); err != nil {
		w.log.WithField(logger.FieldURL, res.URL).WithError(err).Warn("Failed to record fetch attempt")
	}
}
