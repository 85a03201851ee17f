package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/GabrielSantos23/downly/internal/event"
	"github.com/GabrielSantos23/downly/internal/ffmpeg"
	"github.com/GabrielSantos23/downly/internal/job"
	"github.com/GabrielSantos23/downly/internal/ytdlp"
	"github.com/GabrielSantos23/downly/pkg/logger"
	pkgsync "github.com/GabrielSantos23/downly/pkg/sync"
	"github.com/GabrielSantos23/downly/pkg/worker"
	"github.com/floostack/transcoder"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var log = logger.Get("Processor")

type (
	// Downloader is the slice of the external extraction tool the worker
	// uses to fetch the selected stream(s) for a job.
	Downloader interface {
		Download(ctx context.Context, url string, formatSelector string, outputTemplate string, audioOnly bool, onProgress ytdlp.ProgressCallback) error
	}

	// MediaTranscoder is the slice of the external transcoding tool the
	// worker uses for the trim and conversion phases.
	MediaTranscoder interface {
		Transcode(ctx context.Context, inputPath string, outputPath string, options transcoder.Options, onProgress func(*ffmpeg.Progress)) error
		ProbeDuration(path string) (float64, error)
	}

	queuedJob struct {
		handle *job.Handle
		*validatedRequest
	}

	// ProcessorService is the job scheduler/dispatcher and the home of the
	// media workers. Submissions are validated synchronously, then queued;
	// a fixed pool of sleeping workers claims queued jobs one at a time,
	// so a given job is only ever executed by a single worker.
	ProcessorService struct {
		*sync.Mutex
		config     Config
		validate   *validator.Validate
		downloader Downloader
		transcoder MediaTranscoder
		store      *job.Store
		eventBus   event.EventDispatcher

		pending    []*queuedJob
		cancels    pkgsync.TypedSyncMap[uuid.UUID, context.CancelFunc]
		workerPool *worker.WorkerPool

		runCtx context.Context
	}
)

// New creates a new ProcessorService. The output and working directories
// from the config are created if they are missing.
func New(config Config, downloader Downloader, mediaTranscoder MediaTranscoder, store *job.Store, eventBus event.EventDispatcher) (*ProcessorService, error) {
	for _, dir := range []string{config.OutputPath, config.WorkingPath} {
		if err := os.MkdirAll(dir, os.ModeDir|os.ModePerm); err != nil {
			return nil, fmt.Errorf("directory '%s' could not be created: %w", dir, err)
		}
	}

	service := &ProcessorService{
		Mutex:      &sync.Mutex{},
		config:     config,
		validate:   validator.New(),
		downloader: downloader,
		transcoder: mediaTranscoder,
		store:      store,
		eventBus:   eventBus,
		pending:    make([]*queuedJob, 0),
		workerPool: worker.NewWorkerPool(),
	}

	for i := 0; i < config.JobParallelism; i++ {
		label := fmt.Sprintf("job-worker-%d", i)
		service.workerPool.PushWorker(worker.NewWorker(label, service.processNextJob))
	}

	return service, nil
}

// Run is the main entry point for this service; it brings up the worker
// pool and blocks until the provided context is cancelled, at which point
// it waits for in-flight jobs to wind down.
func (service *ProcessorService) Run(ctx context.Context) error {
	service.Lock()
	service.runCtx = ctx
	service.Unlock()

	if err := service.workerPool.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	log.Emit(logger.STOP, "Shutting down (context cancelled). Waiting for job workers to finish.\n")
	service.workerPool.Close()
	return nil
}

// Submit validates the given request and, if acceptable, creates a queued
// job for it and wakes the worker pool. Submit never blocks on the actual
// media work; it returns as soon as the job record exists.
func (service *ProcessorService) Submit(kind job.Kind, request ProcessRequest) (uuid.UUID, error) {
	validated, err := validateRequest(service.validate, kind, request)
	if err != nil {
		return uuid.Nil, err
	}

	handle := service.store.Create(kind)
	log.Emit(logger.NEW, "Accepted %s job %s for %s\n", kind, handle.ID(), request.URL)

	service.Lock()
	service.pending = append(service.pending, &queuedJob{handle: handle, validatedRequest: validated})
	service.Unlock()

	service.eventBus.Dispatch(event.JOB_UPDATE, handle.ID())

	// The pool may not be running yet; queued jobs will be picked up as
	// soon as its workers start.
	if err := service.workerPool.WakeupWorkers(); err != nil {
		log.Emit(logger.DEBUG, "Worker pool not accepting wakeups yet: %v\n", err)
	}

	return handle.ID(), nil
}

// Task returns a snapshot of the identified job.
func (service *ProcessorService) Task(id uuid.UUID) (job.Job, error) {
	return service.store.Get(id)
}

// AllTasks returns snapshots of every job the store knows about.
func (service *ProcessorService) AllTasks() []job.Job {
	return service.store.All()
}

// CancelTask aborts the identified job: a still-queued job is failed in
// place, a running one has its subprocesses killed via its context. Jobs
// which are unknown (or already terminal) report ErrNotFound.
func (service *ProcessorService) CancelTask(id uuid.UUID) error {
	service.Lock()
	for i, queued := range service.pending {
		if queued.handle.ID() == id {
			service.pending = append(service.pending[:i], service.pending[i+1:]...)
			service.Unlock()

			queued.handle.Fail("Cancelled", "cancelled before processing began")
			service.eventBus.Dispatch(event.JOB_COMPLETE, id)
			return nil
		}
	}
	service.Unlock()

	if cancel, ok := service.cancels.Load(id); ok {
		cancel()
		return nil
	}

	return job.ErrNotFound
}

// processNextJob is the worker function for this service, called by the
// pools workers. It claims the oldest pending job (if any) and runs it to
// a terminal state.
func (service *ProcessorService) processNextJob(w worker.Worker) (bool, error) {
	item, jobCtx, cancel := service.claimPendingJob()
	if item == nil {
		return false, nil
	}

	defer func() {
		service.cancels.Delete(item.handle.ID())
		cancel()
	}()

	log.Emit(logger.INFO, "Worker %s claimed job %s\n", w.Label(), item.handle.ID())
	service.runJob(jobCtx, item)
	return true, nil
}

// claimPendingJob pops the oldest pending job and registers its cancel
// func before releasing the lock, so a concurrent CancelTask always finds
// the job either still pending or already cancellable.
func (service *ProcessorService) claimPendingJob() (*queuedJob, context.Context, context.CancelFunc) {
	service.Lock()
	defer service.Unlock()

	if len(service.pending) == 0 {
		return nil, nil, nil
	}

	item := service.pending[0]
	service.pending = service.pending[1:]

	parent := service.runCtx
	if parent == nil {
		parent = context.Background()
	}

	jobCtx, cancel := context.WithCancel(parent)
	service.cancels.Store(item.handle.ID(), cancel)
	return item, jobCtx, cancel
}

// failJob records the terminal failure on the job record; errors inside a
// worker never propagate across the async boundary.
func (service *ProcessorService) failJob(handle *job.Handle, message string, cause error) {
	log.Emit(logger.ERROR, "Job %s failed: %s (%v)\n", handle.ID(), message, cause)
	handle.Fail(message, cause.Error())
	service.eventBus.Dispatch(event.JOB_COMPLETE, handle.ID())
}

// downloadFailureMessage maps a classified download error to the
// user-facing message stored on the job record. An unavailable source and
// a transport failure must stay distinguishable to the client.
func downloadFailureMessage(err error) string {
	switch {
	case errors.Is(err, ytdlp.ErrSourceUnavailable):
		return "The source media is unavailable (removed, private, or region-locked)"
	case errors.Is(err, ytdlp.ErrNetwork):
		return "A network error occurred while downloading the media"
	case errors.Is(err, ytdlp.ErrUnsupportedSource):
		return "This source is not supported"
	default:
		return "Download failed"
	}
}
