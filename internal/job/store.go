package job

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GabrielSantos23/downly/pkg/logger"
	"github.com/google/uuid"
)

var log = logger.Get("JobStore")

var (
	ErrNotFound           = errors.New("job not found")
	ErrTerminal           = errors.New("job is in a terminal state")
	ErrBackwardTransition = errors.New("job status cannot move backwards")
)

// Patch is a partial update to a job record. Nil fields are left untouched.
// Progress updates are clamped so the visible progress of a job never
// decreases while it is non-terminal.
type Patch struct {
	Status       *Status
	Progress     *int
	Message      *string
	ArtifactName *string
	ErrorDetail  *string
}

// Store is the in-process registry of jobs. It is the only structure in
// the engine shared between goroutines; every read returns a value copy
// so a concurrent poller can never observe a partially-written record.
//
// Mutation is restricted to the Handle returned by Create, which is given
// to (and only to) the worker bound to that job.
type Store struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
}

func NewStore() *Store {
	return &Store{jobs: make(map[uuid.UUID]*Job)}
}

// Create allocates a new job in the Queued state and returns the owner
// handle for it. Job IDs are random UUIDs and are never reused.
func (store *Store) Create(kind Kind) *Handle {
	store.mu.Lock()
	defer store.mu.Unlock()

	newJob := &Job{
		ID:        uuid.New(),
		Kind:      kind,
		Status:    Queued,
		Progress:  0,
		Message:   "Task queued",
		CreatedAt: time.Now(),
	}
	store.jobs[newJob.ID] = newJob

	return &Handle{store: store, id: newJob.ID}
}

// Get returns a snapshot (value copy) of the job with the given ID.
func (store *Store) Get(id uuid.UUID) (Job, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	j, ok := store.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}

	return *j, nil
}

// All returns snapshots of every job known to the store.
func (store *Store) All() []Job {
	store.mu.Lock()
	defer store.mu.Unlock()

	out := make([]Job, 0, len(store.jobs))
	for _, j := range store.jobs {
		out = append(out, *j)
	}

	return out
}

// Remove deletes the job record. Used by the retention sweep once a
// terminal job has outlived its retention window.
func (store *Store) Remove(id uuid.UUID) bool {
	store.mu.Lock()
	defer store.mu.Unlock()

	if _, ok := store.jobs[id]; !ok {
		return false
	}

	delete(store.jobs, id)
	return true
}

// apply validates and applies a patch to the identified job. Writes to a
// terminal job are rejected outright; status changes must move forward.
func (store *Store) apply(id uuid.UUID, patch Patch) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	j, ok := store.jobs[id]
	if !ok {
		return ErrNotFound
	}

	if j.Status.IsTerminal() {
		return fmt.Errorf("%w: refusing update to %s job %s", ErrTerminal, j.Status, id)
	}

	if patch.Status != nil {
		if *patch.Status < j.Status {
			return fmt.Errorf("%w: %s -> %s for job %s", ErrBackwardTransition, j.Status, *patch.Status, id)
		}

		j.Status = *patch.Status
	}

	if patch.Progress != nil && *patch.Progress > j.Progress {
		j.Progress = *patch.Progress
	}

	if patch.Message != nil {
		j.Message = *patch.Message
	}
	if patch.ArtifactName != nil {
		j.ArtifactName = *patch.ArtifactName
	}
	if patch.ErrorDetail != nil {
		j.ErrorDetail = *patch.ErrorDetail
	}

	// Terminal boundary invariants: completed jobs always read 100,
	// failed jobs freeze at their last known progress.
	if j.Status == Completed {
		j.Progress = 100
	}

	return nil
}

// Handle is the mutation capability for a single job, held by the worker
// which owns it. The worker is the jobs single writer; everything else
// observes the job through Store.Get snapshots.
type Handle struct {
	store *Store
	id    uuid.UUID
}

func (handle *Handle) ID() uuid.UUID { return handle.id }

// Update applies the given patch to the owned job.
func (handle *Handle) Update(patch Patch) error {
	return handle.store.apply(handle.id, patch)
}

// Transition moves the job to the given status, updating the progress and
// user-facing message at the same time.
func (handle *Handle) Transition(status Status, progress int, message string) error {
	return handle.store.apply(handle.id, Patch{Status: &status, Progress: &progress, Message: &message})
}

// SetProgress updates only the progress/message of the job; the update is
// dropped by the store if it would move progress backwards.
func (handle *Handle) SetProgress(progress int, message string) error {
	return handle.store.apply(handle.id, Patch{Progress: &progress, Message: &message})
}

// Complete marks the job as successfully finished, recording the artifact
// it produced.
func (handle *Handle) Complete(artifactName string, message string) error {
	status := Completed
	return handle.store.apply(handle.id, Patch{Status: &status, Message: &message, ArtifactName: &artifactName})
}

// Fail marks the job as failed, recording the phase-specific error detail.
// Failing an already-terminal job is a no-op beyond a log line; the first
// terminal state always wins.
func (handle *Handle) Fail(message string, errorDetail string) {
	status := Failed
	if err := handle.store.apply(handle.id, Patch{Status: &status, Message: &message, ErrorDetail: &errorDetail}); err != nil {
		log.Emit(logger.WARNING, "Unable to fail job %s: %v\n", handle.id, err)
	}
}
