package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/GabrielSantos23/downly/internal/job"
	"github.com/GabrielSantos23/downly/pkg/logger"
	"github.com/google/uuid"
)

var log = logger.Get("Artifact")

var ErrNotFound = errors.New("artifact not found")

type Config struct {
	RetentionMinutes     int `yaml:"retention_minutes" env:"ARTIFACT_RETENTION_MINUTES" env-default:"120"`
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes" env:"ARTIFACT_SWEEP_INTERVAL_MINUTES" env-default:"10"`
}

// Store resolves and deletes the output files produced by completed jobs,
// and owns the retention sweep which eventually removes terminal jobs
// together with anything they left on disk.
//
// Artifact names are always '<jobID>.<container>'; the job ID embedded in
// the name is how a filename is tied back to the job that produced it.
type Store struct {
	config      Config
	outputPath  string
	workingPath string
	jobs        *job.Store
}

func New(config Config, outputPath string, workingPath string, jobs *job.Store) *Store {
	return &Store{
		config:      config,
		outputPath:  outputPath,
		workingPath: workingPath,
		jobs:        jobs,
	}
}

// Resolve maps an artifact filename to the absolute path it can be served
// from. Only artifacts belonging to a Completed job are ever resolved; a
// request against a pending, running or failed job reports ErrNotFound
// rather than exposing a partial file.
func (store *Store) Resolve(filename string) (string, error) {
	path, err := store.safePath(filename)
	if err != nil {
		return "", err
	}

	owner, err := store.ownerOf(filename)
	if err != nil {
		return "", err
	}

	if owner.Status != job.Completed || owner.ArtifactName != filename {
		return "", ErrNotFound
	}

	if _, err := os.Stat(path); err != nil {
		return "", ErrNotFound
	}

	return path, nil
}

// Delete removes the named artifact from disk. Deleting an artifact that
// is already gone reports ErrNotFound rather than an error.
func (store *Store) Delete(filename string) error {
	path, err := store.safePath(filename)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}

		return err
	}

	log.Emit(logger.INFO, "Deleted artifact %s\n", filename)
	return nil
}

// Run starts the retention sweep and blocks until the provided context is
// cancelled. Each tick removes terminal jobs which have outlived the
// retention window, along with their artifact and any stray work dir.
func (store *Store) Run(ctx context.Context) error {
	interval := time.Duration(store.config.SweepIntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Emit(logger.NEW, "Retention sweep started (every %s, retention %dm)\n", interval, store.config.RetentionMinutes)
	for {
		select {
		case <-ticker.C:
			store.Sweep()
		case <-ctx.Done():
			return nil
		}
	}
}

// Sweep performs a single retention pass. Run drives this on a ticker; it
// is safe to invoke directly.
func (store *Store) Sweep() {
	retention := time.Duration(store.config.RetentionMinutes) * time.Minute
	for _, j := range store.jobs.All() {
		if !j.Status.IsTerminal() || time.Since(j.CreatedAt) < retention {
			continue
		}

		if j.ArtifactName != "" {
			if err := store.Delete(j.ArtifactName); err != nil && !errors.Is(err, ErrNotFound) {
				log.Emit(logger.ERROR, "Sweep failed to delete artifact %s: %v\n", j.ArtifactName, err)
				continue
			}
		}

		// Work dirs are normally cleaned by the worker itself; this
		// catches anything left behind by a crash mid-job.
		if err := os.RemoveAll(filepath.Join(store.workingPath, j.ID.String())); err != nil {
			log.Emit(logger.WARNING, "Sweep failed to clear work dir for job %s: %v\n", j.ID, err)
		}

		store.jobs.Remove(j.ID)
		log.Emit(logger.INFO, "Swept expired %s job %s\n", j.Status, j.ID)
	}
}

// safePath confines the filename to the output dir, rejecting anything
// carrying path separators or traversal segments.
func (store *Store) safePath(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return "", ErrNotFound
	}

	return filepath.Join(store.outputPath, filename), nil
}

// ownerOf extracts the job ID embedded in the artifact name and fetches
// the matching job record.
func (store *Store) ownerOf(filename string) (job.Job, error) {
	stem, _, found := strings.Cut(filename, ".")
	if !found {
		return job.Job{}, ErrNotFound
	}

	id, err := uuid.Parse(stem)
	if err != nil {
		return job.Job{}, ErrNotFound
	}

	owner, err := store.jobs.Get(id)
	if err != nil {
		return job.Job{}, ErrNotFound
	}

	return owner, nil
}
