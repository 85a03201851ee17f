package job

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Status is the jobs position in its lifecycle. The zero value is Queued.
// Transitions only move forward (a phase may be skipped, e.g. a job with
// no trim window moves straight from Downloading to Converting), any
// status may move to Failed, and Completed/Failed are terminal.
type Status int

const (
	Queued Status = iota
	Downloading
	Trimming
	Converting
	Completed
	Failed
)

func (s Status) String() string {
	switch s {
	case Queued:
		return "queued"
	case Downloading:
		return "downloading"
	case Trimming:
		return "trimming"
	case Converting:
		return "converting"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}

	return fmt.Sprintf("unknown[%d]", s)
}

func (s Status) IsTerminal() bool {
	return s == Completed || s == Failed
}

// Job is one user-requested media processing operation, tracked from
// creation to a terminal state. Instances are owned exclusively by the
// Store; readers only ever see value copies (see Store.Get).
type Job struct {
	ID           uuid.UUID
	Kind         Kind
	Status       Status
	Progress     int
	Message      string
	ArtifactName string
	ErrorDetail  string
	CreatedAt    time.Time
}

func (j *Job) String() string {
	return fmt.Sprintf("Job{ID=%s Kind=%s Status=%s Progress=%d}", j.ID, j.Kind, j.Status, j.Progress)
}
