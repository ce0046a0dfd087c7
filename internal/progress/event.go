// Package progress defines the event structures emitted by batch runs.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageBatchStart Stage = "BATCH_START"
	StageBatchDone  Stage = "BATCH_DONE"
	StageTaskDone   Stage = "TASK_DONE"
	StageTaskError  Stage = "TASK_ERROR"
)

// Pipeline names the batch operation that produced an event.
type Pipeline string

// Supported pipelines.
const (
	PipelineAvailability Pipeline = "availability"
	PipelineMetadata     Pipeline = "metadata"
	PipelineRatings      Pipeline = "ratings"
)

// Event captures a single batch milestone.
type Event struct {
	// BatchID uniquely identifies a batch run using the 16-byte UUID form.
	BatchID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Pipeline scopes the event to one batch operation.
	Pipeline Pipeline
	// NetflixID is the catalog identifier for task events.
	NetflixID int64
	// Verdict carries the per-task outcome label (e.g. "available").
	Verdict string
	// Dur captures execution latency for tasks and batch completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.BatchID == [16]byte{} {
		return errors.New("batch id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Pipeline == "" {
		return errors.New("pipeline is required")
	}
	switch e.Stage {
	case StageBatchStart, StageBatchDone:
	case StageTaskDone, StageTaskError:
		if e.NetflixID == 0 {
			return fmt.Errorf("%s requires a netflix id", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// BatchUUID converts the binary batch ID to uuid.UUID for reporting.
func (e Event) BatchUUID() uuid.UUID {
	return uuid.UUID(e.BatchID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
