package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type collectingSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *collectingSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

func (s *collectingSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *collectingSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func validEvent(stage Stage) Event {
	return Event{
		BatchID:   UUIDToBytes(uuid.New()),
		TS:        time.Now().UTC(),
		Stage:     stage,
		Pipeline:  PipelineAvailability,
		NetflixID: 81000001,
	}
}

func TestHubDeliversEventsToSinks(t *testing.T) {
	t.Parallel()

	sink := &collectingSink{}
	hub := NewHub(Config{MaxBatchWait: 10 * time.Millisecond}, sink)

	hub.Emit(validEvent(StageTaskDone))
	hub.Emit(validEvent(StageTaskError))

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 2
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Close(context.Background()))
	require.True(t, sink.closed)
}

func TestHubDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &collectingSink{}
	hub := NewHub(Config{MaxBatchWait: 10 * time.Millisecond}, sink)
	defer hub.Close(context.Background())

	hub.Emit(Event{})
	hub.Emit(Event{Stage: StageTaskDone})

	time.Sleep(50 * time.Millisecond)
	require.Empty(t, sink.snapshot())
}

func TestHubCloseFlushesBufferedEvents(t *testing.T) {
	t.Parallel()

	sink := &collectingSink{}
	hub := NewHub(Config{MaxBatchWait: time.Hour}, sink)

	hub.Emit(validEvent(StageTaskDone))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.snapshot(), 1)
}

func TestHubSnapshotAggregatesPerPipeline(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{})
	defer hub.Close(context.Background())

	batch := UUIDToBytes(uuid.New())
	now := time.Now().UTC()
	hub.Emit(Event{BatchID: batch, TS: now, Stage: StageBatchStart, Pipeline: PipelineRatings})
	hub.Emit(Event{BatchID: batch, TS: now, Stage: StageTaskDone, Pipeline: PipelineRatings, NetflixID: 1})
	hub.Emit(Event{BatchID: batch, TS: now, Stage: StageTaskDone, Pipeline: PipelineRatings, NetflixID: 2})
	hub.Emit(Event{BatchID: batch, TS: now, Stage: StageTaskError, Pipeline: PipelineRatings, NetflixID: 3})

	snap := hub.Snapshot()
	require.Equal(t, int64(1), snap[PipelineRatings].Batches)
	require.Equal(t, int64(2), snap[PipelineRatings].TasksDone)
	require.Equal(t, int64(1), snap[PipelineRatings].TaskErrs)
	require.Equal(t, now, snap[PipelineRatings].LastEvent)
}

func TestHubEmitAfterCloseIsNoop(t *testing.T) {
	t.Parallel()

	sink := &collectingSink{}
	hub := NewHub(Config{}, sink)
	require.NoError(t, hub.Close(context.Background()))

	hub.Emit(validEvent(StageTaskDone))
	require.Empty(t, sink.snapshot())
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	evt := validEvent(StageTaskDone)
	require.NoError(t, evt.Validate())

	missingID := evt
	missingID.BatchID = [16]byte{}
	require.Error(t, missingID.Validate())

	missingPipeline := evt
	missingPipeline.Pipeline = ""
	require.Error(t, missingPipeline.Validate())

	taskWithoutID := evt
	taskWithoutID.NetflixID = 0
	require.Error(t, taskWithoutID.Validate())

	batchEvent := evt
	batchEvent.Stage = StageBatchDone
	batchEvent.NetflixID = 0
	require.NoError(t, batchEvent.Validate())

	unknown := evt
	unknown.Stage = Stage("WAT")
	require.Error(t, unknown.Validate())
}
