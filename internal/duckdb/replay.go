package duckdb

import (
	"log"

	"github.com/tinytelemetry/symposium/internal/model"
)

// replayableJournal is the subset of *journal.Journal replay needs.
type replayableJournal interface {
	Replay(fn func(seq uint64, ev *model.Event) error) error
	Commit(seq uint64) error
}

// ReplayJournal writes events a previous process journaled but never
// flushed, committing the journal as each batch lands. It returns the number
// of events replayed. Call it before handing the journal to an InsertBuffer.
func ReplayJournal(j replayableJournal, events model.EventWriter, batchSize int) (int, error) {
	if j == nil {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	batch := make([]*model.Event, 0, batchSize)
	batchMaxSeq := uint64(0)
	replayed := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := events.InsertEventBatch(batch); err != nil {
			return err
		}
		if batchMaxSeq > 0 {
			if err := j.Commit(batchMaxSeq); err != nil {
				return err
			}
		}
		replayed += len(batch)
		batch = make([]*model.Event, 0, batchSize)
		batchMaxSeq = 0
		return nil
	}

	if err := j.Replay(func(seq uint64, ev *model.Event) error {
		copied := *ev
		batch = append(batch, &copied)
		batchMaxSeq = max(batchMaxSeq, seq)
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	}); err != nil {
		return replayed, err
	}

	if err := flush(); err != nil {
		return replayed, err
	}
	if replayed > 0 {
		log.Printf("duckdb: replayed %d uncommitted journal events", replayed)
	}
	return replayed, nil
}
