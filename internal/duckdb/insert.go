package duckdb

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinytelemetry/symposium/internal/model"
)

const (
	DefaultBatchSize      = 500
	DefaultFlushInterval  = 100 * time.Millisecond
	DefaultFlushQueueSize = 64
)

type journaledEvent struct {
	seq   uint64
	event *model.Event
}

// eventJournal is the subset of *journal.Journal the buffer needs.
type eventJournal interface {
	Append(ev *model.Event) (uint64, error)
	Commit(seq uint64) error
	Close() error
}

// InsertBuffer batches simulator events and writes them on a background
// goroutine. Add only blocks on DuckDB when the flush queue is full.
type InsertBuffer struct {
	writer        model.EventWriter
	mu            sync.Mutex
	pending       []journaledEvent
	flushChan     chan []journaledEvent
	maxBatch      int
	flushInterval time.Duration
	done          chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
	tickWg        sync.WaitGroup
	journal       eventJournal

	flushed           atomic.Int64
	backpressureCount atomic.Int64
	lastBPLog         atomic.Int64
}

// InsertBufferConfig tunes the buffer. Zero fields take the defaults.
type InsertBufferConfig struct {
	BatchSize      int
	FlushInterval  time.Duration
	FlushQueueSize int
	// Journal, when set, makes every event durable before Add returns and is
	// committed after each successful flush. The buffer closes it on Stop.
	Journal eventJournal
}

// NewInsertBuffer starts the flush worker and ticker.
func NewInsertBuffer(writer model.EventWriter, conf ...InsertBufferConfig) *InsertBuffer {
	var c InsertBufferConfig
	if len(conf) > 0 {
		c = conf[0]
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.FlushQueueSize <= 0 {
		c.FlushQueueSize = DefaultFlushQueueSize
	}

	b := &InsertBuffer{
		writer:        writer,
		pending:       make([]journaledEvent, 0, c.BatchSize),
		flushChan:     make(chan []journaledEvent, c.FlushQueueSize),
		maxBatch:      c.BatchSize,
		flushInterval: c.FlushInterval,
		done:          make(chan struct{}),
		journal:       c.Journal,
	}

	b.wg.Add(1)
	go b.flushWorker()

	b.wg.Add(1)
	b.tickWg.Add(1)
	go b.tickLoop()
	return b
}

func (b *InsertBuffer) tickLoop() {
	defer b.wg.Done()
	defer b.tickWg.Done()
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.drainPending()
		case <-b.done:
			b.drainPending()
			return
		}
	}
}

// logBackpressure logs at most once every 10 seconds.
func (b *InsertBuffer) logBackpressure() {
	count := b.backpressureCount.Add(1)
	now := time.Now().Unix()
	last := b.lastBPLog.Load()
	if now-last >= 10 && b.lastBPLog.CompareAndSwap(last, now) {
		log.Printf("duckdb: backpressure, %d inline flushes so far", count)
	}
}

func (b *InsertBuffer) takePending() []journaledEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return nil
	}
	batch := b.pending
	b.pending = make([]journaledEvent, 0, b.maxBatch)
	return batch
}

func (b *InsertBuffer) drainPending() {
	if batch := b.takePending(); batch != nil {
		b.enqueue(batch)
	}
}

// enqueue hands batch to the worker, or writes it inline when the queue is full.
func (b *InsertBuffer) enqueue(batch []journaledEvent) {
	select {
	case b.flushChan <- batch:
	default:
		b.logBackpressure()
		if err := b.flushBatch(batch); err != nil {
			log.Printf("duckdb: inline flush: %v", err)
		}
	}
}

func (b *InsertBuffer) flushWorker() {
	defer b.wg.Done()
	for batch := range b.flushChan {
		if err := b.flushBatch(batch); err != nil {
			log.Printf("duckdb: flush: %v", err)
		}
	}
}

// Add queues one event.
func (b *InsertBuffer) Add(ev *model.Event) {
	select {
	case <-b.done:
		log.Printf("duckdb: dropping event for run %s after stop", ev.RunID)
		return
	default:
	}

	var seq uint64
	if b.journal != nil {
		for {
			var err error
			if seq, err = b.journal.Append(ev); err == nil {
				break
			}
			log.Printf("duckdb: journal append failed, retrying: %v", err)
			select {
			case <-b.done:
				return
			case <-time.After(200 * time.Millisecond):
			}
		}
	}

	b.mu.Lock()
	b.pending = append(b.pending, journaledEvent{seq: seq, event: ev})
	var batch []journaledEvent
	if len(b.pending) >= b.maxBatch {
		batch = b.pending
		b.pending = make([]journaledEvent, 0, b.maxBatch)
	}
	b.mu.Unlock()

	if batch != nil {
		b.enqueue(batch)
	}
}

// Flushed returns the number of events written so far.
func (b *InsertBuffer) Flushed() int64 {
	return b.flushed.Load()
}

// Stop writes everything still pending and closes the journal. It is safe to
// call more than once.
func (b *InsertBuffer) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		// The ticker's final drain must land before the queue closes.
		b.tickWg.Wait()
		close(b.flushChan)
		b.wg.Wait()
		if b.journal != nil {
			if err := b.journal.Close(); err != nil {
				log.Printf("duckdb: journal close: %v", err)
			}
		}
	})
}

func (b *InsertBuffer) flushBatch(batch []journaledEvent) error {
	if len(batch) == 0 {
		return nil
	}
	events := make([]*model.Event, len(batch))
	var maxSeq uint64
	for i, item := range batch {
		events[i] = item.event
		maxSeq = max(maxSeq, item.seq)
	}

	if err := b.writer.InsertEventBatch(events); err != nil {
		return err
	}
	b.flushed.Add(int64(len(events)))

	if b.journal != nil && maxSeq > 0 {
		if err := b.journal.Commit(maxSeq); err != nil {
			return fmt.Errorf("journal commit seq=%d: %w", maxSeq, err)
		}
	}
	return nil
}

// InsertEventBatch writes events in one transaction. When the batch fails it
// is retried one event at a time so a single bad row does not lose the rest.
func (s *Store) InsertEventBatch(events []*model.Event) error {
	if len(events) == 0 {
		return nil
	}
	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertEventsTx(ctx, events); err == nil {
		return nil
	}

	var failed int
	for _, ev := range events {
		if err := s.insertEventsTx(ctx, []*model.Event{ev}); err != nil {
			failed++
			log.Printf("duckdb: dropping event (run=%s seq=%d): %v", ev.RunID, ev.Seq, err)
		}
	}
	if failed > 0 {
		log.Printf("duckdb: batch partially failed, %d/%d events dropped", failed, len(events))
	}
	return nil
}

func (s *Store) insertEventsTx(ctx context.Context, events []*model.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events (run_id, seq, elapsed_ms, philosopher, kind, timestamp) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		if ev.RunID == "" {
			return fmt.Errorf("event seq=%d has no run id", ev.Seq)
		}
		ts := ev.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, ev.RunID, int64(ev.Seq), ev.Elapsed, ev.Philosopher, string(ev.Kind), ts.UTC()); err != nil {
			return fmt.Errorf("event insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
