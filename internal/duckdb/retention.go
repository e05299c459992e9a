package duckdb

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// DefaultRetentionDays is used when no RetentionConfig is given.
const DefaultRetentionDays = 30

// RetentionConfig configures the retention cleaner.
type RetentionConfig struct {
	RetentionDays int
	Interval      time.Duration
}

// DeleteBefore removes finished runs that ended before cutoff together with
// their events, and returns the number of runs removed. Runs still in
// progress are never deleted.
func (s *Store) DeleteBefore(cutoff time.Time) (int64, error) {
	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	const expired = `SELECT id FROM runs WHERE finished_at IS NOT NULL AND finished_at < ?`
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE run_id IN (`+expired+`)`, cutoff.UTC()); err != nil {
		return 0, fmt.Errorf("duckdb: delete expired events: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE finished_at IS NOT NULL AND finished_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("duckdb: delete expired runs: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// RetentionCleaner deletes expired runs at startup and then on an interval.
type RetentionCleaner struct {
	store    *Store
	days     int
	interval time.Duration
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewRetentionCleaner starts a cleaner, or returns nil when retention is disabled
// (RetentionDays <= 0).
func NewRetentionCleaner(store *Store, conf ...RetentionConfig) *RetentionCleaner {
	c := RetentionConfig{RetentionDays: DefaultRetentionDays}
	if len(conf) > 0 {
		c = conf[0]
	}
	if c.RetentionDays <= 0 {
		return nil
	}
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}

	rc := &RetentionCleaner{
		store:    store,
		days:     c.RetentionDays,
		interval: c.Interval,
		done:     make(chan struct{}),
	}
	rc.cleanup()

	rc.wg.Add(1)
	go rc.loop()
	return rc
}

func (rc *RetentionCleaner) loop() {
	defer rc.wg.Done()
	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rc.cleanup()
		case <-rc.done:
			return
		}
	}
}

func (rc *RetentionCleaner) cleanup() {
	cutoff := time.Now().Add(-time.Duration(rc.days) * 24 * time.Hour)
	n, err := rc.store.DeleteBefore(cutoff)
	if err != nil {
		log.Printf("duckdb: retention cleanup error: %v", err)
		return
	}
	if n > 0 {
		log.Printf("duckdb: retention cleanup deleted %d runs older than %d days", n, rc.days)
	}
}

// Stop halts the cleaner. It is safe to call more than once and on a nil cleaner.
func (rc *RetentionCleaner) Stop() {
	if rc == nil {
		return
	}
	rc.stopOnce.Do(func() {
		close(rc.done)
		rc.wg.Wait()
	})
}
