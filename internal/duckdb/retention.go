package duckdb

import (
	"log"
	"sync"
	"time"
)

// RetentionConfig controls how long flushed metrics are kept.
type RetentionConfig struct {
	RetentionDays int

	// Every is the sweep period. Zero means hourly.
	Every time.Duration
}

// RetentionCleaner deletes metrics older than the retention window on a
// fixed period.
type RetentionCleaner struct {
	store  *Store
	window time.Duration
	every  time.Duration
	now    func() time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewRetentionCleaner sweeps once immediately and then periodically.
// It returns nil when retention is disabled (RetentionDays <= 0).
func NewRetentionCleaner(store *Store, conf RetentionConfig) *RetentionCleaner {
	if conf.RetentionDays <= 0 {
		return nil
	}
	every := conf.Every
	if every <= 0 {
		every = time.Hour
	}

	rc := &RetentionCleaner{
		store:  store,
		window: time.Duration(conf.RetentionDays) * 24 * time.Hour,
		every:  every,
		now:    time.Now,
		done:   make(chan struct{}),
	}

	rc.Sweep()

	rc.wg.Add(1)
	go rc.loop()
	return rc
}

func (rc *RetentionCleaner) loop() {
	defer rc.wg.Done()
	ticker := time.NewTicker(rc.every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rc.Sweep()
		case <-rc.done:
			return
		}
	}
}

// Sweep deletes everything older than the window and returns the row count.
func (rc *RetentionCleaner) Sweep() int64 {
	cutoff := rc.now().Add(-rc.window)
	n, err := rc.store.DeleteBefore(cutoff)
	if err != nil {
		log.Printf("duckdb: retention sweep error: %v", err)
		return 0
	}
	if n > 0 {
		log.Printf("duckdb: retention sweep deleted %d rows older than %s", n, cutoff.Format(time.RFC3339))
	}
	return n
}

// Stop halts the periodic sweep and waits for it. Safe to call twice.
func (rc *RetentionCleaner) Stop() {
	rc.stopOnce.Do(func() {
		close(rc.done)
		rc.wg.Wait()
	})
}
