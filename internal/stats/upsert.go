// Package stats provides counters for scene upsert operations.
package stats

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// UpsertStats tracks cumulative statistics for scene upserts.
// All operations are thread-safe using atomic counters.
type UpsertStats struct {
	created int64
	updated int64
}

// NewUpsertStats creates a new UpsertStats instance.
func NewUpsertStats() *UpsertStats {
	return &UpsertStats{}
}

// Record increments the counter matching the upsert outcome.
func (s *UpsertStats) Record(created bool) {
	if created {
		atomic.AddInt64(&s.created, 1)
	} else {
		atomic.AddInt64(&s.updated, 1)
	}
}

// Created returns the total number of scenes created.
func (s *UpsertStats) Created() int64 {
	return atomic.LoadInt64(&s.created)
}

// Updated returns the total number of scenes updated.
func (s *UpsertStats) Updated() int64 {
	return atomic.LoadInt64(&s.updated)
}

// Total returns the total number of upsert operations.
func (s *UpsertStats) Total() int64 {
	return s.Created() + s.Updated()
}

// Reset resets all counters to zero.
func (s *UpsertStats) Reset() {
	atomic.StoreInt64(&s.created, 0)
	atomic.StoreInt64(&s.updated, 0)
}

// String returns a human-readable summary of the statistics.
func (s *UpsertStats) String() string {
	return fmt.Sprintf("created=%d updated=%d total=%d", s.Created(), s.Updated(), s.Total())
}

// LogSummary logs a summary of upsert statistics at INFO level.
func (s *UpsertStats) LogSummary(logger *slog.Logger) {
	logger.Info("scene upsert statistics",
		"created", s.Created(),
		"updated", s.Updated(),
		"total", s.Total(),
	)
}
