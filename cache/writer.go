package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type tier uint8

const (
	tierPosts tier = iota
	tierFollowing
)

type jobKind uint8

const (
	jobSave jobKind = iota
	jobDelete
	jobFlush
)

type writeJob struct {
	kind     jobKind
	key      string
	viewerID string
	tier     tier
	gen      uint64
	data     []byte
	ack      chan struct{}
}

// snapshotWriter is the only goroutine that talks to the snapshot store.
// Jobs are processed in order, so a delete queued after a save wins.
type snapshotWriter struct {
	store   SnapshotStore
	ttl     time.Duration
	logger  zerolog.Logger
	current func(tier, string) uint64

	mu     sync.RWMutex
	closed bool
	jobs   chan writeJob
	done   chan struct{}
}

func newSnapshotWriter(store SnapshotStore, ttl time.Duration, size int, logger zerolog.Logger, current func(tier, string) uint64) *snapshotWriter {
	w := &snapshotWriter{
		store:   store,
		ttl:     ttl,
		logger:  logger,
		current: current,
		jobs:    make(chan writeJob, size),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *snapshotWriter) run() {
	defer close(w.done)
	for job := range w.jobs {
		w.handle(job)
	}
}

func (w *snapshotWriter) handle(job writeJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch job.kind {
	case jobFlush:
		close(job.ack)
	case jobSave:
		if w.current(job.tier, job.viewerID) != job.gen {
			snapshotOps.WithLabelValues("save", "stale").Inc()
			return
		}
		if err := w.store.Save(ctx, job.key, job.data, w.ttl); err != nil {
			snapshotOps.WithLabelValues("save", "error").Inc()
			w.logger.Warn().Err(err).Str("key", job.key).Msg("snapshot save failed")
			return
		}
		snapshotOps.WithLabelValues("save", "ok").Inc()
	case jobDelete:
		if err := w.store.Delete(ctx, job.key); err != nil {
			snapshotOps.WithLabelValues("delete", "error").Inc()
			w.logger.Warn().Err(err).Str("key", job.key).Msg("snapshot delete failed")
			return
		}
		snapshotOps.WithLabelValues("delete", "ok").Inc()
	}
}

// save queues a write without blocking. Snapshots are best effort, so a
// full queue drops the write.
func (w *snapshotWriter) save(key, viewerID string, t tier, gen uint64, data []byte) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	select {
	case w.jobs <- writeJob{kind: jobSave, key: key, viewerID: viewerID, tier: t, gen: gen, data: data}:
	default:
		snapshotOps.WithLabelValues("save", "dropped").Inc()
		w.logger.Warn().Str("key", key).Msg("snapshot queue full, dropping write")
	}
}

// remove queues a delete. Deletes block on a full queue since a missed
// delete would resurrect invalidated data on restore.
func (w *snapshotWriter) remove(key string) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	w.jobs <- writeJob{kind: jobDelete, key: key}
}

func (w *snapshotWriter) flush(ctx context.Context) error {
	ack := make(chan struct{})

	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return nil
	}
	select {
	case w.jobs <- writeJob{kind: jobFlush, ack: ack}:
		w.mu.RUnlock()
	case <-ctx.Done():
		w.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *snapshotWriter) close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()
	<-w.done
}
