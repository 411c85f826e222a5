package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/OracleRouter/internal/config"
	"github.com/BTreeMap/OracleRouter/internal/models"
	"github.com/BTreeMap/OracleRouter/internal/util"
)

// ErrQueueFull is returned by the Enqueue helpers when the shard buffer is full.
var ErrQueueFull = errors.New("write queue full")

// Write job kinds.
const (
	KindProfile    = "profile"
	KindFlowRecord = "flow_record"
	KindDecision   = "decision"
)

type writeJob struct {
	kind   string
	userID string
	exec   func(ctx context.Context, s Store) error
}

// Writer is a sharded write-behind queue in front of a Store. Jobs for the same user
// land on the same shard, so their writes are applied in enqueue order.
type Writer struct {
	store   Store
	cfg     config.WriterConfig
	shards  []chan writeJob
	pending atomic.Int64
	dropped atomic.Int64
}

// NewWriter creates a writer. Call Run to start draining it.
func NewWriter(s Store, cfg config.WriterConfig) *Writer {
	if cfg.Shards <= 0 {
		cfg.Shards = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	w := &Writer{store: s, cfg: cfg, shards: make([]chan writeJob, cfg.Shards)}
	for i := range w.shards {
		w.shards[i] = make(chan writeJob, cfg.QueueSize)
	}
	return w
}

// EnqueueProfile schedules a profile snapshot write. The profile must not be mutated afterwards.
func (w *Writer) EnqueueProfile(profile *models.UserFlowProfile) error {
	return w.enqueue(writeJob{
		kind:   KindProfile,
		userID: profile.UserID,
		exec: func(ctx context.Context, s Store) error {
			return s.SaveProfile(ctx, profile)
		},
	})
}

// EnqueueFlowRecord schedules an append to the flow record log.
func (w *Writer) EnqueueFlowRecord(userID string, record models.FlowRecord) error {
	return w.enqueue(writeJob{
		kind:   KindFlowRecord,
		userID: userID,
		exec: func(ctx context.Context, s Store) error {
			return s.AppendFlowRecord(ctx, userID, record)
		},
	})
}

// EnqueueDecision schedules a routing decision write.
func (w *Writer) EnqueueDecision(decision models.RoutingDecision) error {
	return w.enqueue(writeJob{
		kind:   KindDecision,
		userID: decision.UserID,
		exec: func(ctx context.Context, s Store) error {
			return s.SaveDecision(ctx, decision)
		},
	})
}

// enqueue never blocks; a full shard drops the job.
func (w *Writer) enqueue(job writeJob) error {
	shard := util.ShardFor(job.userID, len(w.shards))
	w.pending.Add(1)
	select {
	case w.shards[shard] <- job:
		return nil
	default:
		w.pending.Add(-1)
		w.dropped.Add(1)
		slog.Warn("Writer.enqueue: queue full, dropping write", "kind", job.kind, "userID", job.userID, "shard", shard)
		return fmt.Errorf("%w: shard %d", ErrQueueFull, shard)
	}
}

// Pending returns the number of accepted jobs not yet finished.
func (w *Writer) Pending() int {
	return int(w.pending.Load())
}

// Dropped returns the number of jobs rejected because a shard was full.
func (w *Writer) Dropped() int {
	return int(w.dropped.Load())
}

// Run starts one worker per shard. It blocks until the context is cancelled and
// every queued job has been attempted.
func (w *Writer) Run(ctx context.Context) error {
	slog.Info("Writer.Run: starting write-behind queue", "shards", len(w.shards), "queueSize", w.cfg.QueueSize)
	g, gctx := errgroup.WithContext(ctx)
	for i := range w.shards {
		ch := w.shards[i]
		g.Go(func() error {
			w.work(gctx, ch)
			return nil
		})
	}
	err := g.Wait()
	slog.Info("Writer.Run: stopped", "pending", w.Pending(), "dropped", w.Dropped())
	return err
}

func (w *Writer) work(ctx context.Context, ch chan writeJob) {
	for {
		select {
		case <-ctx.Done():
			w.drain(context.WithoutCancel(ctx), ch)
			return
		case job := <-ch:
			w.execute(ctx, job)
		}
	}
}

// drain attempts each remaining job once.
func (w *Writer) drain(ctx context.Context, ch chan writeJob) {
	for {
		select {
		case job := <-ch:
			if err := job.exec(ctx, w.store); err != nil {
				slog.Error("Writer.drain: write failed during shutdown", "kind", job.kind, "userID", job.userID, "error", err)
			}
			w.pending.Add(-1)
		default:
			return
		}
	}
}

func (w *Writer) execute(ctx context.Context, job writeJob) {
	defer w.pending.Add(-1)
	for attempt := 1; ; attempt++ {
		err := job.exec(ctx, w.store)
		if err == nil {
			slog.Debug("Writer.execute: write applied", "kind", job.kind, "userID", job.userID, "attempt", attempt)
			return
		}
		if attempt >= w.cfg.MaxAttempts {
			slog.Error("Writer.execute: giving up on write", "kind", job.kind, "userID", job.userID, "attempts", attempt, "error", err)
			return
		}
		backoff := w.backoff(attempt)
		slog.Warn("Writer.execute: write failed, retrying", "kind", job.kind, "userID", job.userID, "attempt", attempt, "backoff", backoff, "error", err)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			// Final attempt on shutdown.
			if err := job.exec(context.WithoutCancel(ctx), w.store); err != nil {
				slog.Error("Writer.execute: write failed at shutdown", "kind", job.kind, "userID", job.userID, "error", err)
			}
			return
		case <-timer.C:
		}
	}
}

// backoff doubles from BaseBackoff and is capped at MaxBackoff.
func (w *Writer) backoff(attempt int) time.Duration {
	d := w.cfg.BaseBackoff
	if d <= 0 {
		d = 100 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		d *= 2
		if w.cfg.MaxBackoff > 0 && d >= w.cfg.MaxBackoff {
			return w.cfg.MaxBackoff
		}
	}
	return d
}
