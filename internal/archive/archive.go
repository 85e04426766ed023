package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Doesntmeananything/sashay/internal/store"
)

// Destination is a single archive target (S3, local file).
type Destination interface {
	// Write sends the JSONL payload to the destination.
	Write(ctx context.Context, data []byte) error
}

// Scheduler runs periodic archive exports to one or more destinations.
type Scheduler struct {
	store        store.Store
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	lastArchived int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that exports the event log to the given
// destinations at the specified interval.
func NewScheduler(s store.Store, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:        s,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
}

// Start begins periodic archiving. It runs an initial export immediately,
// then on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current export (if any) to
// finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.archiveOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.archiveOnce(ctx)
		}
	}
}

// archiveOnce exports the log and ships it. The export is skipped when the
// watermark has not moved since the last successful run.
func (s *Scheduler) archiveOnce(ctx context.Context) {
	watermark, err := s.store.LatestEventID(ctx)
	if err != nil {
		s.logger.Error("archive watermark check failed", "err", err)
		return
	}
	if watermark == s.lastArchived {
		return
	}

	var buf bytes.Buffer
	if err := ExportJSONL(ctx, s.store, &buf); err != nil {
		s.logger.Error("archive export failed", "err", err)
		return
	}
	data := buf.Bytes()

	failed := false
	for i, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			failed = true
			s.logger.Error("archive destination write failed", "destination", fmt.Sprintf("%d", i), "err", err)
		}
	}
	if !failed {
		s.lastArchived = watermark
	}

	s.logger.Info("archive completed",
		"destinations", len(s.destinations),
		"bytes", len(data),
		"last_sync_id", watermark)
}
