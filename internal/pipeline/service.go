package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain"
)

const defaultPollInterval = 10 * time.Second

// Options configures the pipeline service.
type Options struct {
	Gateway Gateway
	History HistoryArchiver
	Logger  zerolog.Logger
	// PollInterval overrides the video job poll cadence. Zero keeps the
	// 10 second default.
	PollInterval time.Duration
}

// Service orchestrates generation batches: it plans poses, generates the
// items one at a time with configurable pacing, and runs regeneration and
// video synthesis for single items concurrently with the main loop.
// One batch is active at a time; starting a new one supersedes the
// previous batch's tracking and cancels its in-flight work.
type Service struct {
	gw           Gateway
	history      HistoryArchiver
	tracker      *Tracker
	logger       zerolog.Logger
	pollInterval time.Duration

	mu       sync.Mutex
	params   domain.BatchParameters
	hasBatch bool
	batchCtx context.Context
	cancel   context.CancelFunc
}

func NewService(opts Options) *Service {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Service{
		gw:           opts.Gateway,
		history:      opts.History,
		tracker:      NewTracker(),
		logger:       opts.Logger,
		pollInterval: interval,
	}
}

// Items returns the current batch snapshot in planning order.
func (s *Service) Items() []domain.Item {
	return s.tracker.List()
}

// Item returns one tracked item.
func (s *Service) Item(id string) (domain.Item, bool) {
	return s.tracker.Get(id)
}

// Params returns the parameters of the current batch, if any.
func (s *Service) Params() (domain.BatchParameters, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params, s.hasBatch
}

// Subscribe streams item state transitions to an observer.
func (s *Service) Subscribe() (<-chan Event, func()) {
	return s.tracker.Subscribe()
}

// Shutdown cancels the current batch and any in-flight item work.
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// session returns the context scoped to the current batch. Item-level
// work derives from it so superseding the batch stops the work.
func (s *Service) session() (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasBatch || s.batchCtx == nil {
		return nil, false
	}
	return s.batchCtx, true
}

// sleep waits for d unless the context ends first. Returns false when
// interrupted.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
