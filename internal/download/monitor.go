package download

import (
	"context"
	"sync"
	"time"

	"github.com/lopugit/ytmcloner/internal/monitoring"
	"go.uber.org/zap"
)

// Completion tells why the monitor stopped
type Completion string

const (
	CompletionNone     Completion = ""
	CompletionSettled  Completion = "settled"
	CompletionStalled  Completion = "stalled"
	CompletionCanceled Completion = "canceled"
)

// Monitor polls Stats, reports progress and flags completion once every
// pair is settled or the counters stop changing for too long. Completion is
// a signal only: outstanding jobs keep running.
type Monitor struct {
	stats      *Stats
	interval   time.Duration
	stallPolls int
	logger     *zap.Logger

	// OnPoll, when set, receives every snapshot before completion is decided
	OnPoll func(Snapshot)

	prev      Snapshot
	havePrev  bool
	sameCount int

	once   sync.Once
	done   chan struct{}
	mu     sync.Mutex
	reason Completion
}

// NewMonitor creates a monitor. stallPolls is the number of unchanged polls
// tolerated; completion is flagged on the one after.
func NewMonitor(stats *Stats, interval time.Duration, stallPolls int, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 2500 * time.Millisecond
	}
	if stallPolls < 1 {
		stallPolls = 30
	}
	return &Monitor{
		stats:      stats,
		interval:   interval,
		stallPolls: stallPolls,
		logger:     monitoring.OrNop(logger),
		done:       make(chan struct{}),
	}
}

// Run polls until completion or ctx is done
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.complete(CompletionCanceled)
			return
		case <-ticker.C:
			if reason := m.Poll(); reason != CompletionNone {
				m.complete(reason)
				return
			}
		}
	}
}

// Poll takes one sample, logs it and returns the completion reason, if any
func (m *Monitor) Poll() Completion {
	snap := m.stats.Snapshot()

	m.logger.Info("Stats",
		zap.Int64("downloaded", snap.Downloaded),
		zap.Int64("remaining", snap.Remaining()),
		zap.Int64("skipped", snap.Skipped),
		zap.Int64("errors", snap.Errors),
		zap.Int64("stored", snap.Stored()),
		zap.Int64("private", snap.Private),
		zap.Int64("total", snap.Total))

	monitoring.UpdateProgress(snap.Downloaded, snap.Skipped, snap.Private, snap.Errors, snap.Total, snap.Remaining())
	if m.OnPoll != nil {
		m.OnPoll(snap)
	}

	if m.havePrev && snap == m.prev {
		m.sameCount++
	} else {
		m.prev = snap
		m.havePrev = true
		m.sameCount = 0
	}

	switch {
	case snap.Settled >= snap.Total:
		m.logger.Info("Finished downloading")
		return CompletionSettled
	case m.sameCount > m.stallPolls:
		m.logger.Warn("No progress observed, treating batch as finished",
			zap.Int("polls", m.sameCount),
			zap.Int64("remaining", snap.Remaining()))
		return CompletionStalled
	}
	return CompletionNone
}

func (m *Monitor) complete(reason Completion) {
	m.once.Do(func() {
		m.mu.Lock()
		m.reason = reason
		m.mu.Unlock()
		close(m.done)
	})
}

// Done is closed once completion was flagged
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Reason returns why the monitor completed
func (m *Monitor) Reason() Completion {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reason
}
