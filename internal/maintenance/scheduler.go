// Package maintenance runs the background jobs that keep long-lived process
// state tidy: periodic session-count logging and stale recorder-handle
// pruning. Both are low-priority housekeeping, not part of the RPC surface,
// so they run on their own gocron scheduler rather than blocking a request
// path.
package maintenance

import (
	"context"
	"strconv"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/cake-lab/arflow-go/internal/logging"
	"github.com/cake-lab/arflow-go/internal/recorder"
	"github.com/cake-lab/arflow-go/internal/registry"
)

// Scheduler owns a gocron.Scheduler running the registry stats job and,
// when the adapter is a *recorder.FileAdapter, the stale-handle sweep.
type Scheduler struct {
	sched  gocron.Scheduler
	logger *logging.Logger
}

// New builds a Scheduler. statsInterval logs the active session count at
// that cadence; staleInterval sets how often FileAdapter handles are swept,
// and staleAge is passed to PruneStaleHandles, whose sweep criterion does
// not use it. Either interval may be zero
// to skip the corresponding job. adapter may be any recorder.Adapter; the
// stale-handle sweep is skipped silently for adapters other than
// *recorder.FileAdapter.
func New(reg *registry.Registry, adapter recorder.Adapter, statsInterval, staleInterval, staleAge time.Duration, logger *logging.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = logging.GetLogger("maintenance")
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	m := &Scheduler{sched: s, logger: logger}

	if statsInterval > 0 {
		_, err := s.NewJob(
			gocron.DurationJob(statsInterval),
			gocron.NewTask(func() {
				m.logger.WithField("active_sessions", strconv.Itoa(len(reg.List()))).Info("registry stats")
			}),
		)
		if err != nil {
			return nil, err
		}
	}

	if fa, ok := adapter.(*recorder.FileAdapter); ok && staleInterval > 0 {
		_, err := s.NewJob(
			gocron.DurationJob(staleInterval),
			gocron.NewTask(func() {
				pruned := fa.PruneStaleHandles(staleAge)
				if pruned > 0 {
					m.logger.WithField("pruned", strconv.Itoa(pruned)).Info("pruned stale recorder handles")
				}
			}),
		)
		if err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Start begins running scheduled jobs. Non-blocking.
func (m *Scheduler) Start() {
	m.sched.Start()
}

// Stop shuts the scheduler down, satisfying internal/common.Stoppable. ctx
// is unused since gocron.Shutdown has no cancellation of its own to honor.
func (m *Scheduler) Stop(_ context.Context) error {
	return m.sched.Shutdown()
}
