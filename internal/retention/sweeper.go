// Package retention implements the upload-reference retention sweep (spec
// §4.2, §13 Open Question 3): terminal sessions older than a configured
// window have their media upload references cleared on a schedule. The
// teacher repo declares github.com/robfig/cron/v3 in its go.mod but never
// actually schedules anything with it in production code (it only turns up
// in two of its own test-file comments) — this package is where that
// dependency finally gets exercised, driven directly off cron's own
// AddFunc/Start API rather than a hand-rolled ticker loop.
package retention

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Alpha-ashu/Candidate-Experience/internal/logging"
	"github.com/Alpha-ashu/Candidate-Experience/internal/store"
)

// Sweeper periodically clears upload references from sessions that ended
// more than Window ago. It never deletes session records themselves —
// only the media-upload pointers spec §4.2 says must not outlive the
// retention window.
type Sweeper struct {
	st     store.Store
	log    *logging.Logger
	window time.Duration
	cron   *cron.Cron
}

// New builds a Sweeper. window controls how old a terminal session must be
// before its upload refs are cleared; the sweep cadence itself is set by
// Start's interval argument.
func New(st store.Store, log *logging.Logger, window time.Duration) *Sweeper {
	return &Sweeper{
		st:     st,
		log:    log,
		window: window,
		cron:   cron.New(cron.WithParser(cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
	}
}

// Start schedules the sweep at the given interval and runs it once
// immediately so a freshly deployed server doesn't wait a full interval
// before its first sweep. It returns once the job is registered; the
// schedule itself runs on cron's own goroutine until Stop is called.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) error {
	spec := "@every " + interval.String()
	if _, err := s.cron.AddFunc(spec, func() { s.sweepOnce(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	go s.sweepOnce(ctx)
	return nil
}

// Stop halts the schedule, waiting for any in-flight sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.window)
	ids, err := s.st.ListSessionsForRetention(ctx, cutoff)
	if err != nil {
		s.log.WithField("err", err).Error("retention sweep: list sessions")
		return
	}
	if len(ids) == 0 {
		return
	}
	cleared := 0
	for _, id := range ids {
		if err := s.st.ClearUploadRefs(ctx, id); err != nil {
			s.log.WithSession(id).WithField("err", err).Error("retention sweep: clear upload refs")
			continue
		}
		cleared++
	}
	s.log.WithField("cleared", cleared).WithField("cutoff", cutoff).Info("retention sweep complete")
}
