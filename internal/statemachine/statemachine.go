// Package statemachine is the sole mutator of Session.State (spec §4.3),
// grounded on the explicit from/to transition-table validation style this
// codebase's ancestry uses for its own event routing.
package statemachine

import (
	"context"
	"sync"
	"time"

	"github.com/Alpha-ashu/Candidate-Experience/internal/apierrors"
	"github.com/Alpha-ashu/Candidate-Experience/internal/bus"
	"github.com/Alpha-ashu/Candidate-Experience/internal/domain"
	"github.com/Alpha-ashu/Candidate-Experience/internal/logging"
	"github.com/Alpha-ashu/Candidate-Experience/internal/metrics"
	"github.com/Alpha-ashu/Candidate-Experience/internal/policy"
	"github.com/Alpha-ashu/Candidate-Experience/internal/store"
)

// Cause annotates why a transition happened, fanned out with the event.
type Cause string

const (
	CausePrecheckPassed   Cause = "precheck_passed"
	CauseFirstQuestion    Cause = "first_question"
	CauseMajorStrike      Cause = "major_strike"
	CauseCountdownExpired Cause = "countdown_expired"
	CauseChecksResatisfied Cause = "checks_resatisfied"
	CauseFinalize         Cause = "finalize_requested"
	CauseUserExit         Cause = "user_exit"
	CauseResumeTimeout    Cause = "resume_timeout_exceeded"
)

// transitions enumerates the legal (from, to) pairs of spec §4.3.
var transitions = map[domain.State]map[domain.State]bool{
	domain.StatePendingPrecheck: {domain.StateReady: true},
	domain.StateReady:           {domain.StateActive: true},
	domain.StateActive: {
		domain.StatePaused:    true,
		domain.StateCompleted: true,
		domain.StateEnded:     true,
	},
	domain.StatePaused: {
		domain.StateActive: true,
		domain.StateEnded:  true,
	},
}

// Machine owns every Session.State mutation.
type Machine struct {
	store store.Store
	bus   *bus.Hub
	log   *logging.Logger

	mu        sync.Mutex
	watchdogs map[string]chan struct{} // sessionID -> duration-limit watchdog stop signal
}

// New builds a Machine over the given store and fan-out hub.
func New(st store.Store, b *bus.Hub, log *logging.Logger) *Machine {
	return &Machine{store: st, bus: b, log: log, watchdogs: make(map[string]chan struct{})}
}

func legal(from, to domain.State) bool {
	return transitions[from] != nil && transitions[from][to]
}

// Transition validates and applies from -> to, bumping the token generation
// whenever the session leaves Active. It fans out the new state when that
// state has an event kind (Ready -> Active publishes nothing), and closes
// open duplex streams only when the session reaches Completed or Ended
// (spec §4.3).
func (m *Machine) Transition(ctx context.Context, sessionID string, to domain.State, cause Cause) (*domain.Session, error) {
	var from domain.State
	sess, err := m.store.MutateState(ctx, sessionID, func(s *domain.Session) error {
		if s.State.Terminal() {
			return apierrors.InvalidState(string(s.State), "non-terminal")
		}
		if !legal(s.State, to) {
			return apierrors.InvalidState(string(s.State), string(to))
		}
		from = s.State
		leavingActive := s.State == domain.StateActive && to != domain.StateActive
		s.State = to
		now := time.Now().UTC()
		switch to {
		case domain.StateActive:
			if s.StartedAt == nil {
				s.StartedAt = &now
			}
		case domain.StateCompleted, domain.StateEnded:
			s.EndedAt = &now
		}
		if leavingActive {
			// Invalidates outstanding AIPT/UPT tokens minted under the
			// prior generation; verified at the Token Authority (spec §4.3).
			s.TokenGeneration++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.WithSession(sessionID).WithField("state", to).WithField("cause", cause).Info("session transitioned")

	if to == domain.StateActive {
		metrics.ActiveSessionsInc()
	} else if from == domain.StateActive {
		metrics.ActiveSessionsDec()
	}

	kind := bus.KindForState(to)
	// SESSION_RESUMED only means Paused -> Active; the first entry into
	// Active (Ready -> Active) has no dedicated fan-out kind in spec §4.6.
	if to == domain.StateActive && from != domain.StatePaused {
		kind = ""
	}
	if kind != "" {
		m.bus.Publish(sessionID, bus.Event{Kind: kind, Payload: map[string]any{"state": string(to), "cause": string(cause)}})
	}
	// Paused keeps the duplex stream open (the client still needs to see
	// SESSION_RESUMED or SESSION_ENDED); only truly terminal states close it.
	if to == domain.StateCompleted || to == domain.StateEnded {
		m.bus.CloseSession(sessionID, string(to))
	}

	switch {
	case to == domain.StateActive && from == domain.StateReady:
		m.armDurationWatchdog(sessionID, time.Duration(sess.Config.DurationLimitMinutes)*time.Minute)
	case to == domain.StateCompleted || to == domain.StateEnded:
		m.cancelWatchdog(sessionID)
	}
	return sess, nil
}

// armDurationWatchdog starts the interview's duration countdown when the
// session first enters Active (spec §4.3 "countdown expired"). On expiry,
// a still-Active session pauses; if it is still Paused once the resume
// window (policy.AutoPauseCountdown seconds) lapses, it ends (spec §4.3
// "resume timeout exceeded").
func (m *Machine) armDurationWatchdog(sessionID string, limit time.Duration) {
	m.mu.Lock()
	if _, exists := m.watchdogs[sessionID]; exists {
		m.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	m.watchdogs[sessionID] = stop
	m.mu.Unlock()

	go func() {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		select {
		case <-stop:
			return
		case <-timer.C:
		}

		bg := context.Background()
		sess, err := m.store.GetSession(bg, sessionID)
		if err != nil || sess.State != domain.StateActive {
			// A paused session is already under the anti-cheat engine's
			// escalation; a terminal one is done.
			return
		}
		if _, err := m.Transition(bg, sessionID, domain.StatePaused, CauseCountdownExpired); err != nil {
			m.log.WithSession(sessionID).WithField("err", err).Error("duration-limit pause transition")
			return
		}

		resume := time.NewTimer(policy.AutoPauseCountdown * time.Second)
		defer resume.Stop()
		select {
		case <-stop:
			return
		case <-resume.C:
		}
		sess, err = m.store.GetSession(bg, sessionID)
		if err != nil || sess.State != domain.StatePaused {
			return
		}
		if _, err := m.Transition(bg, sessionID, domain.StateEnded, CauseResumeTimeout); err != nil {
			m.log.WithSession(sessionID).WithField("err", err).Error("resume-timeout end transition")
		}
	}()
}

func (m *Machine) cancelWatchdog(sessionID string) {
	m.mu.Lock()
	stop, ok := m.watchdogs[sessionID]
	if ok {
		delete(m.watchdogs, sessionID)
	}
	m.mu.Unlock()
	if ok {
		close(stop)
	}
}

// RequireState returns apierrors.InvalidState unless the session is
// currently in one of the given states.
func RequireState(s *domain.Session, allowed ...domain.State) error {
	for _, a := range allowed {
		if s.State == a {
			return nil
		}
	}
	want := ""
	for i, a := range allowed {
		if i > 0 {
			want += "|"
		}
		want += string(a)
	}
	return apierrors.InvalidState(string(s.State), want)
}
