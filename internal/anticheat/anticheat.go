// Package anticheat implements the Anti-Cheat Engine (spec §4.4): batch
// ingestion of signed client events into a tamper-evident hash chain,
// strike derivation against the policy table, and auto-pause/auto-end
// escalation. The engine never mutates Session.State directly — every
// transition is requested through the state machine. Grounded on the
// canonical-encode-then-hash verification shape this codebase's ancestry
// uses for its own chain-of-custody checks, adapted from hashing a
// transaction payload to hashing an anti-cheat event.
package anticheat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Alpha-ashu/Candidate-Experience/internal/apierrors"
	"github.com/Alpha-ashu/Candidate-Experience/internal/bus"
	"github.com/Alpha-ashu/Candidate-Experience/internal/domain"
	"github.com/Alpha-ashu/Candidate-Experience/internal/logging"
	"github.com/Alpha-ashu/Candidate-Experience/internal/metrics"
	"github.com/Alpha-ashu/Candidate-Experience/internal/policy"
	"github.com/Alpha-ashu/Candidate-Experience/internal/statemachine"
	"github.com/Alpha-ashu/Candidate-Experience/internal/store"
)

// Engine ingests anti-cheat batches and derives strikes/escalations.
type Engine struct {
	store store.Store
	sm    *statemachine.Machine
	bus   *bus.Hub
	log   *logging.Logger

	mu       sync.Mutex
	pending  map[string]*countdown // sessionID -> in-flight auto-pause countdown
}

type countdown struct {
	cancel  chan struct{}
	armedBy domain.EventType
}

// New builds an Engine wired to the session store, state machine, and
// fan-out hub.
func New(st store.Store, sm *statemachine.Machine, b *bus.Hub, log *logging.Logger) *Engine {
	return &Engine{
		store:   st,
		sm:      sm,
		bus:     b,
		log:     log,
		pending: make(map[string]*countdown),
	}
}

// canonical produces the deterministic byte form of one link in the chain
// (spec §4.4 step 4): sessionId, seq, type, details, ts, prevHash.
func canonical(e domain.AntiCheatEvent) ([]byte, error) {
	detail, err := json.Marshal(e.Details)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("%s|%d|%s|%s|%d|%s",
		e.SessionID, e.Seq, e.Type, detail, e.Timestamp.UTC().UnixNano(), e.PrevHash)), nil
}

func hashOf(e domain.AntiCheatEvent) (string, error) {
	b, err := canonical(e)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// IngestBatch validates and appends a batch of client-reported events,
// rejecting on any chain break (spec §4.4 steps 1-3), then evaluates each
// event against the policy table in order, deriving strikes and requesting
// state transitions as needed (steps 4-5). Never called concurrently for
// the same session by the gateway (one in-flight batch per session).
func (e *Engine) IngestBatch(ctx context.Context, sessionID string, events []domain.AntiCheatEvent) (store.AppendResult, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return store.AppendResult{}, err
	}
	if sess.State.Terminal() {
		return store.AppendResult{}, apierrors.InvalidState(string(sess.State), "non-terminal")
	}
	if len(events) == 0 {
		return store.AppendResult{}, apierrors.ValidationFailed("events", "batch must be non-empty")
	}

	tail, err := e.store.Tail(ctx, sessionID)
	if err != nil {
		return store.AppendResult{}, err
	}

	if events[0].Seq != tail.TailSeq+1 || events[0].PrevHash != tail.TailHash {
		return store.AppendResult{}, apierrors.ChainBroken(tail.TailSeq, tail.TailHash)
	}

	hashes := make([]string, len(events))
	for i, ev := range events {
		if i > 0 {
			if ev.Seq != events[i-1].Seq+1 || ev.PrevHash != hashes[i-1] {
				return store.AppendResult{}, apierrors.ChainBroken(tail.TailSeq, tail.TailHash)
			}
		}
		h, err := hashOf(ev)
		if err != nil {
			return store.AppendResult{}, apierrors.Wrap(apierrors.KindValidationFailed, "encode event", err)
		}
		hashes[i] = h
	}

	result, err := e.store.AppendAntiCheatBatch(ctx, sessionID, events, hashes[len(hashes)-1])
	if err != nil {
		return store.AppendResult{}, err
	}

	for _, ev := range events {
		e.evaluate(ctx, sessionID, ev)
	}
	return result, nil
}

// evaluate applies the policy table to a single accepted event. Errors are
// logged, not surfaced: the batch has already been durably persisted by
// the time evaluation runs.
//
// Minor events (FACE_MISSING, BLUR) never end a session on their own: they
// accumulate toward a combined minor count that auto-pauses once it hits
// policy.MinorAutoPauseThreshold. Major events escalate per their own
// type: FS_EXIT pauses on its first occurrence and ends on its second;
// SCREENSHOT_ATTEMPT and MULTI_FACE end outright on their first;
// TAB_SWITCH and BG_VOICE warn on the first and end on the second.
//
// Every auto-pause arms the escalation timer. A countdown cancelled by its
// type-specific rescinding event resumes the session; one that fires ends
// it. A pause with no rescinding event type (the minor-accumulation pause)
// can only be resumed by re-satisfying the checks through precheck before
// the timer fires.
func (e *Engine) evaluate(ctx context.Context, sessionID string, ev domain.AntiCheatEvent) {
	for _, r := range policy.Table {
		if r.Rescinds == ev.Type {
			// Rescission is type-specific: cancel only a countdown armed by
			// the rule this event rescinds. A live cancel means the
			// violating condition cleared in time, so the session returns
			// to Active.
			if e.cancelCountdownFor(sessionID, r.Type) {
				if _, err := e.sm.Transition(ctx, sessionID, domain.StateActive, statemachine.CauseChecksResatisfied); err != nil {
					e.log.WithSession(sessionID).WithField("err", err).Error("rescind resume transition")
				}
			}
		}
	}

	rule, ok := policy.Table[ev.Type]
	if !ok {
		return // a rescinding-only signal (e.g. FS_READY), not itself a strike
	}

	var action domain.Action
	switch rule.Severity {
	case domain.SeverityMinor:
		sess, err := e.store.GetSession(ctx, sessionID)
		if err != nil {
			e.log.WithSession(sessionID).WithField("err", err).Error("load session for policy evaluation")
			return
		}
		if (sess.StrikeMinorCount+1)%policy.MinorAutoPauseThreshold == 0 {
			action = domain.ActionPause
		}
	case domain.SeverityMajor:
		occurrence, err := e.occurrenceCount(ctx, sessionID, ev.Type)
		if err != nil {
			e.log.WithSession(sessionID).WithField("err", err).Error("load strikes for policy evaluation")
			return
		}
		switch {
		case rule.EndOnOccurrence > 0 && occurrence >= rule.EndOnOccurrence:
			action = domain.ActionEnd
		case rule.ArmsCountdown:
			action = domain.ActionPause
		}
	}

	strike := domain.Strike{
		SessionID:     sessionID,
		Severity:      rule.Severity,
		Type:          ev.Type,
		TriggeringSeq: ev.Seq,
		Action:        action,
		CreatedAt:     time.Now().UTC(),
	}
	if _, err := e.store.AppendStrike(ctx, sessionID, strike); err != nil {
		e.log.WithSession(sessionID).WithField("err", err).Error("persist strike")
		return
	}
	metrics.RecordStrike(string(ev.Type), string(rule.Severity), string(action))
	e.bus.Publish(sessionID, bus.Event{Kind: bus.KindStrikeCreated, Payload: map[string]any{
		"type": string(ev.Type), "severity": string(rule.Severity), "action": string(action),
	}})

	switch action {
	case domain.ActionEnd:
		e.cancelCountdown(sessionID)
		if _, err := e.sm.Transition(ctx, sessionID, domain.StateEnded, statemachine.CauseMajorStrike); err != nil {
			e.log.WithSession(sessionID).WithField("err", err).Error("auto-end transition")
		}
	case domain.ActionPause:
		// Every auto-pause arms the escalation timer; which event type can
		// rescind it depends on what armed it (spec §4.4).
		e.startCountdown(ctx, sessionID, ev.Type)
		if _, err := e.sm.Transition(ctx, sessionID, domain.StatePaused, statemachine.CauseMajorStrike); err != nil {
			e.log.WithSession(sessionID).WithField("err", err).Error("auto-pause transition")
		}
	}
}

// occurrenceCount returns how many strikes of the given type this session
// already has, plus the one about to be recorded.
func (e *Engine) occurrenceCount(ctx context.Context, sessionID string, t domain.EventType) (int, error) {
	strikes, err := e.store.GetStrikes(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	occurrence := 1
	for _, s := range strikes {
		if s.Type == t {
			occurrence++
		}
	}
	return occurrence, nil
}

// startCountdown arms a rescindable auto-pause-to-auto-end escalation: if
// not cancelled by a rescinding event or a concurrent transition within
// policy.AutoPauseCountdown seconds, the session auto-ends (spec §4.4, §5:
// "fires exactly once otherwise").
// startCountdown ignores the caller's context: it arms a timer that must
// still fire 10s after the request that triggered it has completed, and an
// HTTP handler's context is cancelled the moment its response is written.
func (e *Engine) startCountdown(_ context.Context, sessionID string, armedBy domain.EventType) {
	e.mu.Lock()
	if _, exists := e.pending[sessionID]; exists {
		e.mu.Unlock()
		return
	}
	cd := &countdown{cancel: make(chan struct{}), armedBy: armedBy}
	e.pending[sessionID] = cd
	e.mu.Unlock()

	go func() {
		timer := time.NewTimer(policy.AutoPauseCountdown * time.Second)
		defer timer.Stop()
		select {
		case <-cd.cancel:
			return
		case <-timer.C:
		}

		e.mu.Lock()
		if e.pending[sessionID] != cd {
			e.mu.Unlock()
			return
		}
		delete(e.pending, sessionID)
		e.mu.Unlock()

		bg := context.Background()
		sess, err := e.store.GetSession(bg, sessionID)
		if err != nil || sess.State != domain.StatePaused {
			return // already left Paused by a concurrent transition
		}
		if _, err := e.sm.Transition(bg, sessionID, domain.StateEnded, statemachine.CauseResumeTimeout); err != nil {
			e.log.WithSession(sessionID).WithField("err", err).Error("countdown auto-end transition")
		}
	}()
}

// cancelCountdown stops a pending auto-end countdown regardless of which
// event armed it, reporting whether one was actually live (false when it
// already fired or never existed).
func (e *Engine) cancelCountdown(sessionID string) bool {
	return e.cancel(sessionID, "")
}

// cancelCountdownFor stops a pending countdown only if it was armed by the
// given event type.
func (e *Engine) cancelCountdownFor(sessionID string, armedBy domain.EventType) bool {
	return e.cancel(sessionID, armedBy)
}

func (e *Engine) cancel(sessionID string, armedBy domain.EventType) bool {
	e.mu.Lock()
	cd, ok := e.pending[sessionID]
	if ok && armedBy != "" && cd.armedBy != armedBy {
		ok = false
	}
	if ok {
		delete(e.pending, sessionID)
	}
	e.mu.Unlock()
	if ok {
		close(cd.cancel)
	}
	return ok
}
