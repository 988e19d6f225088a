// Package bus implements the per-session Event Bus / Fan-Out (spec §4.6):
// an ordered in-memory event log per session, feeding duplex client
// streams, with slow subscribers dropped rather than back-pressuring the
// publisher. Grounded on the channel-based dispatcher/queue/worker shape
// this codebase's ancestry uses for its own contract-event dispatcher.
package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Alpha-ashu/Candidate-Experience/internal/domain"
	"github.com/Alpha-ashu/Candidate-Experience/internal/logging"
)

// Kind enumerates the fan-out event kinds of spec §4.6.
type Kind string

const (
	KindQuestionCreated  Kind = "QUESTION_CREATED"
	KindAnswerRecorded   Kind = "ANSWER_RECORDED"
	KindStrikeCreated    Kind = "STRIKE_CREATED"
	KindSessionPaused    Kind = "SESSION_PAUSED"
	KindSessionResumed   Kind = "SESSION_RESUMED"
	KindSessionEnded     Kind = "SESSION_ENDED"
	KindSessionCompleted Kind = "SESSION_COMPLETED"
	KindFeedbackCreated  Kind = "FEEDBACK_CREATED"
)

// KindForState maps a new session state to its fan-out event kind, empty
// for states with no dedicated kind (Ready has none in spec §4.6).
func KindForState(s domain.State) Kind {
	switch s {
	case domain.StatePaused:
		return KindSessionPaused
	case domain.StateActive:
		return KindSessionResumed
	case domain.StateEnded:
		return KindSessionEnded
	case domain.StateCompleted:
		return KindSessionCompleted
	default:
		return ""
	}
}

// Event is one fan-out frame. ID is a per-process monotonic sequence used
// for "since" replay by reconnecting clients.
type Event struct {
	ID      int64          `json:"id"`
	Kind    Kind           `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
	At      time.Time      `json:"at"`
}

const ringCapacity = 256

// session holds one session's ordered ring buffer and subscriber set.
type session struct {
	mu   sync.Mutex
	ring []Event
	subs map[*Subscriber]struct{}
}

// Subscriber is a single duplex connection's inbound event channel.
type Subscriber struct {
	ch     chan Event
	closed chan string // carries the terminal reason, closed exactly once
	once   sync.Once
}

// Events returns the channel to range over for delivery.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// Closed fires with a terminal reason ("slow_consumer", a state name, or "").
func (s *Subscriber) Closed() <-chan string { return s.closed }

func (s *Subscriber) terminate(reason string) {
	s.once.Do(func() {
		s.closed <- reason
		close(s.closed)
		close(s.ch)
	})
}

// Hub fans out events per session.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*session
	seq      int64
	log      *logging.Logger
}

// NewHub builds an empty, single-process fan-out hub. bus.RedisHub is the
// Redis-backed variant for multi-instance deployments; it has its own
// Publish/Subscribe signatures and shares no interface with Hub, so it is
// not a drop-in replacement (spec §4.6 multi-instance note).
func NewHub(log *logging.Logger) *Hub {
	return &Hub{sessions: make(map[string]*session), log: log}
}

func (h *Hub) sessionFor(id string) *session {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	if !ok {
		s = &session{subs: make(map[*Subscriber]struct{})}
		h.sessions[id] = s
	}
	return s
}

// Publish appends an event to the session's ring and pushes it to every
// subscriber without blocking; a subscriber whose channel is full is
// dropped with "slow_consumer" (spec §4.6).
func (h *Hub) Publish(sessionID string, e Event) Event {
	e.ID = atomic.AddInt64(&h.seq, 1)
	e.At = time.Now().UTC()

	s := h.sessionFor(sessionID)
	s.mu.Lock()
	s.ring = append(s.ring, e)
	if len(s.ring) > ringCapacity {
		s.ring = s.ring[len(s.ring)-ringCapacity:]
	}
	subs := make([]*Subscriber, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- e:
		default:
			h.dropSlow(sessionID, sub)
		}
	}
	return e
}

func (h *Hub) dropSlow(sessionID string, sub *Subscriber) {
	s := h.sessionFor(sessionID)
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
	sub.terminate("slow_consumer")
	if h.log != nil {
		h.log.WithSession(sessionID).Warn("dropped slow fan-out subscriber")
	}
}

// Subscribe registers a new subscriber, optionally replaying buffered
// events with ID > since.
func (h *Hub) Subscribe(sessionID string, since int64) *Subscriber {
	sub := &Subscriber{ch: make(chan Event, 64), closed: make(chan string, 1)}
	s := h.sessionFor(sessionID)
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	var replay []Event
	for _, e := range s.ring {
		if e.ID > since {
			replay = append(replay, e)
		}
	}
	s.mu.Unlock()

	for _, e := range replay {
		select {
		case sub.ch <- e:
		default:
		}
	}
	return sub
}

// Unsubscribe removes a subscriber without marking it slow_consumer.
func (h *Hub) Unsubscribe(sessionID string, sub *Subscriber) {
	s := h.sessionFor(sessionID)
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
	sub.terminate("")
}

// CloseSession terminates every subscriber for a session with a terminal
// reason (the state name) — called when a session leaves Active for a
// non-Active state (spec §4.3, §5).
func (h *Hub) CloseSession(sessionID, reason string) {
	s := h.sessionFor(sessionID)
	s.mu.Lock()
	subs := make([]*Subscriber, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subs = make(map[*Subscriber]struct{})
	s.mu.Unlock()

	for _, sub := range subs {
		sub.terminate(reason)
	}
}
