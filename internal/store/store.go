// Package store implements the Session Store (spec §4.2): authoritative
// persistence for sessions, questions, answers, anti-cheat events, and
// summaries, enforcing the append-only invariants of spec §3.
package store

import (
	"context"
	"time"

	"github.com/Alpha-ashu/Candidate-Experience/internal/domain"
)

// AppendResult is returned by AppendAntiCheatBatch (spec §4.2).
type AppendResult struct {
	TailSeq  int64
	TailHash string
}

// Store is the authoritative persistence contract. All write paths are
// serialized per session, either by an internal per-session mutex (the
// memory implementation) or by an equivalent transactional guard (the
// Postgres implementation).
type Store interface {
	CreateSession(ctx context.Context, owner string, cfg domain.Config) (*domain.Session, error)
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// MutateState is the only entry point that changes Session.State; it
	// is invoked by the state machine, never directly by a handler.
	MutateState(ctx context.Context, sessionID string, mutate func(s *domain.Session) error) (*domain.Session, error)

	AppendQuestion(ctx context.Context, sessionID string, draft domain.Question) (*domain.Question, error)
	GetQuestions(ctx context.Context, sessionID string) ([]domain.Question, error)
	GetQuestion(ctx context.Context, sessionID, questionID string) (*domain.Question, error)

	AppendAnswer(ctx context.Context, sessionID string, answer domain.Answer) (*domain.Answer, error)
	GetAnswers(ctx context.Context, sessionID string) ([]domain.Answer, error)

	// AppendAntiCheatBatch persists events atomically and advances the tail
	// to (events[last].Seq, tailHash). tailHash is supplied by the caller
	// (the anti-cheat engine owns canonical encoding and hashing); the
	// store only trusts and records it.
	AppendAntiCheatBatch(ctx context.Context, sessionID string, events []domain.AntiCheatEvent, tailHash string) (AppendResult, error)
	Tail(ctx context.Context, sessionID string) (AppendResult, error)

	GetEvents(ctx context.Context, sessionID string) ([]domain.AntiCheatEvent, error)

	AppendStrike(ctx context.Context, sessionID string, strike domain.Strike) (*domain.Strike, error)
	GetStrikes(ctx context.Context, sessionID string) ([]domain.Strike, error)

	WriteSummary(ctx context.Context, sessionID string, summary domain.Summary) (*domain.Summary, error)
	GetSummary(ctx context.Context, sessionID string) (*domain.Summary, error)

	// IssueUploadCapability / ConsumeUploadCapability back the one-shot UPT
	// contract; RecordUploadRef stores the opaque blob reference produced
	// by a successful upload against the consumed capability.
	IssueUploadCapability(ctx context.Context, sessionID, tokenID string, ttl time.Duration) error
	ConsumeUploadCapability(ctx context.Context, tokenID string) (bool, error)
	RecordUploadRef(ctx context.Context, tokenID, ref string) error

	// ListSessionsForRetention returns terminal sessions older than cutoff,
	// used by the retention sweeper.
	ListSessionsForRetention(ctx context.Context, cutoff time.Time) ([]string, error)
	ClearUploadRefs(ctx context.Context, sessionID string) error
}
