package aiproxy

import (
	"context"
	"sync"
	"time"

	"github.com/Alpha-ashu/Candidate-Experience/internal/apierrors"
	"github.com/Alpha-ashu/Candidate-Experience/internal/domain"
	"github.com/Alpha-ashu/Candidate-Experience/internal/logging"
	"github.com/Alpha-ashu/Candidate-Experience/internal/metrics"
)

// Engine wraps a live Provider with per-session single-flight locking and
// a hard timeout that falls back to the deterministic provider rather
// than leaving a candidate staring at a spinner (spec §4.5).
type Engine struct {
	live     Provider
	fallback Provider
	timeout  time.Duration
	log      *logging.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// New builds an Engine. live may be nil (AI_PROVIDER=none), in which case
// every call goes straight to the fallback.
func New(live Provider, timeout time.Duration, log *logging.Logger) *Engine {
	return &Engine{
		live:     live,
		fallback: NewFallback(),
		timeout:  timeout,
		log:      log,
		inFlight: make(map[string]bool),
	}
}

// acquire enforces one in-flight AI call per session (spec §4.5: concurrent
// requests for the same session are rejected, not queued).
func (e *Engine) acquire(sessionID string) (release func(), err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[sessionID] {
		return nil, apierrors.AlreadyInFlight()
	}
	e.inFlight[sessionID] = true
	return func() {
		e.mu.Lock()
		delete(e.inFlight, sessionID)
		e.mu.Unlock()
	}, nil
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.timeout)
}

// GenerateQuestion tries the live provider under the configured timeout,
// falling back on any error (provider disabled, timeout, bad response).
func (e *Engine) GenerateQuestion(ctx context.Context, sessionID string, req QuestionRequest) (domain.Question, bool, error) {
	release, err := e.acquire(sessionID)
	if err != nil {
		return domain.Question{}, false, err
	}
	defer release()

	if e.live != nil {
		tctx, cancel := e.withTimeout(ctx)
		q, err := e.live.GenerateQuestion(tctx, req)
		cancel()
		if err == nil {
			metrics.RecordAICall("generate_question", false)
			return q, false, nil
		}
		e.log.WithSession(sessionID).WithField("err", err).Warn("live question generation failed, using fallback")
	}
	q, err := e.fallback.GenerateQuestion(ctx, req)
	metrics.RecordAICall("generate_question", true)
	return q, true, err
}

// GenerateFeedback behaves like GenerateQuestion for the immediate
// per-answer feedback path.
func (e *Engine) GenerateFeedback(ctx context.Context, sessionID string, req FeedbackRequest) (Feedback, bool, error) {
	release, err := e.acquire(sessionID)
	if err != nil {
		return Feedback{}, false, err
	}
	defer release()

	if e.live != nil {
		tctx, cancel := e.withTimeout(ctx)
		fb, err := e.live.GenerateFeedback(tctx, req)
		cancel()
		if err == nil {
			metrics.RecordAICall("generate_feedback", false)
			return fb, false, nil
		}
		e.log.WithSession(sessionID).WithField("err", err).Warn("live feedback generation failed, using fallback")
	}
	fb, err := e.fallback.GenerateFeedback(ctx, req)
	metrics.RecordAICall("generate_feedback", true)
	return fb, true, err
}

// GenerateSummary behaves like GenerateQuestion for the finalize path, but
// returns no separate fallback bool: the returned Summary.Fallback field
// tells the caller which path produced it.
func (e *Engine) GenerateSummary(ctx context.Context, sessionID string, req SummaryRequest) (domain.Summary, error) {
	release, err := e.acquire(sessionID)
	if err != nil {
		return domain.Summary{}, err
	}
	defer release()

	if e.live != nil {
		tctx, cancel := e.withTimeout(ctx)
		s, err := e.live.GenerateSummary(tctx, req)
		cancel()
		if err == nil {
			metrics.RecordAICall("generate_summary", false)
			return s, nil
		}
		e.log.WithSession(sessionID).WithField("err", err).Warn("live summary generation failed, using fallback")
	}
	s, err := e.fallback.GenerateSummary(ctx, req)
	metrics.RecordAICall("generate_summary", true)
	return s, err
}
