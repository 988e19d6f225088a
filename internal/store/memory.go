package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Alpha-ashu/Candidate-Experience/internal/apierrors"
	"github.com/Alpha-ashu/Candidate-Experience/internal/domain"
)

// record bundles a session with its dependent append-only collections and
// the per-session mutex serializing every write path (spec §4.2, §5).
type record struct {
	mu sync.Mutex

	session   domain.Session
	questions []domain.Question
	answers   map[string]domain.Answer // keyed by question id
	events    []domain.AntiCheatEvent
	strikes   []domain.Strike
	summary   *domain.Summary
	uploads   map[string]*domain.UploadCapability
}

// Memory is the default, single-process Session Store implementation.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*record
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*record)}
}

func (m *Memory) get(sessionID string) (*record, error) {
	m.mu.RLock()
	r, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, apierrors.NotFound("session", sessionID)
	}
	return r, nil
}

func (m *Memory) CreateSession(_ context.Context, owner string, cfg domain.Config) (*domain.Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apierrors.ValidationFailed("config", err.Error())
	}
	s := domain.Session{
		ID:        uuid.NewString(),
		Owner:     owner,
		Config:    cfg,
		State:     domain.StatePendingPrecheck,
		CreatedAt: time.Now().UTC(),
	}
	r := &record{session: s, answers: make(map[string]domain.Answer), uploads: make(map[string]*domain.UploadCapability)}
	m.mu.Lock()
	m.sessions[s.ID] = r
	m.mu.Unlock()
	out := s
	return &out, nil
}

func (m *Memory) GetSession(_ context.Context, sessionID string) (*domain.Session, error) {
	r, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.session
	return &out, nil
}

func (m *Memory) MutateState(_ context.Context, sessionID string, mutate func(s *domain.Session) error) (*domain.Session, error) {
	r, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := mutate(&r.session); err != nil {
		return nil, err
	}
	out := r.session
	return &out, nil
}

func (m *Memory) AppendQuestion(_ context.Context, sessionID string, draft domain.Question) (*domain.Question, error) {
	r, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session.State.Terminal() {
		return nil, apierrors.InvalidState(string(r.session.State), string(domain.StateActive))
	}
	if r.session.State != domain.StateActive {
		return nil, apierrors.InvalidState(string(r.session.State), string(domain.StateActive))
	}
	if r.session.AskedCount >= r.session.Config.QuestionCount {
		return nil, apierrors.InvalidState(string(r.session.State), "questionCount not exhausted")
	}

	draft.ID = uuid.NewString()
	draft.SessionID = sessionID
	draft.Ordinal = r.session.AskedCount + 1
	draft.CreatedAt = time.Now().UTC()

	r.questions = append(r.questions, draft)
	r.session.AskedCount++

	out := draft
	return &out, nil
}

func (m *Memory) GetQuestions(_ context.Context, sessionID string) ([]domain.Question, error) {
	r, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Question, len(r.questions))
	copy(out, r.questions)
	return out, nil
}

func (m *Memory) GetQuestion(_ context.Context, sessionID, questionID string) (*domain.Question, error) {
	r, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.questions {
		if r.questions[i].ID == questionID {
			out := r.questions[i]
			return &out, nil
		}
	}
	return nil, apierrors.NotFound("question", questionID)
}

func (m *Memory) AppendAnswer(_ context.Context, sessionID string, answer domain.Answer) (*domain.Answer, error) {
	r, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session.State.Terminal() {
		return nil, apierrors.InvalidState(string(r.session.State), string(domain.StateActive))
	}
	if r.session.State != domain.StateActive {
		return nil, apierrors.InvalidState(string(r.session.State), string(domain.StateActive))
	}
	found := false
	for _, q := range r.questions {
		if q.ID == answer.QuestionID {
			found = true
			break
		}
	}
	if !found {
		return nil, apierrors.NotFound("question", answer.QuestionID)
	}
	if _, exists := r.answers[answer.QuestionID]; exists {
		return nil, apierrors.AlreadyExists("answer", answer.QuestionID)
	}

	answer.ID = uuid.NewString()
	answer.SessionID = sessionID
	answer.SubmittedAt = time.Now().UTC()
	r.answers[answer.QuestionID] = answer
	r.session.AnsweredCount++

	out := answer
	return &out, nil
}

func (m *Memory) GetAnswers(_ context.Context, sessionID string) ([]domain.Answer, error) {
	r, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Answer, 0, len(r.answers))
	for _, a := range r.answers {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (m *Memory) AppendAntiCheatBatch(_ context.Context, sessionID string, events []domain.AntiCheatEvent, tailHash string) (AppendResult, error) {
	r, err := m.get(sessionID)
	if err != nil {
		return AppendResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session.State.Terminal() {
		return AppendResult{}, apierrors.InvalidState(string(r.session.State), "non-terminal")
	}
	if len(events) == 0 {
		return AppendResult{TailSeq: r.session.TailSeq, TailHash: r.session.TailHash}, nil
	}
	if events[0].Seq != r.session.TailSeq+1 {
		return AppendResult{TailSeq: r.session.TailSeq, TailHash: r.session.TailHash},
			apierrors.ChainBroken(r.session.TailSeq, r.session.TailHash)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Seq != events[i-1].Seq+1 {
			return AppendResult{TailSeq: r.session.TailSeq, TailHash: r.session.TailHash},
				apierrors.ChainBroken(r.session.TailSeq, r.session.TailHash)
		}
	}

	r.events = append(r.events, events...)
	last := events[len(events)-1]
	r.session.TailSeq = last.Seq
	r.session.TailHash = tailHash

	return AppendResult{TailSeq: r.session.TailSeq, TailHash: r.session.TailHash}, nil
}

func (m *Memory) Tail(_ context.Context, sessionID string) (AppendResult, error) {
	r, err := m.get(sessionID)
	if err != nil {
		return AppendResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return AppendResult{TailSeq: r.session.TailSeq, TailHash: r.session.TailHash}, nil
}

func (m *Memory) GetEvents(_ context.Context, sessionID string) ([]domain.AntiCheatEvent, error) {
	r, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AntiCheatEvent, len(r.events))
	copy(out, r.events)
	return out, nil
}

func (m *Memory) AppendStrike(_ context.Context, sessionID string, strike domain.Strike) (*domain.Strike, error) {
	r, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	strike.ID = uuid.NewString()
	strike.SessionID = sessionID
	strike.CreatedAt = time.Now().UTC()
	r.strikes = append(r.strikes, strike)
	if strike.Severity == domain.SeverityMinor {
		r.session.StrikeMinorCount++
	} else {
		r.session.StrikeMajorCount++
	}
	out := strike
	return &out, nil
}

func (m *Memory) GetStrikes(_ context.Context, sessionID string) ([]domain.Strike, error) {
	r, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Strike, len(r.strikes))
	copy(out, r.strikes)
	return out, nil
}

func (m *Memory) WriteSummary(_ context.Context, sessionID string, summary domain.Summary) (*domain.Summary, error) {
	r, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.summary != nil {
		out := *r.summary
		return &out, nil // idempotent, per spec §4.2
	}
	summary.ID = uuid.NewString()
	summary.SessionID = sessionID
	summary.CreatedAt = time.Now().UTC()
	r.summary = &summary
	out := summary
	return &out, nil
}

func (m *Memory) GetSummary(_ context.Context, sessionID string) (*domain.Summary, error) {
	r, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.summary == nil {
		return nil, apierrors.NotFound("summary", sessionID)
	}
	out := *r.summary
	return &out, nil
}

func (m *Memory) IssueUploadCapability(_ context.Context, sessionID, tokenID string, ttl time.Duration) error {
	r, err := m.get(sessionID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads[tokenID] = &domain.UploadCapability{
		TokenID:   tokenID,
		SessionID: sessionID,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	return nil
}

func (m *Memory) ConsumeUploadCapability(_ context.Context, tokenID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.sessions {
		r.mu.Lock()
		cap, ok := r.uploads[tokenID]
		if ok {
			if cap.Consumed || time.Now().UTC().After(cap.ExpiresAt) {
				r.mu.Unlock()
				return false, nil
			}
			cap.Consumed = true
			r.mu.Unlock()
			return true, nil
		}
		r.mu.Unlock()
	}
	return false, nil
}

func (m *Memory) RecordUploadRef(_ context.Context, tokenID, ref string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.sessions {
		r.mu.Lock()
		if cap, ok := r.uploads[tokenID]; ok {
			cap.Ref = ref
			r.mu.Unlock()
			return nil
		}
		r.mu.Unlock()
	}
	return apierrors.NotFound("upload capability", tokenID)
}

func (m *Memory) ListSessionsForRetention(_ context.Context, cutoff time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, r := range m.sessions {
		r.mu.Lock()
		terminal := r.session.State.Terminal()
		endedAt := r.session.EndedAt
		r.mu.Unlock()
		if terminal && endedAt != nil && endedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *Memory) ClearUploadRefs(_ context.Context, sessionID string) error {
	r, err := m.get(sessionID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads = make(map[string]*domain.UploadCapability)
	return nil
}
