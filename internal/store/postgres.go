package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Alpha-ashu/Candidate-Experience/internal/apierrors"
	"github.com/Alpha-ashu/Candidate-Experience/internal/domain"
)

func newID() string { return uuid.NewString() }

// OpenPostgres establishes a pooled connection using the provided DSN and
// verifies connectivity with a ping, mirroring the connect-then-ping shape
// this codebase's ancestry uses for its own Postgres backends.
func OpenPostgres(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate applies every pending schema migration under migrationsPath
// (a directory of NNNN_name.up.sql / .down.sql pairs) to the database
// reached by dsn.
func Migrate(dsn, migrationsPath string) error {
	m, err := migrate.New("file://"+migrationsPath, dsn)
	if err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Postgres is the durable, multi-instance Session Store implementation
// (spec §4.2). Every write path that must observe-then-mutate a session
// takes out a `SELECT ... FOR UPDATE` row lock for the duration of the
// transaction, the same serialization the in-memory Store gets for free
// from its per-session mutex.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres wraps an already-opened, already-migrated connection pool.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

type sessionRow struct {
	ID               string         `db:"id"`
	Owner            string         `db:"owner"`
	Config           []byte         `db:"config"`
	State            string         `db:"state"`
	AskedCount       int            `db:"asked_count"`
	AnsweredCount    int            `db:"answered_count"`
	StrikeMinorCount int            `db:"strike_minor_count"`
	StrikeMajorCount int            `db:"strike_major_count"`
	TailSeq          int64          `db:"tail_seq"`
	TailHash         string         `db:"tail_hash"`
	TokenGeneration  int64          `db:"token_generation"`
	CreatedAt        time.Time      `db:"created_at"`
	StartedAt        sql.NullTime   `db:"started_at"`
	EndedAt          sql.NullTime   `db:"ended_at"`
}

func (r sessionRow) toDomain() (*domain.Session, error) {
	var cfg domain.Config
	if err := json.Unmarshal(r.Config, &cfg); err != nil {
		return nil, fmt.Errorf("decode session config: %w", err)
	}
	s := &domain.Session{
		ID:               r.ID,
		Owner:            r.Owner,
		Config:           cfg,
		State:            domain.State(r.State),
		AskedCount:       r.AskedCount,
		AnsweredCount:    r.AnsweredCount,
		StrikeMinorCount: r.StrikeMinorCount,
		StrikeMajorCount: r.StrikeMajorCount,
		TailSeq:          r.TailSeq,
		TailHash:         r.TailHash,
		TokenGeneration:  r.TokenGeneration,
		CreatedAt:        r.CreatedAt,
	}
	if r.StartedAt.Valid {
		t := r.StartedAt.Time
		s.StartedAt = &t
	}
	if r.EndedAt.Valid {
		t := r.EndedAt.Time
		s.EndedAt = &t
	}
	return s, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func pgNotFound(err error, resource, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apierrors.NotFound(resource, id)
	}
	return apierrors.Internal("query "+resource, err)
}

func (p *Postgres) CreateSession(ctx context.Context, owner string, cfg domain.Config) (*domain.Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apierrors.ValidationFailed("config", err.Error())
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, apierrors.Internal("encode session config", err)
	}
	s := &domain.Session{
		ID:        newID(),
		Owner:     owner,
		Config:    cfg,
		State:     domain.StatePendingPrecheck,
		CreatedAt: time.Now().UTC(),
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO sessions (id, owner, config, state, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, s.ID, s.Owner, cfgJSON, string(s.State), s.CreatedAt)
	if err != nil {
		return nil, apierrors.Internal("create session", err)
	}
	return s, nil
}

func (p *Postgres) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var row sessionRow
	err := p.db.GetContext(ctx, &row, `
		SELECT id, owner, config, state, asked_count, answered_count,
		       strike_minor_count, strike_major_count, tail_seq, tail_hash,
		       token_generation, created_at, started_at, ended_at
		FROM sessions WHERE id = $1
	`, sessionID)
	if err != nil {
		return nil, pgNotFound(err, "session", sessionID)
	}
	return row.toDomain()
}

// MutateState loads the session row under FOR UPDATE, applies mutate, then
// writes back every field it might have touched. This is the only write
// path through which Session.State changes (spec §4.2).
func (p *Postgres) MutateState(ctx context.Context, sessionID string, mutate func(s *domain.Session) error) (*domain.Session, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apierrors.Internal("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	var row sessionRow
	err = tx.GetContext(ctx, &row, `
		SELECT id, owner, config, state, asked_count, answered_count,
		       strike_minor_count, strike_major_count, tail_seq, tail_hash,
		       token_generation, created_at, started_at, ended_at
		FROM sessions WHERE id = $1 FOR UPDATE
	`, sessionID)
	if err != nil {
		return nil, pgNotFound(err, "session", sessionID)
	}
	sess, err := row.toDomain()
	if err != nil {
		return nil, apierrors.Internal("decode session", err)
	}

	if err := mutate(sess); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET state = $1, token_generation = $2, started_at = $3, ended_at = $4
		WHERE id = $5
	`, string(sess.State), sess.TokenGeneration, nullTime(sess.StartedAt), nullTime(sess.EndedAt), sess.ID)
	if err != nil {
		return nil, apierrors.Internal("persist state transition", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apierrors.Internal("commit state transition", err)
	}
	return sess, nil
}

func (p *Postgres) AppendQuestion(ctx context.Context, sessionID string, draft domain.Question) (*domain.Question, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apierrors.Internal("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	var state string
	var askedCount int
	var cfgJSON []byte
	err = tx.QueryRowContext(ctx, `SELECT state, asked_count, config FROM sessions WHERE id = $1 FOR UPDATE`, sessionID).
		Scan(&state, &askedCount, &cfgJSON)
	if err != nil {
		return nil, pgNotFound(err, "session", sessionID)
	}
	var cfg domain.Config
	if err := json.Unmarshal(cfgJSON, &cfg); err != nil {
		return nil, apierrors.Internal("decode session config", err)
	}
	if domain.State(state) != domain.StateActive {
		return nil, apierrors.InvalidState(state, string(domain.StateActive))
	}
	if askedCount >= cfg.QuestionCount {
		return nil, apierrors.InvalidState(state, "questionCount not exhausted")
	}

	draft.ID = newID()
	draft.SessionID = sessionID
	draft.Ordinal = askedCount + 1
	draft.CreatedAt = time.Now().UTC()

	codingJSON, err := json.Marshal(draft.Coding)
	if err != nil {
		return nil, apierrors.Internal("encode coding meta", err)
	}
	mcqJSON, err := json.Marshal(draft.MCQ)
	if err != nil {
		return nil, apierrors.Internal("encode mcq meta", err)
	}
	fibJSON, err := json.Marshal(draft.FIB)
	if err != nil {
		return nil, apierrors.Internal("encode fib meta", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO questions (id, session_id, ordinal, type, text, coding, mcq, fib, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, draft.ID, sessionID, draft.Ordinal, string(draft.Type), draft.Text, codingJSON, mcqJSON, fibJSON, draft.CreatedAt)
	if err != nil {
		return nil, apierrors.Internal("insert question", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET asked_count = asked_count + 1 WHERE id = $1`, sessionID); err != nil {
		return nil, apierrors.Internal("bump asked_count", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apierrors.Internal("commit question", err)
	}
	return &draft, nil
}

type questionRow struct {
	ID        string    `db:"id"`
	SessionID string    `db:"session_id"`
	Ordinal   int       `db:"ordinal"`
	Type      string    `db:"type"`
	Text      string    `db:"text"`
	Coding    []byte    `db:"coding"`
	MCQ       []byte    `db:"mcq"`
	FIB       []byte    `db:"fib"`
	CreatedAt time.Time `db:"created_at"`
}

func (r questionRow) toDomain() (domain.Question, error) {
	q := domain.Question{
		ID: r.ID, SessionID: r.SessionID, Ordinal: r.Ordinal,
		Type: domain.QuestionType(r.Type), Text: r.Text, CreatedAt: r.CreatedAt,
	}
	if len(r.Coding) > 0 && string(r.Coding) != "null" {
		q.Coding = &domain.CodingMeta{}
		if err := json.Unmarshal(r.Coding, q.Coding); err != nil {
			return q, err
		}
	}
	if len(r.MCQ) > 0 && string(r.MCQ) != "null" {
		q.MCQ = &domain.MCQMeta{}
		if err := json.Unmarshal(r.MCQ, q.MCQ); err != nil {
			return q, err
		}
	}
	if len(r.FIB) > 0 && string(r.FIB) != "null" {
		q.FIB = &domain.FIBMeta{}
		if err := json.Unmarshal(r.FIB, q.FIB); err != nil {
			return q, err
		}
	}
	return q, nil
}

func (p *Postgres) GetQuestions(ctx context.Context, sessionID string) ([]domain.Question, error) {
	var rows []questionRow
	if err := p.db.SelectContext(ctx, &rows, `
		SELECT id, session_id, ordinal, type, text, coding, mcq, fib, created_at
		FROM questions WHERE session_id = $1 ORDER BY ordinal
	`, sessionID); err != nil {
		return nil, apierrors.Internal("list questions", err)
	}
	out := make([]domain.Question, 0, len(rows))
	for _, r := range rows {
		q, err := r.toDomain()
		if err != nil {
			return nil, apierrors.Internal("decode question", err)
		}
		out = append(out, q)
	}
	return out, nil
}

func (p *Postgres) GetQuestion(ctx context.Context, sessionID, questionID string) (*domain.Question, error) {
	var row questionRow
	err := p.db.GetContext(ctx, &row, `
		SELECT id, session_id, ordinal, type, text, coding, mcq, fib, created_at
		FROM questions WHERE session_id = $1 AND id = $2
	`, sessionID, questionID)
	if err != nil {
		return nil, pgNotFound(err, "question", questionID)
	}
	q, err := row.toDomain()
	if err != nil {
		return nil, apierrors.Internal("decode question", err)
	}
	return &q, nil
}

func (p *Postgres) AppendAnswer(ctx context.Context, sessionID string, answer domain.Answer) (*domain.Answer, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apierrors.Internal("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	var state string
	if err := tx.QueryRowContext(ctx, `SELECT state FROM sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&state); err != nil {
		return nil, pgNotFound(err, "session", sessionID)
	}
	if domain.State(state) != domain.StateActive {
		return nil, apierrors.InvalidState(state, string(domain.StateActive))
	}

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM questions WHERE session_id = $1 AND id = $2)`,
		sessionID, answer.QuestionID).Scan(&exists); err != nil {
		return nil, apierrors.Internal("check question", err)
	}
	if !exists {
		return nil, apierrors.NotFound("question", answer.QuestionID)
	}
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM answers WHERE question_id = $1)`,
		answer.QuestionID).Scan(&exists); err != nil {
		return nil, apierrors.Internal("check answer", err)
	}
	if exists {
		return nil, apierrors.AlreadyExists("answer", answer.QuestionID)
	}

	answer.ID = newID()
	answer.SessionID = sessionID
	answer.SubmittedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO answers (id, session_id, question_id, kind, text, code, mcq_option, fib_values, live_transcript, time_spent_seconds, submitted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, answer.ID, sessionID, answer.QuestionID, string(answer.Kind), answer.Text, answer.Code, answer.MCQOption,
		pq.Array(answer.FIBValues), answer.LiveTranscript, answer.TimeSpentSeconds, answer.SubmittedAt)
	if err != nil {
		return nil, apierrors.Internal("insert answer", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET answered_count = answered_count + 1 WHERE id = $1`, sessionID); err != nil {
		return nil, apierrors.Internal("bump answered_count", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apierrors.Internal("commit answer", err)
	}
	return &answer, nil
}

type answerRow struct {
	ID               string    `db:"id"`
	SessionID        string    `db:"session_id"`
	QuestionID       string    `db:"question_id"`
	Kind             string    `db:"kind"`
	Text             string    `db:"text"`
	Code             string    `db:"code"`
	MCQOption        int       `db:"mcq_option"`
	FIBValues        pq.StringArray `db:"fib_values"`
	LiveTranscript   string    `db:"live_transcript"`
	TimeSpentSeconds int       `db:"time_spent_seconds"`
	SubmittedAt      time.Time `db:"submitted_at"`
}

func (r answerRow) toDomain() domain.Answer {
	return domain.Answer{
		ID: r.ID, SessionID: r.SessionID, QuestionID: r.QuestionID, Kind: domain.AnswerKind(r.Kind),
		Text: r.Text, Code: r.Code, MCQOption: r.MCQOption, FIBValues: []string(r.FIBValues),
		LiveTranscript: r.LiveTranscript, TimeSpentSeconds: r.TimeSpentSeconds, SubmittedAt: r.SubmittedAt,
	}
}

func (p *Postgres) GetAnswers(ctx context.Context, sessionID string) ([]domain.Answer, error) {
	var rows []answerRow
	if err := p.db.SelectContext(ctx, &rows, `
		SELECT id, session_id, question_id, kind, text, code, mcq_option, fib_values, live_transcript, time_spent_seconds, submitted_at
		FROM answers WHERE session_id = $1 ORDER BY submitted_at
	`, sessionID); err != nil {
		return nil, apierrors.Internal("list answers", err)
	}
	out := make([]domain.Answer, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (p *Postgres) AppendAntiCheatBatch(ctx context.Context, sessionID string, events []domain.AntiCheatEvent, tailHash string) (AppendResult, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return AppendResult{}, apierrors.Internal("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	var state string
	var tailSeq int64
	var tailHashCur string
	if err := tx.QueryRowContext(ctx, `SELECT state, tail_seq, tail_hash FROM sessions WHERE id = $1 FOR UPDATE`, sessionID).
		Scan(&state, &tailSeq, &tailHashCur); err != nil {
		return AppendResult{}, pgNotFound(err, "session", sessionID)
	}
	if domain.State(state).Terminal() {
		return AppendResult{}, apierrors.InvalidState(state, "non-terminal")
	}
	if len(events) == 0 {
		return AppendResult{TailSeq: tailSeq, TailHash: tailHashCur}, nil
	}
	if events[0].Seq != tailSeq+1 {
		return AppendResult{TailSeq: tailSeq, TailHash: tailHashCur}, apierrors.ChainBroken(tailSeq, tailHashCur)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Seq != events[i-1].Seq+1 {
			return AppendResult{TailSeq: tailSeq, TailHash: tailHashCur}, apierrors.ChainBroken(tailSeq, tailHashCur)
		}
	}

	for _, ev := range events {
		detailJSON, err := json.Marshal(ev.Details)
		if err != nil {
			return AppendResult{}, apierrors.Internal("encode event details", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO anticheat_events (session_id, seq, prev_hash, type, details, ts)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, sessionID, ev.Seq, ev.PrevHash, string(ev.Type), detailJSON, ev.Timestamp)
		if err != nil {
			return AppendResult{}, apierrors.Internal("insert anticheat event", err)
		}
	}
	last := events[len(events)-1]
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET tail_seq = $1, tail_hash = $2 WHERE id = $3`,
		last.Seq, tailHash, sessionID); err != nil {
		return AppendResult{}, apierrors.Internal("advance tail", err)
	}
	if err := tx.Commit(); err != nil {
		return AppendResult{}, apierrors.Internal("commit anticheat batch", err)
	}
	return AppendResult{TailSeq: last.Seq, TailHash: tailHash}, nil
}

func (p *Postgres) Tail(ctx context.Context, sessionID string) (AppendResult, error) {
	var tailSeq int64
	var tailHash string
	err := p.db.QueryRowContext(ctx, `SELECT tail_seq, tail_hash FROM sessions WHERE id = $1`, sessionID).Scan(&tailSeq, &tailHash)
	if err != nil {
		return AppendResult{}, pgNotFound(err, "session", sessionID)
	}
	return AppendResult{TailSeq: tailSeq, TailHash: tailHash}, nil
}

type eventRow struct {
	SessionID string    `db:"session_id"`
	Seq       int64     `db:"seq"`
	PrevHash  string    `db:"prev_hash"`
	Type      string    `db:"type"`
	Details   []byte    `db:"details"`
	TS        time.Time `db:"ts"`
}

func (p *Postgres) GetEvents(ctx context.Context, sessionID string) ([]domain.AntiCheatEvent, error) {
	var rows []eventRow
	if err := p.db.SelectContext(ctx, &rows, `
		SELECT session_id, seq, prev_hash, type, details, ts FROM anticheat_events
		WHERE session_id = $1 ORDER BY seq
	`, sessionID); err != nil {
		return nil, apierrors.Internal("list anticheat events", err)
	}
	out := make([]domain.AntiCheatEvent, 0, len(rows))
	for _, r := range rows {
		var details map[string]interface{}
		if len(r.Details) > 0 && string(r.Details) != "null" {
			if err := json.Unmarshal(r.Details, &details); err != nil {
				return nil, apierrors.Internal("decode event details", err)
			}
		}
		out = append(out, domain.AntiCheatEvent{
			SessionID: r.SessionID, Seq: r.Seq, PrevHash: r.PrevHash,
			Type: domain.EventType(r.Type), Details: details, Timestamp: r.TS,
		})
	}
	return out, nil
}

func (p *Postgres) AppendStrike(ctx context.Context, sessionID string, strike domain.Strike) (*domain.Strike, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apierrors.Internal("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT state FROM sessions WHERE id = $1 FOR UPDATE`, sessionID); err != nil {
		return nil, pgNotFound(err, "session", sessionID)
	}

	strike.ID = newID()
	strike.SessionID = sessionID
	strike.CreatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO strikes (id, session_id, severity, type, triggering_seq, action, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, strike.ID, sessionID, string(strike.Severity), string(strike.Type), strike.TriggeringSeq, string(strike.Action), strike.CreatedAt)
	if err != nil {
		return nil, apierrors.Internal("insert strike", err)
	}

	col := "strike_major_count"
	if strike.Severity == domain.SeverityMinor {
		col = "strike_minor_count"
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE sessions SET %s = %s + 1 WHERE id = $1`, col, col), sessionID); err != nil {
		return nil, apierrors.Internal("bump strike count", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apierrors.Internal("commit strike", err)
	}
	return &strike, nil
}

func (p *Postgres) GetStrikes(ctx context.Context, sessionID string) ([]domain.Strike, error) {
	type row struct {
		ID            string    `db:"id"`
		SessionID     string    `db:"session_id"`
		Severity      string    `db:"severity"`
		Type          string    `db:"type"`
		TriggeringSeq int64     `db:"triggering_seq"`
		Action        string    `db:"action"`
		CreatedAt     time.Time `db:"created_at"`
	}
	var rows []row
	if err := p.db.SelectContext(ctx, &rows, `
		SELECT id, session_id, severity, type, triggering_seq, action, created_at
		FROM strikes WHERE session_id = $1 ORDER BY created_at
	`, sessionID); err != nil {
		return nil, apierrors.Internal("list strikes", err)
	}
	out := make([]domain.Strike, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Strike{
			ID: r.ID, SessionID: r.SessionID, Severity: domain.Severity(r.Severity), Type: domain.EventType(r.Type),
			TriggeringSeq: r.TriggeringSeq, Action: domain.Action(r.Action), CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

func (p *Postgres) WriteSummary(ctx context.Context, sessionID string, summary domain.Summary) (*domain.Summary, error) {
	if existing, err := p.GetSummary(ctx, sessionID); err == nil {
		return existing, nil // idempotent, per spec §4.2
	}

	summary.ID = newID()
	summary.SessionID = sessionID
	summary.CreatedAt = time.Now().UTC()

	subScoresJSON, err := json.Marshal(summary.SubScores)
	if err != nil {
		return nil, apierrors.Internal("encode sub scores", err)
	}
	strengthsJSON, err := json.Marshal(summary.Strengths)
	if err != nil {
		return nil, apierrors.Internal("encode strengths", err)
	}
	gapsJSON, err := json.Marshal(summary.Gaps)
	if err != nil {
		return nil, apierrors.Internal("encode gaps", err)
	}
	reviewJSON, err := json.Marshal(summary.Review)
	if err != nil {
		return nil, apierrors.Internal("encode review", err)
	}
	timelineJSON, err := json.Marshal(summary.StrikeTimeline)
	if err != nil {
		return nil, apierrors.Internal("encode strike timeline", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO summaries (id, session_id, sub_scores, overall_score, strengths, gaps, review, anticheat_verdict, strike_timeline, fallback, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (session_id) DO NOTHING
	`, summary.ID, sessionID, subScoresJSON, summary.OverallScore, strengthsJSON, gapsJSON, reviewJSON,
		string(summary.AntiCheatVerdict), timelineJSON, summary.Fallback, summary.CreatedAt)
	if err != nil {
		return nil, apierrors.Internal("insert summary", err)
	}
	return p.GetSummary(ctx, sessionID)
}

func (p *Postgres) GetSummary(ctx context.Context, sessionID string) (*domain.Summary, error) {
	type row struct {
		ID               string    `db:"id"`
		SessionID        string    `db:"session_id"`
		SubScores        []byte    `db:"sub_scores"`
		OverallScore     int       `db:"overall_score"`
		Strengths        []byte    `db:"strengths"`
		Gaps             []byte    `db:"gaps"`
		Review           []byte    `db:"review"`
		AntiCheatVerdict string    `db:"anticheat_verdict"`
		StrikeTimeline   []byte    `db:"strike_timeline"`
		Fallback         bool      `db:"fallback"`
		CreatedAt        time.Time `db:"created_at"`
	}
	var r row
	err := p.db.GetContext(ctx, &r, `
		SELECT id, session_id, sub_scores, overall_score, strengths, gaps, review, anticheat_verdict, strike_timeline, fallback, created_at
		FROM summaries WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return nil, pgNotFound(err, "summary", sessionID)
	}
	s := &domain.Summary{
		ID: r.ID, SessionID: r.SessionID, OverallScore: r.OverallScore,
		AntiCheatVerdict: domain.AntiCheatVerdict(r.AntiCheatVerdict), Fallback: r.Fallback, CreatedAt: r.CreatedAt,
	}
	if err := json.Unmarshal(r.SubScores, &s.SubScores); err != nil {
		return nil, apierrors.Internal("decode sub scores", err)
	}
	if len(r.Strengths) > 0 {
		_ = json.Unmarshal(r.Strengths, &s.Strengths)
	}
	if len(r.Gaps) > 0 {
		_ = json.Unmarshal(r.Gaps, &s.Gaps)
	}
	if len(r.Review) > 0 {
		_ = json.Unmarshal(r.Review, &s.Review)
	}
	if len(r.StrikeTimeline) > 0 {
		_ = json.Unmarshal(r.StrikeTimeline, &s.StrikeTimeline)
	}
	return s, nil
}

func (p *Postgres) IssueUploadCapability(ctx context.Context, sessionID, tokenID string, ttl time.Duration) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO upload_capabilities (token_id, session_id, expires_at, consumed)
		VALUES ($1,$2,$3,FALSE)
	`, tokenID, sessionID, time.Now().UTC().Add(ttl))
	if err != nil {
		return apierrors.Internal("issue upload capability", err)
	}
	return nil
}

func (p *Postgres) ConsumeUploadCapability(ctx context.Context, tokenID string) (bool, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, apierrors.Internal("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	var expiresAt time.Time
	var consumed bool
	err = tx.QueryRowContext(ctx, `
		SELECT expires_at, consumed FROM upload_capabilities WHERE token_id = $1 FOR UPDATE
	`, tokenID).Scan(&expiresAt, &consumed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apierrors.Internal("load upload capability", err)
	}
	if consumed || time.Now().UTC().After(expiresAt) {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, `UPDATE upload_capabilities SET consumed = TRUE WHERE token_id = $1`, tokenID); err != nil {
		return false, apierrors.Internal("consume upload capability", err)
	}
	if err := tx.Commit(); err != nil {
		return false, apierrors.Internal("commit upload capability consume", err)
	}
	return true, nil
}

func (p *Postgres) RecordUploadRef(ctx context.Context, tokenID, ref string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE upload_capabilities SET ref = $2 WHERE token_id = $1`, tokenID, ref)
	if err != nil {
		return apierrors.Internal("record upload ref", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierrors.NotFound("upload capability", tokenID)
	}
	return nil
}

func (p *Postgres) ListSessionsForRetention(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	err := p.db.SelectContext(ctx, &ids, `
		SELECT id FROM sessions
		WHERE state IN ($1, $2) AND ended_at IS NOT NULL AND ended_at < $3
	`, string(domain.StateCompleted), string(domain.StateEnded), cutoff)
	if err != nil {
		return nil, apierrors.Internal("list sessions for retention", err)
	}
	return ids, nil
}

func (p *Postgres) ClearUploadRefs(ctx context.Context, sessionID string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM upload_capabilities WHERE session_id = $1`, sessionID); err != nil {
		return apierrors.Internal("clear upload refs", err)
	}
	return nil
}
