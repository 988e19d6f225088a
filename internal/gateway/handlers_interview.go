package gateway

import (
	"net/http"
	"reflect"
	"time"

	"github.com/Alpha-ashu/Candidate-Experience/internal/aiproxy"
	"github.com/Alpha-ashu/Candidate-Experience/internal/apierrors"
	"github.com/Alpha-ashu/Candidate-Experience/internal/bus"
	"github.com/Alpha-ashu/Candidate-Experience/internal/codeeval"
	"github.com/Alpha-ashu/Candidate-Experience/internal/domain"
	"github.com/Alpha-ashu/Candidate-Experience/internal/statemachine"
	"github.com/Alpha-ashu/Candidate-Experience/internal/token"
)

// eventWire is the wire shape of one anti-cheat event batch entry (spec §6).
type eventWire struct {
	Seq       int64                  `json:"seq"`
	PrevHash  string                 `json:"prevHash"`
	Type      domain.EventType       `json:"type"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"ts"`
}

func toDomainEvents(sessionID string, wire []eventWire) []domain.AntiCheatEvent {
	out := make([]domain.AntiCheatEvent, len(wire))
	for i, e := range wire {
		ts := e.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		out[i] = domain.AntiCheatEvent{
			SessionID: sessionID,
			Seq:       e.Seq,
			PrevHash:  e.PrevHash,
			Type:      e.Type,
			Details:   e.Details,
			Timestamp: ts,
		}
	}
	return out
}

// precheckRequest is the body of POST /interview/{id}/precheck (spec §6).
type precheckRequest struct {
	SessionID string            `json:"sessionId"`
	Checks    map[string]string `json:"checks"`
	Events    []eventWire       `json:"events"`
}

// handlePrecheck ingests the pre-check event batch (if any) through the
// anti-cheat engine, then independently evaluates canProceed from this
// submission's checks. Per SPEC_FULL.md §13 / DESIGN.md Open Question 1,
// pre-check submissions are additive: repeated calls each advance the
// chain and each recompute canProceed from their own latest checks;
// nothing from an earlier submission is discarded.
func (s *Server) handlePrecheck(w http.ResponseWriter, r *http.Request) {
	sess, _, err := s.sessionForAudience(r, token.AudienceACET)
	if err != nil {
		writeError(w, err)
		return
	}
	var req precheckRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if len(req.Events) > 0 {
		if _, err := s.anticheat.IngestBatch(r.Context(), sess.ID, toDomainEvents(sess.ID, req.Events)); err != nil {
			writeError(w, err)
			return
		}
	}

	overall, canProceed := evaluateChecks(req.Checks)

	switch {
	case canProceed && sess.State == domain.StatePendingPrecheck:
		if _, err := s.sm.Transition(r.Context(), sess.ID, domain.StateReady, statemachine.CausePrecheckPassed); err != nil {
			writeError(w, err)
			return
		}
	case canProceed && sess.State == domain.StatePaused:
		// A paused session resumes once the client re-satisfies every
		// check (spec §4.3 "client re-satisfies checks"). A rescinding
		// event in the batch above may already have resumed it, in which
		// case the session is no longer Paused here and this is a no-op.
		if fresh, err := s.store.GetSession(r.Context(), sess.ID); err == nil && fresh.State == domain.StatePaused {
			if _, err := s.sm.Transition(r.Context(), sess.ID, domain.StateActive, statemachine.CauseChecksResatisfied); err != nil {
				writeError(w, err)
				return
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"precheckId":  sess.ID + ":precheck",
		"overallStatus": overall,
		"canProceed":  canProceed,
	})
}

// evaluateChecks reports "pass" only when every reported check passed.
func evaluateChecks(checks map[string]string) (overall string, canProceed bool) {
	if len(checks) == 0 {
		return "fail", false
	}
	for _, v := range checks {
		if v != "pass" {
			return "fail", false
		}
	}
	return "pass", true
}

func questionMetadata(q *domain.Question) map[string]interface{} {
	meta := map[string]interface{}{}
	if q.Coding != nil {
		meta["coding"] = q.Coding
	}
	if q.MCQ != nil {
		meta["mcq"] = q.MCQ
	}
	if q.FIB != nil {
		meta["fib"] = q.FIB
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

// handleNextQuestion drives Ready -> Active on the first call (spec
// §4.3), then asks the AI Proxy for a draft and persists it through the
// Session Store, fanning out QUESTION_CREATED only after the row is
// durable (spec §5 ordering guarantee).
func (s *Server) handleNextQuestion(w http.ResponseWriter, r *http.Request) {
	sess, _, err := s.sessionForAudience(r, token.AudienceAIPT)
	if err != nil {
		writeError(w, err)
		return
	}
	if sess.State != domain.StateReady && sess.State != domain.StateActive {
		writeError(w, apierrors.InvalidState(string(sess.State), string(domain.StateActive)))
		return
	}
	if sess.AskedCount >= sess.Config.QuestionCount {
		writeError(w, apierrors.InvalidState(string(sess.State), "questionCount not exhausted"))
		return
	}

	if !s.nextQ.tryAcquire(sess.ID) {
		writeError(w, apierrors.AlreadyInFlight())
		return
	}
	defer s.nextQ.release(sess.ID)

	if sess.State == domain.StateReady {
		if _, err := s.sm.Transition(r.Context(), sess.ID, domain.StateActive, statemachine.CauseFirstQuestion); err != nil {
			writeError(w, err)
			return
		}
		sess, err = s.store.GetSession(r.Context(), sess.ID)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	asked, err := s.store.GetQuestions(r.Context(), sess.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	answers, err := s.store.GetAnswers(r.Context(), sess.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	mode := aiproxy.SelectMode(sess.Config, sess.ID, len(asked))
	draft, fromFallback, err := s.ai.GenerateQuestion(r.Context(), sess.ID, aiproxy.QuestionRequest{
		Session: *sess, Asked: asked, Answers: answers, NextMode: mode,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	q, err := s.store.AppendQuestion(r.Context(), sess.ID, draft)
	if err != nil {
		writeError(w, err)
		return
	}

	s.bus.Publish(sess.ID, bus.Event{Kind: bus.KindQuestionCreated, Payload: map[string]any{
		"questionId": q.ID, "ordinal": q.Ordinal, "type": string(q.Type), "fallback": fromFallback,
	}})

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"questionId":     q.ID,
		"questionNumber": q.Ordinal,
		"totalQuestions": sess.Config.QuestionCount,
		"type":           q.Type,
		"text":           q.Text,
		"metadata":       questionMetadata(q),
	})
}

// answerRequest is the body of POST /interview/{id}/answer (spec §3, §6).
type answerRequest struct {
	QuestionID       string            `json:"questionId"`
	Kind             domain.AnswerKind `json:"kind"`
	Text             string            `json:"text,omitempty"`
	Code             string            `json:"code,omitempty"`
	MCQOption        int               `json:"mcqOption,omitempty"`
	FIBValues        []string          `json:"fibValues,omitempty"`
	LiveTranscript   string            `json:"liveTranscript,omitempty"`
	TimeSpentSeconds int               `json:"timeSpentSeconds,omitempty"`
}

// handleAnswer persists the answer, fans out ANSWER_RECORDED only once
// durable, then best-effort generates immediate feedback on the same
// proxy call path (spec §4.5 supplemental feature) without ever failing
// the answer write because feedback generation failed.
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	sess, _, err := s.sessionForAudience(r, token.AudienceIST)
	if err != nil {
		writeError(w, err)
		return
	}
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.QuestionID == "" {
		writeError(w, apierrors.ValidationFailed("questionId", "required"))
		return
	}

	ans, err := s.store.AppendAnswer(r.Context(), sess.ID, domain.Answer{
		QuestionID:       req.QuestionID,
		Kind:             req.Kind,
		Text:             req.Text,
		Code:             req.Code,
		MCQOption:        req.MCQOption,
		FIBValues:        req.FIBValues,
		LiveTranscript:   req.LiveTranscript,
		TimeSpentSeconds: req.TimeSpentSeconds,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	s.bus.Publish(sess.ID, bus.Event{Kind: bus.KindAnswerRecorded, Payload: map[string]any{
		"questionId": ans.QuestionID, "answerId": ans.ID,
	}})

	resp := map[string]interface{}{"status": "recorded"}
	if q, qerr := s.store.GetQuestion(r.Context(), sess.ID, ans.QuestionID); qerr == nil {
		fb, _, ferr := s.ai.GenerateFeedback(r.Context(), sess.ID, aiproxy.FeedbackRequest{Question: *q, Answer: *ans})
		if ferr == nil {
			resp["immediateFeedback"] = fb
			s.bus.Publish(sess.ID, bus.Event{Kind: bus.KindFeedbackCreated, Payload: map[string]any{
				"questionId": ans.QuestionID, "score": fb.Score,
			}})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// codeEvalTest is one test case in the /code-eval request body.
type codeEvalTest struct {
	Input    map[string]any `json:"input"`
	Expected interface{}    `json:"expected"`
}

type codeEvalRequest struct {
	Code         string         `json:"code"`
	FunctionName string         `json:"functionName"`
	Tests        []codeEvalTest `json:"tests"`
}

type codeEvalResult struct {
	Pass   bool        `json:"pass"`
	Actual interface{} `json:"actual,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// handleCodeEval runs each test case through the sandboxed evaluator and
// reports pass/fail by comparing the script's own return value against
// the caller-supplied expectation (spec §13 Open Question 2 resolution).
func (s *Server) handleCodeEval(w http.ResponseWriter, r *http.Request) {
	_, _, err := s.sessionForAudience(r, token.AudienceIST)
	if err != nil {
		writeError(w, err)
		return
	}
	var req codeEvalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Code == "" || req.FunctionName == "" {
		writeError(w, apierrors.ValidationFailed("code", "code and functionName are required"))
		return
	}

	results := make([]codeEvalResult, len(req.Tests))
	for i, t := range req.Tests {
		res, err := codeeval.Run(r.Context(), req.Code, req.FunctionName, codeeval.Case{Input: t.Input})
		if err != nil {
			results[i] = codeEvalResult{Pass: false, Error: err.Error()}
			continue
		}
		if res.Error != "" {
			results[i] = codeEvalResult{Pass: false, Error: res.Error}
			continue
		}
		results[i] = codeEvalResult{Actual: res.Output, Pass: reflect.DeepEqual(res.Output, t.Expected)}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// handleAntiCheatIngest is the main event-batch endpoint used throughout
// an Active/Paused session (distinct from /precheck, which is only the
// pre-session variant of the same chain).
func (s *Server) handleAntiCheatIngest(w http.ResponseWriter, r *http.Request) {
	sess, _, err := s.sessionForAudience(r, token.AudienceACET)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		SessionID string            `json:"sessionId"`
		Checks    map[string]string `json:"checks,omitempty"`
		Events    []eventWire       `json:"events"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := s.anticheat.IngestBatch(r.Context(), sess.ID, toDomainEvents(sess.ID, req.Events))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tailSeq": result.TailSeq, "tailHash": result.TailHash})
}

func (s *Server) handleAntiCheatTail(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionForUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	tail, err := s.store.Tail(r.Context(), sess.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"seq": tail.TailSeq, "hash": tail.TailHash})
}

// handleFinalize generates the summary before attempting the Completed
// transition: anti-cheat ingestion (hash + strike + transition) runs
// synchronously inside its own request and is typically much faster than
// a provider round-trip, so ordering the summary call first gives a
// concurrent major strike the better chance to land first. If a major
// strike wins the session's per-record lock first, the Completed
// transition below fails (the session is already terminal) and finalize
// reports that failure rather than silently downgrading it (spec §4.3,
// §8 "Race determinism").
func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	sess, _, err := s.sessionForAudience(r, token.AudienceIST)
	if err != nil {
		writeError(w, err)
		return
	}
	if sess.State != domain.StateActive {
		writeError(w, apierrors.InvalidState(string(sess.State), string(domain.StateActive)))
		return
	}

	questions, err := s.store.GetQuestions(r.Context(), sess.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	answers, err := s.store.GetAnswers(r.Context(), sess.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	strikes, err := s.store.GetStrikes(r.Context(), sess.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	summary, err := s.ai.GenerateSummary(r.Context(), sess.ID, aiproxy.SummaryRequest{
		Session: *sess, Asked: questions, Answers: answers, Strikes: strikes,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := s.sm.Transition(r.Context(), sess.ID, domain.StateCompleted, statemachine.CauseFinalize); err != nil {
		writeError(w, err)
		return
	}

	written, err := s.store.WriteSummary(r.Context(), sess.ID, summary)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"summaryId": written.ID, "status": "completed"})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionForUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	summary, err := s.store.GetSummary(r.Context(), sess.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionForUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	summary, err := s.store.GetSummary(r.Context(), sess.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"review": summary.Review})
}
