package gateway

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Alpha-ashu/Candidate-Experience/internal/apierrors"
	"github.com/Alpha-ashu/Candidate-Experience/internal/domain"
	"github.com/Alpha-ashu/Candidate-Experience/internal/statemachine"
)

// bootstrapSession logs in, creates a session, and drives it through
// PendingPrecheck -> Ready by submitting a passing precheck, returning the
// session id and the owner's cookie plus a valid IST bearer token.
func bootstrapSession(t *testing.T, srv *Server) (sessionID string, cookie *http.Cookie, ist string) {
	t.Helper()
	cookie = login(t, srv, "alex@example.com")

	rec := doJSON(t, srv, http.MethodPost, "/interview/sessions", sampleConfig(), []*http.Cookie{cookie}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]interface{}
	decodeBody(t, rec, &created)
	sessionID = created["sessionId"].(string)
	ist = created["ist"].(string)

	rec = doJSON(t, srv, http.MethodPost, "/interview/"+sessionID+"/token/acet", nil, []*http.Cookie{cookie}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var acetBody map[string]string
	decodeBody(t, rec, &acetBody)

	rec = doJSON(t, srv, http.MethodPost, "/interview/"+sessionID+"/precheck",
		precheckRequest{Checks: map[string]string{"camera": "pass", "mic": "pass"}}, nil, acetBody["acet"])
	require.Equal(t, http.StatusOK, rec.Code)
	var pre map[string]interface{}
	decodeBody(t, rec, &pre)
	require.Equal(t, true, pre["canProceed"])

	return sessionID, cookie, ist
}

func TestPrecheckTransitionsReadyOnPass(t *testing.T) {
	srv := newTestServer(t)
	sessionID, cookie, _ := bootstrapSession(t, srv)

	rec := doJSON(t, srv, http.MethodGet, "/interview/"+sessionID+"/state", nil, []*http.Cookie{cookie}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var state map[string]interface{}
	decodeBody(t, rec, &state)
	require.Equal(t, string(domain.StateReady), state["state"])
}

func TestNextQuestionDrivesReadyToActiveAndPersists(t *testing.T) {
	srv := newTestServer(t)
	sessionID, cookie, _ := bootstrapSession(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/interview/"+sessionID+"/token/aipt", nil, []*http.Cookie{cookie}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var aiptBody map[string]string
	decodeBody(t, rec, &aiptBody)

	rec = doJSON(t, srv, http.MethodPost, "/interview/"+sessionID+"/next-question", nil, nil, aiptBody["aipt"])
	require.Equal(t, http.StatusCreated, rec.Code)
	var q map[string]interface{}
	decodeBody(t, rec, &q)
	require.NotEmpty(t, q["questionId"])
	require.Equal(t, float64(1), q["questionNumber"])

	rec = doJSON(t, srv, http.MethodGet, "/interview/"+sessionID+"/state", nil, []*http.Cookie{cookie}, "")
	var state map[string]interface{}
	decodeBody(t, rec, &state)
	require.Equal(t, string(domain.StateActive), state["state"])
}

func TestAnswerRequiresQuestionID(t *testing.T) {
	srv := newTestServer(t)
	sessionID, _, ist := bootstrapSession(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/interview/"+sessionID+"/answer", answerRequest{}, nil, ist)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorBody
	decodeBody(t, rec, &body)
	require.Equal(t, apierrors.KindValidationFailed, body.Error.Kind)
}

func TestFullInterviewLifecycleReachesSummary(t *testing.T) {
	srv := newTestServer(t)
	sessionID, cookie, ist := bootstrapSession(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/interview/"+sessionID+"/token/aipt", nil, []*http.Cookie{cookie}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var aiptBody map[string]string
	decodeBody(t, rec, &aiptBody)

	cfg := sampleConfig()
	for i := 0; i < cfg.QuestionCount; i++ {
		rec = doJSON(t, srv, http.MethodPost, "/interview/"+sessionID+"/next-question", nil, nil, aiptBody["aipt"])
		require.Equal(t, http.StatusCreated, rec.Code)
		var q map[string]interface{}
		decodeBody(t, rec, &q)
		questionID := q["questionId"].(string)

		rec = doJSON(t, srv, http.MethodPost, "/interview/"+sessionID+"/answer", answerRequest{
			QuestionID: questionID,
			Kind:       domain.AnswerText,
			Text:       "a reasonably thorough answer to this interview question",
		}, nil, ist)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/interview/"+sessionID+"/finalize", nil, nil, ist)
	require.Equal(t, http.StatusOK, rec.Code)
	var fin map[string]interface{}
	decodeBody(t, rec, &fin)
	require.Equal(t, "completed", fin["status"])

	rec = doJSON(t, srv, http.MethodGet, "/interview/"+sessionID+"/summary", nil, []*http.Cookie{cookie}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/interview/"+sessionID+"/state", nil, []*http.Cookie{cookie}, "")
	var state map[string]interface{}
	decodeBody(t, rec, &state)
	require.Equal(t, string(domain.StateCompleted), state["state"])
}

func TestPrecheckResumesPausedSession(t *testing.T) {
	srv := newTestServer(t)
	sessionID, cookie, _ := bootstrapSession(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/interview/"+sessionID+"/token/aipt", nil, []*http.Cookie{cookie}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var aiptBody map[string]string
	decodeBody(t, rec, &aiptBody)
	rec = doJSON(t, srv, http.MethodPost, "/interview/"+sessionID+"/next-question", nil, nil, aiptBody["aipt"])
	require.Equal(t, http.StatusCreated, rec.Code)

	_, err := srv.sm.Transition(context.Background(), sessionID, domain.StatePaused, statemachine.CauseMajorStrike)
	require.NoError(t, err)

	rec = doJSON(t, srv, http.MethodPost, "/interview/"+sessionID+"/token/acet", nil, []*http.Cookie{cookie}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var acetBody map[string]string
	decodeBody(t, rec, &acetBody)

	rec = doJSON(t, srv, http.MethodPost, "/interview/"+sessionID+"/precheck",
		precheckRequest{Checks: map[string]string{"camera": "pass", "mic": "pass"}}, nil, acetBody["acet"])
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/interview/"+sessionID+"/state", nil, []*http.Cookie{cookie}, "")
	var state map[string]interface{}
	decodeBody(t, rec, &state)
	require.Equal(t, string(domain.StateActive), state["state"])
}

func TestFinalizeRejectsWhenNotActive(t *testing.T) {
	srv := newTestServer(t)
	sessionID, _, ist := bootstrapSession(t, srv)

	// bootstrapSession only advances the session to Ready; finalize requires Active.
	rec := doJSON(t, srv, http.MethodPost, "/interview/"+sessionID+"/finalize", nil, nil, ist)
	require.Equal(t, http.StatusConflict, rec.Code)

	var body errorBody
	decodeBody(t, rec, &body)
	require.Equal(t, apierrors.KindInvalidState, body.Error.Kind)
}
