package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Alpha-ashu/Candidate-Experience/internal/aiproxy"
	"github.com/Alpha-ashu/Candidate-Experience/internal/anticheat"
	"github.com/Alpha-ashu/Candidate-Experience/internal/apierrors"
	"github.com/Alpha-ashu/Candidate-Experience/internal/bus"
	"github.com/Alpha-ashu/Candidate-Experience/internal/config"
	"github.com/Alpha-ashu/Candidate-Experience/internal/domain"
	"github.com/Alpha-ashu/Candidate-Experience/internal/logging"
	"github.com/Alpha-ashu/Candidate-Experience/internal/statemachine"
	"github.com/Alpha-ashu/Candidate-Experience/internal/store"
	"github.com/Alpha-ashu/Candidate-Experience/internal/token"
)

func testLogger() *logging.Logger { return logging.New("test", "panic", "text") }

func sampleConfig() domain.Config {
	return domain.Config{
		RoleCategory:         "QA",
		Modes:                []domain.Mode{domain.ModeBehavioral},
		QuestionCount:        5,
		DurationLimitMinutes: 30,
		Language:             "en-us",
		Difficulty:           domain.DifficultyAdaptive,
		ConsentRecording:     true,
		ConsentAntiCheat:     true,
		ConsentTimestamp:     time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC),
	}
}

// newTestServer builds a full gateway.Server over an in-memory store and
// hub, with the rate limiter disabled so tests never trip it.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	st := store.NewMemory()
	h := bus.NewHub(nil)
	sm := statemachine.New(st, h, testLogger())
	ac := anticheat.New(st, sm, h, testLogger())
	ai := aiproxy.New(nil, 2*time.Second, testLogger())
	authority := token.New("test-signing-secret-at-least-32-bytes-long")

	cfg := config.Config{
		ListenAddr:         ":0",
		TokenSigningSecret: "test-signing-secret-at-least-32-bytes-long",
		CookieSecure:       false,
		RateLimitPerMinute: 0,
	}
	return New(cfg, st, sm, ac, ai, h, authority, testLogger())
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}, cookies []*http.Cookie, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginSetsCookieAndReturnsToken(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/auth/login", loginRequest{Email: "alex@example.com"}, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	require.NotEmpty(t, body["token"])

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, sessionCookieName, cookies[0].Name)
}

func TestLoginRejectsEmptyEmail(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/auth/login", loginRequest{}, nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorBody
	decodeBody(t, rec, &body)
	require.Equal(t, apierrors.KindValidationFailed, body.Error.Kind)
}

func TestCreateSessionWithoutCookieIsUnauthorized(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/interview/sessions", sampleConfig(), nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var body errorBody
	decodeBody(t, rec, &body)
	require.Equal(t, apierrors.KindTokenMissing, body.Error.Kind)
}

// login performs /auth/login and returns the session cookie for use on
// subsequent requests.
func login(t *testing.T, srv *Server, email string) *http.Cookie {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/auth/login", loginRequest{Email: email}, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func TestCreateSessionAndFetchState(t *testing.T) {
	srv := newTestServer(t)
	cookie := login(t, srv, "alex@example.com")

	rec := doJSON(t, srv, http.MethodPost, "/interview/sessions", sampleConfig(), []*http.Cookie{cookie}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]interface{}
	decodeBody(t, rec, &created)
	sessionID, _ := created["sessionId"].(string)
	require.NotEmpty(t, sessionID)
	require.Equal(t, "precheck", created["nextStep"])

	rec = doJSON(t, srv, http.MethodGet, "/interview/"+sessionID+"/state", nil, []*http.Cookie{cookie}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var state map[string]interface{}
	decodeBody(t, rec, &state)
	require.Equal(t, string(domain.StatePendingPrecheck), state["state"])
}

func TestCreateSessionOwnershipIsEnforced(t *testing.T) {
	srv := newTestServer(t)
	ownerCookie := login(t, srv, "alex@example.com")
	otherCookie := login(t, srv, "taylor@example.com")

	rec := doJSON(t, srv, http.MethodPost, "/interview/sessions", sampleConfig(), []*http.Cookie{ownerCookie}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]interface{}
	decodeBody(t, rec, &created)
	sessionID := created["sessionId"].(string)

	rec = doJSON(t, srv, http.MethodGet, "/interview/"+sessionID+"/state", nil, []*http.Cookie{otherCookie}, "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	var body errorBody
	decodeBody(t, rec, &body)
	require.Equal(t, apierrors.KindTokenWrongSession, body.Error.Kind)
}

func TestIssueACETRequiresOwnerCookie(t *testing.T) {
	srv := newTestServer(t)
	cookie := login(t, srv, "alex@example.com")

	rec := doJSON(t, srv, http.MethodPost, "/interview/sessions", sampleConfig(), []*http.Cookie{cookie}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]interface{}
	decodeBody(t, rec, &created)
	sessionID := created["sessionId"].(string)

	rec = doJSON(t, srv, http.MethodPost, "/interview/"+sessionID+"/token/acet", nil, []*http.Cookie{cookie}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	require.NotEmpty(t, body["acet"])
}
