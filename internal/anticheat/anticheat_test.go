package anticheat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Alpha-ashu/Candidate-Experience/internal/apierrors"
	"github.com/Alpha-ashu/Candidate-Experience/internal/bus"
	"github.com/Alpha-ashu/Candidate-Experience/internal/domain"
	"github.com/Alpha-ashu/Candidate-Experience/internal/logging"
	"github.com/Alpha-ashu/Candidate-Experience/internal/statemachine"
	"github.com/Alpha-ashu/Candidate-Experience/internal/store"
)

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

func testLogger() *logging.Logger { return logging.New("test", "panic", "text") }

// chainEvent computes the hash for ev given its predecessor's hash, mirroring
// the engine's own canonical encoding, so tests can build a valid batch.
func chainEvent(ev domain.AntiCheatEvent) (domain.AntiCheatEvent, string) {
	b, err := canonical(ev)
	if err != nil {
		panic(err)
	}
	sum := sha256.Sum256(b)
	return ev, hex.EncodeToString(sum[:])
}

func newRig(t *testing.T) (*Engine, store.Store, string) {
	t.Helper()
	st := store.NewMemory()
	b := bus.NewHub(nil)
	sm := statemachine.New(st, b, testLogger())
	eng := New(st, sm, b, testLogger())

	sess, err := st.CreateSession(context.Background(), "alex", sampleConfig())
	require.NoError(t, err)
	_, err = sm.Transition(context.Background(), sess.ID, domain.StateReady, statemachine.CausePrecheckPassed)
	require.NoError(t, err)
	_, err = sm.Transition(context.Background(), sess.ID, domain.StateActive, statemachine.CauseFirstQuestion)
	require.NoError(t, err)
	return eng, st, sess.ID
}

func TestIngestBatchAcceptsValidChain(t *testing.T) {
	eng, st, sessionID := newRig(t)

	ev1, h1 := chainEvent(domain.AntiCheatEvent{SessionID: sessionID, Seq: 1, PrevHash: "", Type: domain.EventBlur, Timestamp: time.Unix(1000, 0)})
	ev2 := domain.AntiCheatEvent{SessionID: sessionID, Seq: 2, PrevHash: h1, Type: domain.EventBlur, Timestamp: time.Unix(1001, 0)}

	result, err := eng.IngestBatch(context.Background(), sessionID, []domain.AntiCheatEvent{ev1, ev2})
	require.NoError(t, err)
	require.Equal(t, int64(2), result.TailSeq)

	events, err := st.GetEvents(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestIngestBatchRejectsChainBreak(t *testing.T) {
	eng, _, sessionID := newRig(t)

	bad := domain.AntiCheatEvent{SessionID: sessionID, Seq: 5, PrevHash: "wrong", Type: domain.EventBlur, Timestamp: time.Now()}
	_, err := eng.IngestBatch(context.Background(), sessionID, []domain.AntiCheatEvent{bad})
	se := apierrors.As(err)
	require.NotNil(t, se)
	require.Equal(t, apierrors.KindChainBroken, se.Kind)
}

func TestThirdMinorStrikeAutoPauses(t *testing.T) {
	eng, st, sessionID := newRig(t)

	seq := int64(0)
	prev := ""
	for i := 0; i < 3; i++ {
		seq++
		ev, h := chainEvent(domain.AntiCheatEvent{SessionID: sessionID, Seq: seq, PrevHash: prev, Type: domain.EventBlur, Timestamp: time.Unix(int64(1000+i), 0)})
		_, err := eng.IngestBatch(context.Background(), sessionID, []domain.AntiCheatEvent{ev})
		require.NoError(t, err)
		prev = h
	}

	sess, err := st.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	require.Equal(t, domain.StatePaused, sess.State)
	require.Equal(t, 3, sess.StrikeMinorCount)
}

func TestScreenshotAttemptAutoEndsFirstOccurrence(t *testing.T) {
	eng, st, sessionID := newRig(t)

	ev, _ := chainEvent(domain.AntiCheatEvent{SessionID: sessionID, Seq: 1, PrevHash: "", Type: domain.EventScreenshotAttempt, Timestamp: time.Unix(1000, 0)})
	_, err := eng.IngestBatch(context.Background(), sessionID, []domain.AntiCheatEvent{ev})
	require.NoError(t, err)

	sess, err := st.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	require.Equal(t, domain.StateEnded, sess.State)
}

func TestMultiFaceAutoEndsFirstOccurrence(t *testing.T) {
	eng, st, sessionID := newRig(t)

	ev, _ := chainEvent(domain.AntiCheatEvent{SessionID: sessionID, Seq: 1, PrevHash: "", Type: domain.EventMultiFace, Timestamp: time.Unix(1000, 0)})
	_, err := eng.IngestBatch(context.Background(), sessionID, []domain.AntiCheatEvent{ev})
	require.NoError(t, err)

	sess, err := st.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	require.Equal(t, domain.StateEnded, sess.State)
	require.Equal(t, 1, sess.StrikeMajorCount)
}

func TestFSExitFirstOccurrencePausesSecondEnds(t *testing.T) {
	eng, st, sessionID := newRig(t)

	ev1, h1 := chainEvent(domain.AntiCheatEvent{SessionID: sessionID, Seq: 1, PrevHash: "", Type: domain.EventFSExit, Timestamp: time.Unix(1000, 0)})
	_, err := eng.IngestBatch(context.Background(), sessionID, []domain.AntiCheatEvent{ev1})
	require.NoError(t, err)

	sess, err := st.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	require.Equal(t, domain.StatePaused, sess.State)

	// FS_READY within the window rescinds the pause; a second FS_EXIT
	// then ends the session.
	ev2, h2 := chainEvent(domain.AntiCheatEvent{SessionID: sessionID, Seq: 2, PrevHash: h1, Type: domain.EventFSReady, Timestamp: time.Unix(1001, 0)})
	_, err = eng.IngestBatch(context.Background(), sessionID, []domain.AntiCheatEvent{ev2})
	require.NoError(t, err)

	sess, err = st.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	require.Equal(t, domain.StateActive, sess.State)

	ev3 := domain.AntiCheatEvent{SessionID: sessionID, Seq: 3, PrevHash: h2, Type: domain.EventFSExit, Timestamp: time.Unix(1002, 0)}
	_, err = eng.IngestBatch(context.Background(), sessionID, []domain.AntiCheatEvent{ev3})
	require.NoError(t, err)

	sess, err = st.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	require.Equal(t, domain.StateEnded, sess.State)
	require.Equal(t, 2, sess.StrikeMajorCount)
}

func TestFSReadyResumesAndFansOutSessionResumed(t *testing.T) {
	st := store.NewMemory()
	b := bus.NewHub(nil)
	sm := statemachine.New(st, b, testLogger())
	eng := New(st, sm, b, testLogger())

	sess, err := st.CreateSession(context.Background(), "alex", sampleConfig())
	require.NoError(t, err)
	_, err = sm.Transition(context.Background(), sess.ID, domain.StateReady, statemachine.CausePrecheckPassed)
	require.NoError(t, err)
	_, err = sm.Transition(context.Background(), sess.ID, domain.StateActive, statemachine.CauseFirstQuestion)
	require.NoError(t, err)

	sub := b.Subscribe(sess.ID, 0)
	defer b.Unsubscribe(sess.ID, sub)

	ev1, h1 := chainEvent(domain.AntiCheatEvent{SessionID: sess.ID, Seq: 1, PrevHash: "", Type: domain.EventFSExit, Timestamp: time.Unix(1000, 0)})
	_, err = eng.IngestBatch(context.Background(), sess.ID, []domain.AntiCheatEvent{ev1})
	require.NoError(t, err)

	ev2, _ := chainEvent(domain.AntiCheatEvent{SessionID: sess.ID, Seq: 2, PrevHash: h1, Type: domain.EventFSReady, Timestamp: time.Unix(1001, 0)})
	_, err = eng.IngestBatch(context.Background(), sess.ID, []domain.AntiCheatEvent{ev2})
	require.NoError(t, err)

	got, err := st.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StateActive, got.State)

	var kinds []bus.Kind
	for len(sub.Events()) > 0 {
		kinds = append(kinds, (<-sub.Events()).Kind)
	}
	require.Equal(t, []bus.Kind{bus.KindStrikeCreated, bus.KindSessionPaused, bus.KindSessionResumed}, kinds)
}

