package statemachine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Alpha-ashu/Candidate-Experience/internal/apierrors"
	"github.com/Alpha-ashu/Candidate-Experience/internal/bus"
	"github.com/Alpha-ashu/Candidate-Experience/internal/domain"
	"github.com/Alpha-ashu/Candidate-Experience/internal/logging"
	"github.com/Alpha-ashu/Candidate-Experience/internal/store"
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

func newMachine() (*Machine, store.Store, *domain.Session) {
	st := store.NewMemory()
	sess, _ := st.CreateSession(context.Background(), "alex", sampleConfig())
	return New(st, bus.NewHub(nil), testLogger()), st, sess
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	m, _, sess := newMachine()
	_, err := m.Transition(context.Background(), sess.ID, domain.StateCompleted, CauseFinalize)
	se := apierrors.As(err)
	require.NotNil(t, se)
	require.Equal(t, apierrors.KindInvalidState, se.Kind)
}

func TestTransitionSetsStartedAtOnceEnteringActive(t *testing.T) {
	m, _, sess := newMachine()
	_, err := m.Transition(context.Background(), sess.ID, domain.StateReady, CausePrecheckPassed)
	require.NoError(t, err)
	got, err := m.Transition(context.Background(), sess.ID, domain.StateActive, CauseFirstQuestion)
	require.NoError(t, err)
	require.NotNil(t, got.StartedAt)
	firstStart := *got.StartedAt

	_, err = m.Transition(context.Background(), sess.ID, domain.StatePaused, CauseMajorStrike)
	require.NoError(t, err)
	got, err = m.Transition(context.Background(), sess.ID, domain.StateActive, CauseChecksResatisfied)
	require.NoError(t, err)
	require.Equal(t, firstStart, *got.StartedAt)
}

func TestTransitionBumpsGenerationOnLeavingActive(t *testing.T) {
	m, _, sess := newMachine()
	_, _ = m.Transition(context.Background(), sess.ID, domain.StateReady, CausePrecheckPassed)
	got, _ := m.Transition(context.Background(), sess.ID, domain.StateActive, CauseFirstQuestion)
	gen := got.TokenGeneration

	got, err := m.Transition(context.Background(), sess.ID, domain.StatePaused, CauseMajorStrike)
	require.NoError(t, err)
	require.Equal(t, gen+1, got.TokenGeneration)
}

func TestDurationWatchdogPausesExpiredSession(t *testing.T) {
	m, st, sess := newMachine()
	_, err := m.Transition(context.Background(), sess.ID, domain.StateReady, CausePrecheckPassed)
	require.NoError(t, err)
	_, err = m.Transition(context.Background(), sess.ID, domain.StateActive, CauseFirstQuestion)
	require.NoError(t, err)

	// Replace the real (minutes-long) watchdog with one that expires
	// immediately, then wait for it to pause the session.
	m.cancelWatchdog(sess.ID)
	m.armDurationWatchdog(sess.ID, time.Millisecond)

	require.Eventually(t, func() bool {
		got, err := st.GetSession(context.Background(), sess.ID)
		return err == nil && got.State == domain.StatePaused
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatchdogCancelledOnFinalize(t *testing.T) {
	m, st, sess := newMachine()
	_, _ = m.Transition(context.Background(), sess.ID, domain.StateReady, CausePrecheckPassed)
	_, _ = m.Transition(context.Background(), sess.ID, domain.StateActive, CauseFirstQuestion)

	m.cancelWatchdog(sess.ID)
	m.armDurationWatchdog(sess.ID, 50*time.Millisecond)

	_, err := m.Transition(context.Background(), sess.ID, domain.StateCompleted, CauseFinalize)
	require.NoError(t, err)

	time.Sleep(150 * time.Millisecond)
	got, err := st.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StateCompleted, got.State)
}

func TestTransitionRejectsFromTerminalState(t *testing.T) {
	m, _, sess := newMachine()
	_, _ = m.Transition(context.Background(), sess.ID, domain.StateReady, CausePrecheckPassed)
	_, _ = m.Transition(context.Background(), sess.ID, domain.StateActive, CauseFirstQuestion)
	_, err := m.Transition(context.Background(), sess.ID, domain.StateEnded, CauseUserExit)
	require.NoError(t, err)

	_, err = m.Transition(context.Background(), sess.ID, domain.StatePaused, CauseMajorStrike)
	se := apierrors.As(err)
	require.NotNil(t, se)
	require.Equal(t, apierrors.KindInvalidState, se.Kind)
}
