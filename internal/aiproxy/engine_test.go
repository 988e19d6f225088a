package aiproxy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Alpha-ashu/Candidate-Experience/internal/apierrors"
	"github.com/Alpha-ashu/Candidate-Experience/internal/domain"
	"github.com/Alpha-ashu/Candidate-Experience/internal/logging"
)

func testLogger() *logging.Logger { return logging.New("test", "panic", "text") }

// blockingProvider simulates a slow or broken live provider for exercising
// the timeout-to-fallback path without a real network call.
type blockingProvider struct {
	delay time.Duration
	err   error
}

func (b *blockingProvider) GenerateQuestion(ctx context.Context, _ QuestionRequest) (domain.Question, error) {
	select {
	case <-time.After(b.delay):
		if b.err != nil {
			return domain.Question{}, b.err
		}
		return domain.Question{Text: "live question"}, nil
	case <-ctx.Done():
		return domain.Question{}, ctx.Err()
	}
}
func (b *blockingProvider) GenerateFeedback(context.Context, FeedbackRequest) (Feedback, error) {
	return Feedback{}, errors.New("not used")
}
func (b *blockingProvider) GenerateSummary(context.Context, SummaryRequest) (domain.Summary, error) {
	return domain.Summary{}, errors.New("not used")
}

func TestGenerateQuestionFallsBackOnTimeout(t *testing.T) {
	eng := New(&blockingProvider{delay: 50 * time.Millisecond}, 5*time.Millisecond, testLogger())
	q, usedFallback, err := eng.GenerateQuestion(context.Background(), "sess-1", QuestionRequest{NextMode: domain.ModeBehavioral})
	require.NoError(t, err)
	require.True(t, usedFallback)
	require.NotEmpty(t, q.Text)
}

func TestGenerateQuestionUsesLiveOnSuccess(t *testing.T) {
	eng := New(&blockingProvider{delay: time.Millisecond}, time.Second, testLogger())
	q, usedFallback, err := eng.GenerateQuestion(context.Background(), "sess-1", QuestionRequest{NextMode: domain.ModeBehavioral})
	require.NoError(t, err)
	require.False(t, usedFallback)
	require.Equal(t, "live question", q.Text)
}

func TestNilProviderAlwaysFallsBack(t *testing.T) {
	eng := New(nil, time.Second, testLogger())
	q, usedFallback, err := eng.GenerateQuestion(context.Background(), "sess-1", QuestionRequest{NextMode: domain.ModeCoding})
	require.NoError(t, err)
	require.True(t, usedFallback)
	require.Equal(t, domain.QuestionCoding, q.Type)
}

func TestConcurrentCallsForSameSessionRejected(t *testing.T) {
	eng := New(&blockingProvider{delay: 30 * time.Millisecond}, time.Second, testLogger())

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			_, _, err := eng.GenerateQuestion(context.Background(), "sess-shared", QuestionRequest{NextMode: domain.ModeBehavioral})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var nilCount, rejectedCount int
	for err := range errs {
		if err == nil {
			nilCount++
			continue
		}
		se := apierrors.As(err)
		require.NotNil(t, se)
		require.Equal(t, apierrors.KindAlreadyInFlight, se.Kind)
		rejectedCount++
	}
	require.Equal(t, 1, nilCount)
	require.Equal(t, 1, rejectedCount)
}

func TestFallbackSummaryIsMarkedAsFallback(t *testing.T) {
	eng := New(nil, time.Second, testLogger())
	sess := domain.Session{ID: "s1"}
	sum, err := eng.GenerateSummary(context.Background(), "s1", SummaryRequest{Session: sess})
	require.NoError(t, err)
	require.True(t, sum.Fallback)
}
