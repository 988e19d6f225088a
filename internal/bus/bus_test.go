package bus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishOrderSingleSubscriber(t *testing.T) {
	h := NewHub(nil)
	sub := h.Subscribe("sess-1", 0)

	h.Publish("sess-1", Event{Kind: KindQuestionCreated})
	h.Publish("sess-1", Event{Kind: KindAnswerRecorded})
	h.Publish("sess-1", Event{Kind: KindQuestionCreated})

	var got []Kind
	for i := 0; i < 3; i++ {
		got = append(got, (<-sub.Events()).Kind)
	}
	require.Equal(t, []Kind{KindQuestionCreated, KindAnswerRecorded, KindQuestionCreated}, got)
}

func TestSubscribeReplaysSince(t *testing.T) {
	h := NewHub(nil)
	e1 := h.Publish("sess-1", Event{Kind: KindQuestionCreated})
	e2 := h.Publish("sess-1", Event{Kind: KindAnswerRecorded})

	sub := h.Subscribe("sess-1", e1.ID)
	got := <-sub.Events()
	require.Equal(t, e2.ID, got.ID)
}

func TestSlowSubscriberDropped(t *testing.T) {
	h := NewHub(nil)
	sub := h.Subscribe("sess-1", 0)

	for i := 0; i < 100; i++ {
		h.Publish("sess-1", Event{Kind: KindAnswerRecorded})
	}

	reason := <-sub.Closed()
	require.Equal(t, "slow_consumer", reason)
}

func TestCloseSessionTerminatesSubscribers(t *testing.T) {
	h := NewHub(nil)
	sub := h.Subscribe("sess-1", 0)
	h.CloseSession("sess-1", "Ended")
	reason := <-sub.Closed()
	require.Equal(t, "Ended", reason)
}
