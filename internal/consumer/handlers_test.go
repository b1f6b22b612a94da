package consumer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/challengeengine/internal/domain"
	"example.com/challengeengine/internal/events"
)

func TestProgressHandlerAppliesActivityEnded(t *testing.T) {
	applier := &stubApplier{results: []domain.ProgressResult{{ChallengeID: "ch-1", Outcome: domain.OutcomeApplied}}}
	handler := NewProgressHandler(applier)

	err := handler.Handle(context.Background(), Message{
		EventType: events.TopicActivityEnded,
		Payload:   []byte(`{"activity_id":"act-7","user_id":"u1"}`),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"act-7"}, applier.calls)
}

func TestProgressHandlerIgnoresOtherEvents(t *testing.T) {
	applier := &stubApplier{}
	handler := NewProgressHandler(applier)

	for _, eventType := range []string{events.TopicActivityStarted, events.TopicPositionUpdated, events.TopicChallengeJoined} {
		require.NoError(t, handler.Handle(context.Background(), Message{EventType: eventType, Payload: []byte(`{}`)}))
	}
	require.Empty(t, applier.calls)
}

func TestProgressHandlerSkipsStaleActivities(t *testing.T) {
	cases := map[string]error{
		"missing activity":    fmt.Errorf("%w: activity act-1", domain.ErrNotFound),
		"frozen challenge":    errors.Join(fmt.Errorf("challenge ch-1: %w", domain.ErrInvalidState)),
		"all joined skipable": errors.Join(domain.ErrInvalidState, domain.ErrNotFound),
	}
	for name, applyErr := range cases {
		t.Run(name, func(t *testing.T) {
			handler := NewProgressHandler(&stubApplier{err: applyErr})
			err := handler.Handle(context.Background(), Message{
				EventType: events.TopicActivityEnded,
				Payload:   []byte(`{"activity_id":"act-1"}`),
			})
			require.NoError(t, err)
		})
	}
}

func TestProgressHandlerReturnsRetryableErrors(t *testing.T) {
	applyErr := errors.Join(
		fmt.Errorf("challenge ch-1: %w", domain.ErrInvalidState),
		fmt.Errorf("challenge ch-2: %w", domain.ErrConflict),
	)
	handler := NewProgressHandler(&stubApplier{err: applyErr})

	err := handler.Handle(context.Background(), Message{
		EventType: events.TopicActivityEnded,
		Payload:   []byte(`{"activity_id":"act-1"}`),
	})
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestProgressHandlerRejectsUndecodablePayload(t *testing.T) {
	handler := NewProgressHandler(&stubApplier{})
	err := handler.Handle(context.Background(), Message{EventType: events.TopicActivityEnded, Payload: []byte(`[1,2]`)})
	require.Error(t, err)
}

func TestChainStopsAtFirstError(t *testing.T) {
	first := &stubHandler{}
	failing := &stubHandler{err: errors.New("audit down")}
	last := &stubHandler{}

	err := Chain(first, failing, last).Handle(context.Background(), Message{EventType: "x"})
	require.EqualError(t, err, "audit down")
	require.Equal(t, 1, first.calls)
	require.Equal(t, 1, failing.calls)
	require.Zero(t, last.calls)
}

type stubApplier struct {
	calls   []string
	results []domain.ProgressResult
	err     error
}

func (s *stubApplier) ApplyFinishedActivity(_ context.Context, activityID string) ([]domain.ProgressResult, error) {
	s.calls = append(s.calls, activityID)
	return s.results, s.err
}
