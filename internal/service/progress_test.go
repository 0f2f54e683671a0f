package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyonboard/internal/domain"
)

func TestStart_StreamsEventsInOrder(t *testing.T) {
	op := Start(context.Background(), domain.OpDeployWallet, func(_ context.Context, rep *Reporter) (string, error) {
		rep.Emit(domain.StageSubmitting, "submitting", nil)
		rep.Emit(domain.StagePolling, "polling", map[string]any{"attempt": 1})
		return "done", nil
	})

	var events []domain.ProgressEvent
	for ev := range op.Events() {
		events = append(events, ev)
	}
	res, err := op.Wait()
	require.NoError(t, err)
	assert.Equal(t, "done", res)

	require.Len(t, events, 4)
	assert.Equal(t, domain.StageStarted, events[0].Stage)
	assert.Equal(t, domain.StageSucceeded, events[3].Stage)
	for _, ev := range events {
		assert.Equal(t, op.ID(), ev.OperationID)
		assert.Equal(t, domain.OpDeployWallet, ev.Operation)
	}
}

func TestStart_FailureEndsWithFailedEvent(t *testing.T) {
	op := Start(context.Background(), domain.OpSubmitOrder, func(context.Context, *Reporter) (int, error) {
		return 0, &domain.ValidationError{Field: "price", Reason: "must be within (0.001, 0.999)"}
	})

	var last domain.ProgressEvent
	for ev := range op.Events() {
		last = ev
	}
	_, err := op.Wait()
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, domain.StageFailed, last.Stage)
	assert.Contains(t, last.Message, "price")
}

func TestWait_WithoutConsumingEvents(t *testing.T) {
	op := Start(context.Background(), domain.OpCheckApprovals, func(_ context.Context, rep *Reporter) (int, error) {
		for i := 0; i < 64; i++ {
			rep.Emit(domain.StageChecking, "tick", nil)
		}
		return 7, nil
	})
	res, err := op.Wait()
	require.NoError(t, err)
	assert.Equal(t, 7, res)
}

func TestReporter_NilIsSafe(t *testing.T) {
	var rep *Reporter
	assert.NotPanics(t, func() { rep.Emit(domain.StageChecking, "x", nil) })
}

func TestPublish_ForwardsToBus(t *testing.T) {
	bus := &fakeBus{}
	op := Start(context.Background(), domain.OpResetCredentials, func(_ context.Context, rep *Reporter) (bool, error) {
		rep.Emit(domain.StageSigning, "signing", nil)
		return false, errors.New("boom")
	})

	_, err := Publish(context.Background(), op, bus, testLogger())
	require.Error(t, err)

	msgs := bus.published[ProgressChannel]
	require.Len(t, msgs, 3)
	var ev domain.ProgressEvent
	require.NoError(t, json.Unmarshal(msgs[1], &ev))
	assert.Equal(t, domain.StageSigning, ev.Stage)
	assert.Equal(t, op.ID(), ev.OperationID)
}

func TestPublish_ObservesEventsWithoutBus(t *testing.T) {
	op := Start(context.Background(), domain.OpOnboard, func(_ context.Context, rep *Reporter) (int, error) {
		rep.Emit(domain.StageChecking, "checking", nil)
		return 3, nil
	})

	var stages []domain.Stage
	res, err := Publish(context.Background(), op, nil, testLogger(), func(ev domain.ProgressEvent) {
		stages = append(stages, ev.Stage)
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res)
	require.Len(t, stages, 3)
	assert.Equal(t, domain.StageChecking, stages[1])
}

func TestPublish_BusFailureDoesNotFailOperation(t *testing.T) {
	bus := &fakeBus{err: errors.New("redis down")}
	op := Start(context.Background(), domain.OpOnboard, func(_ context.Context, rep *Reporter) (string, error) {
		rep.Emit(domain.StageChecking, "checking", nil)
		return "ok", nil
	})

	var seen int
	res, err := Publish(context.Background(), op, bus, testLogger(), func(domain.ProgressEvent) { seen++ })
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, 3, seen)
}
