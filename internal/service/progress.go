package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polyonboard/internal/domain"
)

// Signal-bus channels.
const (
	ProgressChannel = "ch:progress"
	OrdersChannel   = "ch:orders"
)

// Reporter emits progress events for one running operation. A nil *Reporter
// is valid and discards everything, so services can be called directly
// without going through Start.
type Reporter struct {
	ctx context.Context
	id  string
	op  domain.Operation
	ch  chan<- domain.ProgressEvent
}

// Emit sends a progress event. It blocks until the consumer takes the event
// or the operation's context is done.
func (r *Reporter) Emit(stage domain.Stage, message string, detail map[string]any) {
	if r == nil {
		return
	}
	ev := domain.ProgressEvent{
		OperationID: r.id,
		Operation:   r.op,
		Stage:       stage,
		Message:     message,
		At:          time.Now().UTC(),
		Detail:      detail,
	}
	select {
	case r.ch <- ev:
	case <-r.ctx.Done():
	}
}

// Operation is a running operation. Events yields progress until the
// operation finishes, then is closed; Wait returns the outcome.
type Operation[T any] struct {
	id     string
	events chan domain.ProgressEvent
	done   chan struct{}
	result T
	err    error
}

// Start runs fn in its own goroutine and returns immediately. fn reports
// progress through the Reporter it is given; started and succeeded/failed
// events are emitted around it.
func Start[T any](ctx context.Context, op domain.Operation, fn func(context.Context, *Reporter) (T, error)) *Operation[T] {
	o := &Operation[T]{
		id:     uuid.NewString(),
		events: make(chan domain.ProgressEvent, 16),
		done:   make(chan struct{}),
	}
	rep := &Reporter{ctx: ctx, id: o.id, op: op, ch: o.events}

	go func() {
		defer close(o.done)
		defer close(o.events)

		rep.Emit(domain.StageStarted, string(op), nil)
		o.result, o.err = fn(ctx, rep)
		if o.err != nil {
			rep.Emit(domain.StageFailed, o.err.Error(), nil)
			return
		}
		rep.Emit(domain.StageSucceeded, string(op), nil)
	}()
	return o
}

// ID returns the operation's identifier, shared by all of its events.
func (o *Operation[T]) ID() string { return o.id }

// Events returns the progress stream.
func (o *Operation[T]) Events() <-chan domain.ProgressEvent { return o.events }

// Wait discards any events not yet consumed and returns the outcome.
func (o *Operation[T]) Wait() (T, error) {
	for range o.events {
	}
	<-o.done
	return o.result, o.err
}

// Publish forwards every event of o to bus on ProgressChannel and returns the
// outcome. Each event is handed to observe first, when given. A nil bus only
// drains the stream. Publishing failures are logged and otherwise ignored.
func Publish[T any](ctx context.Context, o *Operation[T], bus domain.SignalBus, logger *slog.Logger, observe ...func(domain.ProgressEvent)) (T, error) {
	for ev := range o.Events() {
		for _, fn := range observe {
			fn(ev)
		}
		if bus == nil {
			continue
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := bus.Publish(ctx, ProgressChannel, payload); err != nil && logger != nil {
			logger.WarnContext(ctx, "progress: publish failed",
				slog.String("operation_id", ev.OperationID),
				slog.String("error", err.Error()),
			)
		}
	}
	return o.Wait()
}
