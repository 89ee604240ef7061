package storage

import (
	"context"

	"ammKit/internal/model"
)

// Storage defines a sink for log records.
type Storage interface {
	PutLogBatch(logs []model.LogRecord) error
}

// ObservationSink receives accepted oracle observations.
type ObservationSink interface {
	PutObservations(ctx context.Context, observations []model.Observation) error
}

// EventSink receives decoded pair and helper events.
type EventSink interface {
	PutEvents(ctx context.Context, events []model.TypedEvent) error
}

// MultiSink fans observations out to every sink in order.
type MultiSink []ObservationSink

func (m MultiSink) PutObservations(ctx context.Context, observations []model.Observation) error {
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.PutObservations(ctx, observations); err != nil {
			return err
		}
	}
	return nil
}
