package events

import "context"

// Sink receives every published event regardless of planning, such as an
// outbound webhook notifier.
type Sink interface {
	Notify(evt Event)
}

type teeBroker struct {
	Broker
	sinks []Sink
}

// WithSinks returns a Broker that publishes to b and also hands each event
// to sinks.
func WithSinks(b Broker, sinks ...Sink) Broker {
	if len(sinks) == 0 {
		return b
	}
	return &teeBroker{Broker: b, sinks: sinks}
}

func (t *teeBroker) Publish(planningID string, evt Event) {
	t.Broker.Publish(planningID, evt)
	for _, s := range t.sinks {
		s.Notify(evt)
	}
}

// Ping reports the health of the wrapped broker when it has one.
func (t *teeBroker) Ping(ctx context.Context) error {
	if p, ok := t.Broker.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}
