// Package integrations defines how bulk order feeds enter the system.
package integrations

import (
	"context"
	"fmt"
)

// OrderRecord is one order as delivered by an external feed, before it has
// been stored.
type OrderRecord struct {
	Line       int
	CustomerID string
	Demand     int
}

// OrderSource yields the records of one feed. Next returns io.EOF when the
// feed is exhausted.
type OrderSource interface {
	Name() string
	Next(ctx context.Context) (OrderRecord, error)
}

// RecordError reports a feed record that could not be parsed or stored.
type RecordError struct {
	Line int
	Err  error
}

func (e *RecordError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e *RecordError) Unwrap() error { return e.Err }
