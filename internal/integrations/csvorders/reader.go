// Package csvorders reads orders from CSV files with a header row naming at
// least the customer_id and demand columns. Column order is free and unknown
// columns are ignored.
package csvorders

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"fleetroute/internal/integrations"
)

var ErrMissingColumn = errors.New("missing required column")

type Reader struct {
	r        *csv.Reader
	customer int
	demand   int
	line     int
}

var _ integrations.OrderSource = (*Reader)(nil)

func NewReader(src io.Reader) (*Reader, error) {
	cr := csv.NewReader(src)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file: %w", ErrMissingColumn)
		}
		return nil, err
	}
	rd := &Reader{r: cr, customer: -1, demand: -1, line: 1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "customer_id", "customerid":
			rd.customer = i
		case "demand":
			rd.demand = i
		}
	}
	if rd.customer < 0 {
		return nil, fmt.Errorf("customer_id: %w", ErrMissingColumn)
	}
	if rd.demand < 0 {
		return nil, fmt.Errorf("demand: %w", ErrMissingColumn)
	}
	return rd, nil
}

func (rd *Reader) Name() string { return "csv" }

// Next returns the next record. Malformed rows come back as
// *integrations.RecordError so callers can skip them and keep reading.
func (rd *Reader) Next(ctx context.Context) (integrations.OrderRecord, error) {
	if err := ctx.Err(); err != nil {
		return integrations.OrderRecord{}, err
	}
	row, err := rd.r.Read()
	rd.line++
	if err != nil {
		if errors.Is(err, io.EOF) {
			return integrations.OrderRecord{}, io.EOF
		}
		return integrations.OrderRecord{}, &integrations.RecordError{Line: rd.line, Err: err}
	}
	if len(row) <= rd.customer || len(row) <= rd.demand {
		return integrations.OrderRecord{}, &integrations.RecordError{Line: rd.line, Err: errors.New("short row")}
	}
	cust := strings.TrimSpace(row[rd.customer])
	if cust == "" {
		return integrations.OrderRecord{}, &integrations.RecordError{Line: rd.line, Err: errors.New("customer_id is empty")}
	}
	demand, err := strconv.Atoi(strings.TrimSpace(row[rd.demand]))
	if err != nil || demand <= 0 {
		return integrations.OrderRecord{}, &integrations.RecordError{Line: rd.line, Err: fmt.Errorf("demand %q must be a positive integer", row[rd.demand])}
	}
	return integrations.OrderRecord{Line: rd.line, CustomerID: cust, Demand: demand}, nil
}
