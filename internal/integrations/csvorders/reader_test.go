package csvorders

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetroute/internal/integrations"
)

func readAll(t *testing.T, rd *Reader) ([]integrations.OrderRecord, []int) {
	t.Helper()
	var (
		recs []integrations.OrderRecord
		bad  []int
	)
	for {
		rec, err := rd.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return recs, bad
		}
		if err != nil {
			var re *integrations.RecordError
			require.ErrorAs(t, err, &re)
			bad = append(bad, re.Line)
			continue
		}
		recs = append(recs, rec)
	}
}

func TestReaderParsesRows(t *testing.T) {
	in := "note,demand,customer_id\nfragile,3,c1\n,2, c2 \n"
	rd, err := NewReader(strings.NewReader(in))
	require.NoError(t, err)
	recs, bad := readAll(t, rd)
	assert.Empty(t, bad)
	assert.Equal(t, []integrations.OrderRecord{
		{Line: 2, CustomerID: "c1", Demand: 3},
		{Line: 3, CustomerID: "c2", Demand: 2},
	}, recs)
}

func TestReaderReportsBadRows(t *testing.T) {
	in := "customer_id,demand\nc1,0\n,4\nc2,x\nc3\nc4,1\n"
	rd, err := NewReader(strings.NewReader(in))
	require.NoError(t, err)
	recs, bad := readAll(t, rd)
	assert.Equal(t, []int{2, 3, 4, 5}, bad)
	require.Len(t, recs, 1)
	assert.Equal(t, "c4", recs[0].CustomerID)
}

func TestReaderHeader(t *testing.T) {
	_, err := NewReader(strings.NewReader("customer_id,qty\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)
	_, err = NewReader(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrMissingColumn)
}
