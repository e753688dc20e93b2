package matrix

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fleetroute/internal/model"
	"fleetroute/internal/roadnet"
)

var ErrMissingCoordinate = errors.New("missing coordinate")

// CoordinateError reports which matrix position had no usable coordinate.
// Index 0 is the depot.
type CoordinateError struct {
	Index int
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("matrix position %d: %v", e.Index, ErrMissingCoordinate)
}

func (e *CoordinateError) Is(target error) bool { return target == ErrMissingCoordinate }

// Matrix holds road distances in meters; M[i][j] is the trip from i to j.
// Unreachable pairs are +Inf.
type Matrix [][]float64

func (m Matrix) Size() int { return len(m) }

type Builder struct {
	ix      *roadnet.Index
	workers int
	log     *zap.Logger
}

func NewBuilder(ix *roadnet.Index, workers int, log *zap.Logger) *Builder {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{ix: ix, workers: workers, log: log}
}

// Build returns the (n+1)x(n+1) distance matrix for the depot followed by the
// orders, in the order given.
func (b *Builder) Build(ctx context.Context, depot *model.Coordinate, orders []*model.Coordinate) (Matrix, error) {
	start := time.Now()
	coords := make([]*model.Coordinate, 0, len(orders)+1)
	coords = append(coords, depot)
	coords = append(coords, orders...)
	for i, c := range coords {
		if c == nil || !c.Valid() {
			return nil, &CoordinateError{Index: i}
		}
	}

	nodes := make([]roadnet.NodeID, len(coords))
	for i, c := range coords {
		id, err := b.ix.NearestNode(*c)
		if err != nil {
			return nil, fmt.Errorf("snap position %d: %w", i, err)
		}
		nodes[i] = id
	}

	m := make(Matrix, len(coords))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i := range coords {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			row, err := b.ix.DistancesFrom(nodes[i], nodes)
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			row[i] = 0
			m[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	b.log.Debug("distance matrix built",
		zap.Int("size", len(m)),
		zap.Duration("took", time.Since(start)))
	return m, nil
}
