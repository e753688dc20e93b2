package opt

import (
	"sync"
	"time"
)

// Run is the outcome of one solver invocation for a planning.
type Run struct {
	PlanningID string    `json:"planningId"`
	Outcome    string    `json:"outcome"`
	Metrics    Metrics   `json:"metrics"`
	FinishedAt time.Time `json:"finishedAt"`
}

// RunLog keeps the most recent solver runs per planning.
type RunLog struct {
	mu    sync.Mutex
	limit int
	runs  map[string][]Run
}

func NewRunLog(limit int) *RunLog {
	if limit <= 0 {
		limit = 10
	}
	return &RunLog{limit: limit, runs: map[string][]Run{}}
}

func (l *RunLog) Record(r Run) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rs := append(l.runs[r.PlanningID], r)
	if len(rs) > l.limit {
		rs = rs[len(rs)-l.limit:]
	}
	l.runs[r.PlanningID] = rs
}

// Runs returns the recorded runs for a planning, oldest first.
func (l *RunLog) Runs(planningID string) []Run {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Run{}, l.runs[planningID]...)
}
