package progress

import "sync"

// PageTracker spends one page's share of the job budget. Steps are fractions
// of the page (0..1); Finish tops up whatever the page has not consumed so a
// resolved page always contributes exactly its budget.
type PageTracker struct {
	r      *Reporter
	budget float64

	mu       sync.Mutex
	consumed float64
	finished bool
}

// Page returns a tracker worth budget percentage points of the job.
// A nil reporter yields a tracker that records nothing.
func (r *Reporter) Page(budget float64) *PageTracker {
	if budget < 0 {
		budget = 0
	}
	return &PageTracker{r: r, budget: budget}
}

func (t *PageTracker) Step(fraction float64, msg string) {
	if t == nil || fraction <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	delta := fraction * t.budget
	if t.consumed+delta > t.budget {
		delta = t.budget - t.consumed
	}
	if delta <= 0 {
		return
	}
	t.consumed += delta
	if t.r != nil {
		t.r.Add(delta, msg)
	}
}

func (t *PageTracker) Finish(msg string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.finished = true
	rest := t.budget - t.consumed
	t.consumed = t.budget
	if rest > 0 && t.r != nil {
		t.r.Add(rest, msg)
	}
}

func (t *PageTracker) Consumed() float64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consumed
}
