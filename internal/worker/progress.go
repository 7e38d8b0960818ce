package worker

import (
	"slices"
	"sync"

	"trade_engine/internal/domain/entity"
)

// ProgressSnapshot is what the operator sees while a run is active.
type ProgressSnapshot struct {
	RunID     string
	Success   int
	Failed    int
	Goal      int
	Remaining int
	Message   string
}

// ProgressTracker keeps per-template goals and successes of one run.
type ProgressTracker struct {
	mu        sync.Mutex
	order     []string
	goals     map[string]int
	successes map[string]int
}

func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{
		goals:     make(map[string]int),
		successes: make(map[string]int),
	}
}

// SetGoal fixes how many sends the template still needs in this run.
func (p *ProgressTracker) SetGoal(templateID string, goal int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.goals[templateID]; !ok {
		p.order = append(p.order, templateID)
	}
	p.goals[templateID] = max(goal, 0)
}

func (p *ProgressTracker) RecordSuccess(templateID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.successes[templateID]++
}

// NeedsMore reports whether the template is still short of its goal.
func (p *ProgressTracker) NeedsMore(templateID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.successes[templateID] < p.goals[templateID]
}

// Needed returns how many sends the template still lacks.
func (p *ProgressTracker) Needed(templateID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return max(p.goals[templateID]-p.successes[templateID], 0)
}

// TemplatesNeedingMore lists short templates in goal order.
func (p *ProgressTracker) TemplatesNeedingMore() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.order))
	for _, id := range p.order {
		if p.successes[id] < p.goals[id] {
			out = append(out, id)
		}
	}
	return out
}

func (p *ProgressTracker) AllGoalsReached() bool {
	return len(p.TemplatesNeedingMore()) == 0
}

func (p *ProgressTracker) TotalGoal() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := 0
	for _, g := range p.goals {
		total += g
	}
	return total
}

func (p *ProgressTracker) TotalSuccess() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := 0
	for _, s := range p.successes {
		total += s
	}
	return total
}

// NextAvailable returns the index of the first unused opportunity at or after
// start whose template still needs sends, or -1.
func (p *ProgressTracker) NextAvailable(pool []entity.Opportunity, used map[int]bool, start int) int {
	if start < 0 {
		start = 0
	}
	if start >= len(pool) {
		return -1
	}

	i := slices.IndexFunc(pool[start:], func(o entity.Opportunity) bool {
		return p.NeedsMore(o.TemplateID)
	})
	for i >= 0 && used[start+i] {
		next := start + i + 1
		if next >= len(pool) {
			return -1
		}
		j := slices.IndexFunc(pool[next:], func(o entity.Opportunity) bool {
			return p.NeedsMore(o.TemplateID)
		})
		if j < 0 {
			return -1
		}
		start, i = next, j
	}
	if i < 0 {
		return -1
	}

	return start + i
}
