package worker

import (
	"time"

	"github.com/google/uuid"

	"trade_engine/internal/domain/entity"
	"trade_engine/internal/domain/service/matcher"
)

// RunContext is owned by one active send-all run. Nothing outside the run
// reads or writes it while the run is active.
type RunContext struct {
	ID        string
	StartedAt time.Time

	Templates map[string]entity.TradeTemplate
	Index     *matcher.ItemIndex
	Tracker   *ProgressTracker

	pool   []entity.Opportunity
	used   map[int]bool
	cursor int

	Success int
	Failed  int
	Skipped int

	challengeAlerted bool
}

func NewRunContext(now time.Time, templates []entity.TradeTemplate, index *matcher.ItemIndex) *RunContext {
	rc := &RunContext{
		ID:        uuid.NewString(),
		StartedAt: now,
		Templates: make(map[string]entity.TradeTemplate, len(templates)),
		Index:     index,
		Tracker:   NewProgressTracker(),
		used:      make(map[int]bool),
	}

	for _, tpl := range templates {
		rc.Templates[tpl.ID] = tpl
		rc.Tracker.SetGoal(tpl.ID, tpl.Remaining(now))
	}

	return rc
}

// Append adds freshly matched opportunities. Pairs already in the pool are
// dropped.
func (rc *RunContext) Append(opps ...entity.Opportunity) int {
	seen := make(map[string]bool, len(rc.pool))
	for _, o := range rc.pool {
		seen[o.SentKey()] = true
	}

	added := 0
	for _, o := range opps {
		if seen[o.SentKey()] {
			continue
		}
		seen[o.SentKey()] = true
		rc.pool = append(rc.pool, o)
		added++
	}

	return added
}

// Next returns the next unused opportunity whose template still needs sends
// and advances the cursor past it.
func (rc *RunContext) Next() (int, entity.Opportunity, bool) {
	i := rc.Tracker.NextAvailable(rc.pool, rc.used, rc.cursor)
	if i < 0 {
		return -1, entity.Opportunity{}, false
	}

	rc.cursor = i + 1
	return i, rc.pool[i], true
}

// Consume marks the opportunity at i as never to be reused in this run.
func (rc *RunContext) Consume(i int) {
	rc.used[i] = true
}

// Rewind restarts the scan from the head of the pool.
func (rc *RunContext) Rewind() {
	rc.cursor = 0
}

func (rc *RunContext) PoolSize() int {
	return len(rc.pool)
}

// Available counts unused opportunities.
func (rc *RunContext) Available() int {
	return len(rc.pool) - len(rc.used)
}

func (rc *RunContext) Snapshot(message string) ProgressSnapshot {
	goal := rc.Tracker.TotalGoal()
	return ProgressSnapshot{
		RunID:     rc.ID,
		Success:   rc.Success,
		Failed:    rc.Failed,
		Goal:      goal,
		Remaining: max(goal-rc.Tracker.TotalSuccess(), 0),
		Message:   message,
	}
}
