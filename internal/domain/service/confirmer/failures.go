package confirmer

import (
	"strconv"
	"sync"
)

// failureCounter tracks consecutive challenge failures per template and
// counterparty.
type failureCounter struct {
	mu        sync.Mutex
	threshold int
	counts    map[string]int
}

func newFailureCounter(threshold int) *failureCounter {
	return &failureCounter{
		threshold: threshold,
		counts:    make(map[string]int),
	}
}

func failureKey(templateID string, targetUserID int64) string {
	return templateID + "_" + strconv.FormatInt(targetUserID, 10)
}

func (f *failureCounter) inc(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.counts[key]++
	return f.counts[key]
}

func (f *failureCounter) reset(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.counts, key)
}

func (f *failureCounter) tripped(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.counts[key] >= f.threshold
}
