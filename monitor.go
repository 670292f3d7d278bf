package memberkit

import (
	"sync"
	"time"
)

// TransitionMetrics provides transition throughput and failure statistics.
type TransitionMetrics struct {
	TotalTransitions   int64                    `json:"total_transitions"`
	AppliedTransitions int64                    `json:"applied_transitions"`
	DeniedTransitions  int64                    `json:"denied_transitions"`
	FailedTransitions  int64                    `json:"failed_transitions"`
	Conflicts          int64                    `json:"conflicts"`
	ByKind             map[TransitionKind]int64 `json:"by_kind"`
	AverageDuration    time.Duration            `json:"average_duration"`
	MaxDuration        time.Duration            `json:"max_duration"`
	MinDuration        time.Duration            `json:"min_duration"`
	LastReset          time.Time                `json:"last_reset"`
}

// transitionMonitor holds the internal transition monitoring state
type transitionMonitor struct {
	totalCount    int64
	appliedCount  int64
	deniedCount   int64
	failedCount   int64
	conflictCount int64
	byKind        map[TransitionKind]int64
	totalDuration int64 // nanoseconds
	maxDuration   int64 // nanoseconds
	minDuration   int64 // nanoseconds
	lastReset     time.Time
	mu            sync.RWMutex
}

// newTransitionMonitor creates a new transition monitor
func newTransitionMonitor() *transitionMonitor {
	return &transitionMonitor{
		byKind:      make(map[TransitionKind]int64),
		minDuration: int64(time.Hour), // Initialize to a large value
		lastReset:   time.Now(),
	}
}

// record records a transition attempt with its duration and outcome.
func (tm *transitionMonitor) record(kind TransitionKind, duration time.Duration, err error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.totalCount++
	tm.byKind[kind]++
	tm.totalDuration += int64(duration)

	switch {
	case err == nil:
		tm.appliedCount++
	case IsConflict(err):
		tm.conflictCount++
	case IsDenial(err) || IsValidation(err) || IsInvalidTransition(err):
		tm.deniedCount++
	default:
		tm.failedCount++
	}

	durationNs := int64(duration)
	if durationNs > tm.maxDuration {
		tm.maxDuration = durationNs
	}
	if durationNs < tm.minDuration {
		tm.minDuration = durationNs
	}
}

// getMetrics returns the current transition metrics
func (tm *transitionMonitor) getMetrics() TransitionMetrics {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	byKind := make(map[TransitionKind]int64, len(tm.byKind))
	for kind, count := range tm.byKind {
		byKind[kind] = count
	}

	var avgDuration time.Duration
	if tm.totalCount > 0 {
		avgDuration = time.Duration(tm.totalDuration / tm.totalCount)
	}

	return TransitionMetrics{
		TotalTransitions:   tm.totalCount,
		AppliedTransitions: tm.appliedCount,
		DeniedTransitions:  tm.deniedCount,
		FailedTransitions:  tm.failedCount,
		Conflicts:          tm.conflictCount,
		ByKind:             byKind,
		AverageDuration:    avgDuration,
		MaxDuration:        time.Duration(tm.maxDuration),
		MinDuration:        time.Duration(tm.minDuration),
		LastReset:          tm.lastReset,
	}
}

// reset resets all metrics
func (tm *transitionMonitor) reset() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.totalCount = 0
	tm.appliedCount = 0
	tm.deniedCount = 0
	tm.failedCount = 0
	tm.conflictCount = 0
	tm.byKind = make(map[TransitionKind]int64)
	tm.totalDuration = 0
	tm.maxDuration = 0
	tm.minDuration = int64(time.Hour)
	tm.lastReset = time.Now()
}
