// Package ledger tracks which chunks each pipeline stage has completed, so a
// rerun skips finished work. The ledger is deliberately decoupled from the
// chunk store's key layout: resumability should not depend on how output
// files happen to be named.
package ledger

import (
	"context"
	"sort"
	"sync"
)

// Stage names the pipeline stage a completion entry belongs to.
type Stage string

const (
	StageClassify Stage = "classify"
	StageSessions Stage = "sessions"
)

// Ledger records chunk completion per stage.
type Ledger interface {
	IsDone(ctx context.Context, stage Stage, chunk int) (bool, error)
	MarkDone(ctx context.Context, stage Stage, chunk int) error
	Completed(ctx context.Context, stage Stage) ([]int, error)
	Reset(ctx context.Context, stage Stage, chunk int) error
}

// MemoryLedger is a process-local Ledger. It backs tests and single-shot
// runs; combined with the chunk store's own existence checks it reproduces
// the original directory-scan resumability.
type MemoryLedger struct {
	mu   sync.RWMutex
	done map[Stage]map[int]bool
}

// NewMemory returns an empty MemoryLedger.
func NewMemory() *MemoryLedger {
	return &MemoryLedger{done: make(map[Stage]map[int]bool)}
}

func (l *MemoryLedger) IsDone(_ context.Context, stage Stage, chunk int) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.done[stage][chunk], nil
}

func (l *MemoryLedger) MarkDone(_ context.Context, stage Stage, chunk int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done[stage] == nil {
		l.done[stage] = make(map[int]bool)
	}
	l.done[stage][chunk] = true
	return nil
}

func (l *MemoryLedger) Completed(_ context.Context, stage Stage) ([]int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var chunks []int
	for chunk, done := range l.done[stage] {
		if done {
			chunks = append(chunks, chunk)
		}
	}
	sort.Ints(chunks)
	return chunks, nil
}

func (l *MemoryLedger) Reset(_ context.Context, stage Stage, chunk int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.done[stage], chunk)
	return nil
}
