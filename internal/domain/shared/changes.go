package shared

import (
	"sync"

	"github.com/google/uuid"
)

// ChangeKind classifies a pending write
type ChangeKind string

const (
	ChangeInsert ChangeKind = "INSERT"
	ChangeUpdate ChangeKind = "UPDATE"
	ChangeDelete ChangeKind = "DELETE"
)

// PendingChange describes one write a unit of work intends to commit
type PendingChange struct {
	Kind   ChangeKind
	Target string
	ID     uuid.UUID
}

// ChangeRecorder collects the writes issued inside a transaction
type ChangeRecorder interface {
	Record(change PendingChange)
}

// ChangeSet is a ChangeRecorder that keeps changes in issue order
type ChangeSet struct {
	mu      sync.Mutex
	changes []PendingChange
}

// NewChangeSet creates an empty change set
func NewChangeSet() *ChangeSet {
	return &ChangeSet{}
}

// Record appends a change
func (s *ChangeSet) Record(change PendingChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, change)
}

// Changes returns a copy of the recorded changes
func (s *ChangeSet) Changes() []PendingChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PendingChange, len(s.changes))
	copy(out, s.changes)
	return out
}

// CommitGuard inspects pending changes before commit; an error aborts the transaction
type CommitGuard func(changes []PendingChange) error
