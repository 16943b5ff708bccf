package ledger

import (
	"fmt"

	"github.com/livestatement/backend/internal/domain/shared"
)

// Change targets protected by the append-only rule
const (
	TargetLedgerEntry      = "ledger_entry"
	TargetLedgerLine       = "ledger_line"
	TargetLedgerSourceLink = "ledger_source_link"
)

// ErrLedgerAppendOnly aborts any unit of work that would modify or delete ledger rows
var ErrLedgerAppendOnly = shared.NewDomainError("LEDGER_APPEND_ONLY", "ledger is append-only")

// IsProtectedTarget reports whether a change target belongs to the immutable ledger
func IsProtectedTarget(target string) bool {
	switch target {
	case TargetLedgerEntry, TargetLedgerLine, TargetLedgerSourceLink:
		return true
	}
	return false
}

// GuardAppendOnly rejects the change set if it updates or deletes a ledger row.
// Inserts are always allowed.
func GuardAppendOnly(changes []shared.PendingChange) error {
	for _, c := range changes {
		if c.Kind == shared.ChangeInsert || !IsProtectedTarget(c.Target) {
			continue
		}
		return fmt.Errorf("%w: %s of %s %s", ErrLedgerAppendOnly, c.Kind, c.Target, c.ID)
	}
	return nil
}

var _ shared.CommitGuard = GuardAppendOnly
