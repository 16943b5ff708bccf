package persistence

import (
	"fmt"
	"regexp"

	"github.com/livestatement/backend/internal/domain/ledger"
	"gorm.io/gorm"
)

var ledgerTables = map[string]bool{
	"ledger_entries":      true,
	"ledger_lines":        true,
	"ledger_source_links": true,
}

var rawLedgerWrite = regexp.MustCompile(`(?i)^\s*(update|delete\s+from)\s+"?(ledger_entries|ledger_lines|ledger_source_links)"?\b`)

// RegisterLedgerGuard installs callbacks that abort any UPDATE or DELETE against ledger tables,
// including raw statements. The transaction scope's commit guard is the primary check.
func RegisterLedgerGuard(db *gorm.DB) error {
	if err := db.Callback().Update().Before("gorm:update").Register("ledger:append_only_update", rejectLedgerWrite); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("ledger:append_only_delete", rejectLedgerWrite); err != nil {
		return err
	}
	return db.Callback().Raw().Before("gorm:raw").Register("ledger:append_only_raw", rejectRawLedgerWrite)
}

func rejectLedgerWrite(db *gorm.DB) {
	if db.Error != nil || !ledgerTables[db.Statement.Table] {
		return
	}
	_ = db.AddError(fmt.Errorf("%w: write to %s", ledger.ErrLedgerAppendOnly, db.Statement.Table))
}

func rejectRawLedgerWrite(db *gorm.DB) {
	if db.Error != nil {
		return
	}
	if m := rawLedgerWrite.FindStringSubmatch(db.Statement.SQL.String()); m != nil {
		_ = db.AddError(fmt.Errorf("%w: raw write to %s", ledger.ErrLedgerAppendOnly, m[2]))
	}
}
