package tenant

import (
	"regexp"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tenantColumnPattern = regexp.MustCompile(`\b` + Column + `\b`)

// WriteGuard rejects UPDATE and DELETE statements on tenant tables that carry no tenant condition
type WriteGuard struct {
	tables map[string]bool
}

// NewWriteGuard creates a guard for the given tables
func NewWriteGuard(tables ...string) *WriteGuard {
	g := &WriteGuard{tables: make(map[string]bool, len(tables))}
	for _, t := range tables {
		g.tables[t] = true
	}
	return g
}

// RegisterWriteGuard installs the guard on db for the given tables
func RegisterWriteGuard(db *gorm.DB, tables ...string) error {
	return NewWriteGuard(tables...).Register(db)
}

// Register installs the update and delete callbacks
func (g *WriteGuard) Register(db *gorm.DB) error {
	if err := db.Callback().Update().Before("gorm:update").Register("tenant:guard_update", g.check); err != nil {
		return err
	}
	return db.Callback().Delete().Before("gorm:delete").Register("tenant:guard_delete", g.check)
}

func (g *WriteGuard) check(db *gorm.DB) {
	if db.Error != nil || !g.tables[db.Statement.Table] {
		return
	}
	if !hasTenantCondition(db.Statement) {
		_ = db.AddError(ErrTenantIDRequired)
	}
}

// hasTenantCondition checks the WHERE clause for a tenant_id condition
func hasTenantCondition(stmt *gorm.Statement) bool {
	whereClause, ok := stmt.Clauses["WHERE"]
	if !ok {
		return false
	}
	where, ok := whereClause.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, expr := range where.Exprs {
		if exprContainsTenant(expr) {
			return true
		}
	}
	return false
}

// exprContainsTenant checks if an expression contains the tenant column
func exprContainsTenant(expr clause.Expression) bool {
	switch e := expr.(type) {
	case clause.Eq:
		return columnIsTenant(e.Column)
	case clause.IN:
		return columnIsTenant(e.Column)
	case clause.Expr:
		return tenantColumnPattern.MatchString(e.SQL)
	case clause.NamedExpr:
		return tenantColumnPattern.MatchString(e.SQL)
	case clause.AndConditions:
		for _, cond := range e.Exprs {
			if exprContainsTenant(cond) {
				return true
			}
		}
	}
	return false
}

func columnIsTenant(column any) bool {
	switch c := column.(type) {
	case clause.Column:
		return c.Name == Column
	case string:
		return c == Column
	}
	return false
}
