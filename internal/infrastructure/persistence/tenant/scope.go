// Package tenant provides multi-tenant database scoping for GORM.
//
// Tenant ids are always passed explicitly by repositories; nothing is read from
// the request context. Scope adds the tenant filter to a query and the write
// guard rejects updates and deletes on tenant tables that forgot it.
//
// Usage:
//
//	db.WithContext(ctx).Scopes(tenant.Scope(tenantID)).Find(&receipts)
package tenant

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrTenantIDRequired is returned when a statement on a tenant table has no tenant condition
var ErrTenantIDRequired = errors.New("tenant_id is required")

// Column is the tenant column name shared by every tenant table
const Column = "tenant_id"

// Scope applies tenant filtering to GORM queries. A nil tenant id fails the statement.
func Scope(tenantID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if tenantID == uuid.Nil {
			_ = db.AddError(ErrTenantIDRequired)
			return db
		}
		return db.Where(Column+" = ?", tenantID)
	}
}
