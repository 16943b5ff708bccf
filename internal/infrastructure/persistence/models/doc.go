// Package models holds the gorm row types behind the repositories. Domain types carry
// no tags; each model converts with ToDomain and a FromDomain constructor.
//
// Ledger rows (entries, lines, source links) are insert-only. Updates and deletes are
// rejected by the ledger callback and, on Postgres, by the append-only triggers.
package models
