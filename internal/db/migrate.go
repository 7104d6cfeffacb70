package db

import (
	"fmt"

	"github.com/homeledger/memberships/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite, DialectPostgres, "":
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.Plan{},
		&models.Membership{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	return ensureMembershipIndexes(conn)
}

// compositeIndexes lists the indexes backing the contractor-scoped list filters.
var compositeIndexes = []struct {
	name    string
	table   string
	columns string
}{
	{name: "idx_memberships_contractor_status", table: "memberships", columns: "contractor_id, status"},
	{name: "idx_memberships_contractor_customer", table: "memberships", columns: "contractor_id, customer_id"},
	{name: "idx_memberships_contractor_end_date", table: "memberships", columns: "contractor_id, end_date"},
	{name: "idx_plans_contractor_active", table: "plans", columns: "contractor_id, active"},
}

// ensureMembershipIndexes creates the composite filter indexes when missing.
func ensureMembershipIndexes(conn *gorm.DB) error {
	for _, idx := range compositeIndexes {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", idx.name, idx.table, idx.columns)
		if errIndex := conn.Exec(stmt).Error; errIndex != nil {
			return fmt.Errorf("db: create index %s: %w", idx.name, errIndex)
		}
	}
	return nil
}
