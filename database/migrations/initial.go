package migrations

import (
	"gorm.io/gorm"

	"github.com/shashiranjanraj/veritas/app/models"
	"github.com/shashiranjanraj/veritas/internal/ledger"
	"github.com/shashiranjanraj/veritas/pkg/migration"
)

func init() {
	migration.Register("20260301000000_create_users_table", &CreateUsersTable{})
	migration.Register("20260301000001_create_ledger_tables", &CreateLedgerTables{})
}

// -------- 0001: portal accounts --------

type CreateUsersTable struct{}

func (m *CreateUsersTable) Up(db *gorm.DB) error {
	return db.AutoMigrate(&models.User{})
}

func (m *CreateUsersTable) Down(db *gorm.DB) error {
	return db.Migrator().DropTable("users")
}

// -------- 0002: ledger products + custody events --------

type CreateLedgerTables struct{}

func (m *CreateLedgerTables) Up(db *gorm.DB) error {
	return db.AutoMigrate(&ledger.ProductRow{}, &ledger.EventRow{})
}

func (m *CreateLedgerTables) Down(db *gorm.DB) error {
	return db.Migrator().DropTable("ledger_events", "ledger_products")
}
