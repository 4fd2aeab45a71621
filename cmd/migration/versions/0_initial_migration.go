package versions

import (
	"admotion_platform/platform/schema"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// Migrations is the ordered list applied by cmd/migration. The initial
// entry is a no-op on clean databases since InitSchema creates the full
// schema there; it exists so that databases from the first release have a
// recorded baseline for later migrations to build on.
func Migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			ID: "0_initial_schema",
			Migrate: func(txn *gorm.DB) error {
				return txn.AutoMigrate(schema.AllTables()...)
			},
			Rollback: func(txn *gorm.DB) error {
				for _, table := range schema.AllTables() {
					if err := txn.Migrator().DropTable(table); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
