package db

import (
	"database/sql"
	"log"
	"strings"
)

// DataMigration represents a data migration
type DataMigration struct {
	Version     string
	Description string
	Up          func(*sql.DB) error
	Down        func(*sql.DB) error
}

// GetDataMigrations returns all data migrations
func GetDataMigrations() []DataMigration {
	return []DataMigration{
		{
			Version:     "data_001",
			Description: "Normalize stored addresses and tx hashes to lowercase",
			Up:          normalizeStoredAddresses,
			Down:        rollbackNormalizeStoredAddresses,
		},
		{
			Version:     "data_002",
			Description: "Recompute invoice paid totals from confirmed payments",
			Up:          recomputePaidTotals,
			Down:        rollbackRecomputePaidTotals,
		},
		// can add more data migrations...
	}
}

// normalizeStoredAddresses lowercases addresses and tx hashes written by
// deployments that stored checksummed hex. Matching is done on lowercase
// everywhere, so mixed-case rows would never be found.
func normalizeStoredAddresses(db *sql.DB) error {
	log.Println("🔄 Normalizing stored addresses and tx hashes...")

	columns := []struct {
		table  string
		column string
	}{
		{"invoices", "address"},
		{"payments", "from_address"},
		{"payments", "to_address"},
		{"payments", "tx_hash"},
	}

	for _, c := range columns {
		query := `UPDATE ` + c.table + ` SET ` + c.column + ` = LOWER(` + c.column + `) WHERE ` + c.column + ` <> LOWER(` + c.column + `)`

		result, err := db.Exec(query)
		if err != nil {
			log.Printf("❌ Failed to normalize %s.%s: %v", c.table, c.column, err)
			return err
		}

		rowsAffected, _ := result.RowsAffected()
		if rowsAffected > 0 {
			log.Printf("✅ Normalized %d rows in %s.%s", rowsAffected, c.table, c.column)
		}
	}

	log.Println("🎉 Address normalization completed!")
	return nil
}

func rollbackNormalizeStoredAddresses(db *sql.DB) error {
	log.Println("🔄 Rolling back address normalization...")

	// Original casing is gone; nothing to restore.

	return nil
}

// recomputePaidTotals resets each invoice's paid_raw to the sum of its
// confirmed payments. Deployments that tracked the total incrementally
// could drift after a retraction.
func recomputePaidTotals(db *sql.DB) error {
	log.Println("🔄 Recomputing invoice paid totals from confirmed payments...")

	result, err := db.Exec(`
		UPDATE invoices i
		SET paid_raw = s.total
		FROM (
			SELECT invoice_id, SUM(amount_raw) AS total
			FROM payments
			WHERE status = 'Confirmed'
			GROUP BY invoice_id
		) s
		WHERE i.id = s.invoice_id AND i.paid_raw <> s.total
	`)
	if err != nil {
		log.Printf("❌ Failed to recompute paid totals: %v", err)
		return err
	}
	rowsAffected, _ := result.RowsAffected()
	log.Printf("✅ Recomputed paid totals for %d invoices", rowsAffected)

	result, err = db.Exec(`
		UPDATE invoices
		SET paid_raw = 0
		WHERE paid_raw <> 0
		AND id NOT IN (SELECT DISTINCT invoice_id FROM payments WHERE status = 'Confirmed')
	`)
	if err != nil {
		log.Printf("❌ Failed to zero drifted paid totals: %v", err)
		return err
	}
	rowsAffected, _ = result.RowsAffected()
	if rowsAffected > 0 {
		log.Printf("✅ Zeroed paid totals for %d invoices without confirmed payments", rowsAffected)
	}

	log.Println("🎉 Paid total recomputation completed!")
	return nil
}

func rollbackRecomputePaidTotals(db *sql.DB) error {
	log.Println("🔄 Rolling back paid total recomputation...")

	// Recomputing is idempotent and the previous totals were wrong;
	// nothing to restore.

	return nil
}

// RunDataMigrations applies pending data migrations in order
func RunDataMigrations(db *sql.DB) error {
	migrations := GetDataMigrations()

	for _, migration := range migrations {
		var count int
		err := db.QueryRow(
			"SELECT COUNT(*) FROM schema_migrations_log WHERE version = $1",
			migration.Version,
		).Scan(&count)

		if err != nil {
			if strings.Contains(err.Error(), "does not exist") {
				log.Printf("📋 Creating schema_migrations_log table...")
				createTableSQL := `
					CREATE TABLE IF NOT EXISTS schema_migrations_log (
						id SERIAL PRIMARY KEY,
						version VARCHAR(50) NOT NULL UNIQUE,
						description TEXT,
						executed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
						rollback_at TIMESTAMP,
						status VARCHAR(20) DEFAULT 'completed'
					)
				`
				if _, createErr := db.Exec(createTableSQL); createErr != nil {
					return createErr
				}
				count = 0
			} else {
				return err
			}
		}

		if count > 0 {
			log.Printf("📋 Data migration %s already applied", migration.Version)
			continue
		}

		log.Printf("🚀 Running data migration: %s", migration.Description)
		if err := migration.Up(db); err != nil {
			return err
		}

		_, err = db.Exec(
			"INSERT INTO schema_migrations_log (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		)
		if err != nil {
			return err
		}

		log.Printf("✅ Data migration %s completed", migration.Version)
	}

	return nil
}
