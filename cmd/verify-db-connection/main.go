package main

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/necko-moe/necko3-core/internal/config"
	"github.com/necko-moe/necko3-core/internal/db"
)

// Checks the two schema properties the gateway cannot run without: the
// payment dedupe index and uint256-capable amount columns.
func main() {
	fmt.Println("🔍 Verifying database connection and schema invariants...")
	fmt.Println("============================================================")

	if err := config.LoadConfig(""); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db.InitDB()

	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatalf("Failed to get database connection: %v", err)
	}
	defer sqlDB.Close()

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to get database name: %v", err)
	}
	fmt.Printf("📋 Connected to database: %s\n", dbName)

	verifyDedupeIndex(sqlDB)
	verifyAmountColumns(sqlDB)
}

// verifyDedupeIndex checks the unique index that makes payment ingestion
// idempotent. Without it every watcher restart would double-count.
func verifyDedupeIndex(sqlDB *sql.DB) {
	fmt.Println("\n🔍 Checking payment dedupe index...")

	var indexDef sql.NullString
	err := sqlDB.QueryRow(`
		SELECT indexdef
		FROM pg_indexes
		WHERE schemaname = 'public'
		AND tablename = 'payments'
		AND indexname = 'idx_payments_tx_log_network'
	`).Scan(&indexDef)

	if err == sql.ErrNoRows || !indexDef.Valid {
		fmt.Println("❌ idx_payments_tx_log_network does not exist!")
		fmt.Println("\n🔧 Creating dedupe index...")

		_, err = sqlDB.Exec(`
			CREATE UNIQUE INDEX idx_payments_tx_log_network
			ON payments (network, tx_hash, log_index)
		`)
		if err != nil {
			log.Fatalf("Failed to create dedupe index: %v", err)
		}
		fmt.Println("✅ Dedupe index created")
		return
	}
	if err != nil {
		log.Fatalf("Failed to query index: %v", err)
	}

	if !containsUnique(indexDef.String) {
		fmt.Printf("❌ idx_payments_tx_log_network exists but is NOT UNIQUE: %s\n", indexDef.String)
		fmt.Println("   Drop and recreate it manually; rows may already be duplicated.")
		return
	}

	fmt.Println("✅ Dedupe index is present and unique")
}

// verifyAmountColumns checks that raw amount columns hold 78 digits, the
// decimal width of a full uint256.
func verifyAmountColumns(sqlDB *sql.DB) {
	fmt.Println("\n🔍 Checking raw amount column precision...")

	columns := []struct {
		table  string
		column string
	}{
		{"invoices", "amount_raw"},
		{"invoices", "paid_raw"},
		{"payments", "amount_raw"},
	}

	allGood := true
	for _, c := range columns {
		var precision sql.NullInt64
		err := sqlDB.QueryRow(`
			SELECT numeric_precision
			FROM information_schema.columns
			WHERE table_schema = 'public'
			AND table_name = $1
			AND column_name = $2
		`, c.table, c.column).Scan(&precision)

		if err != nil {
			log.Fatalf("Failed to query %s.%s precision: %v", c.table, c.column, err)
		}

		if !precision.Valid {
			fmt.Printf("❌ %s.%s column does not exist!\n", c.table, c.column)
			allGood = false
			continue
		}

		if precision.Int64 < 78 {
			fmt.Printf("❌ %s.%s is numeric(%d,0), need numeric(78,0)\n", c.table, c.column, precision.Int64)
			fmt.Printf("🔧 Widening %s.%s...\n", c.table, c.column)

			_, err = sqlDB.Exec(fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s TYPE numeric(78,0)`, c.table, c.column))
			if err != nil {
				log.Fatalf("Failed to widen %s.%s: %v", c.table, c.column, err)
			}
			fmt.Printf("✅ %s.%s widened to numeric(78,0)\n", c.table, c.column)
			continue
		}

		fmt.Printf("✅ %s.%s: numeric(%d,0)\n", c.table, c.column, precision.Int64)
	}

	if allGood {
		// 78 decimal digits: 2^256-1 has 78
		maxUint256 := "115792089237316195423570985008687907853269984665640564039457584007913129639935"
		fmt.Printf("\n🧪 Max uint256 is %d digits; columns can store any ERC-20 amount\n", len(maxUint256))
	}
}

func containsUnique(indexDef string) bool {
	return len(indexDef) >= 19 && indexDef[:19] == "CREATE UNIQUE INDEX"
}
