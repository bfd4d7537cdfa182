package main

import (
	"database/sql"
	"log"
	"os"

	_ "github.com/lib/pq"
	"github.com/necko-moe/necko3-core/internal/config"
)

// Manual twin of the data_002 migration: reconciles invoices.paid_raw with
// the sum of confirmed payments. The gateway reruns the migration on boot,
// but after a manual payments edit an operator wants to see the drift and
// fix it without a restart.
func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run recompute_paid_totals.go <config.yaml>")
	}

	configPath := os.Args[1]
	if err := config.LoadConfig(configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if config.AppConfig == nil || config.AppConfig.Database.DSN == "" {
		log.Fatal("Database DSN is required")
	}

	db, err := sql.Open("postgres", config.AppConfig.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	log.Println("✅ Connected to database")

	driftQuery := `
		SELECT COUNT(*)
		FROM invoices i
		LEFT JOIN (
			SELECT invoice_id, SUM(amount_raw) AS total
			FROM payments
			WHERE status = 'Confirmed'
			GROUP BY invoice_id
		) s ON s.invoice_id = i.id
		WHERE i.paid_raw <> COALESCE(s.total, 0)
	`

	var drifted int
	if err := db.QueryRow(driftQuery).Scan(&drifted); err != nil {
		log.Fatalf("Failed to count drifted invoices: %v", err)
	}

	log.Printf("📊 Found %d invoices whose paid_raw disagrees with the payment ledger", drifted)

	if drifted == 0 {
		log.Println("✅ Paid totals agree with the payment ledger, nothing to do!")
		return
	}

	// Step 1: show the operator what is about to change
	log.Println("🔄 Step 1: Listing drifted invoices (up to 50)...")
	rows, err := db.Query(`
		SELECT i.id, i.status, i.paid_raw, COALESCE(s.total, 0) AS ledger_total
		FROM invoices i
		LEFT JOIN (
			SELECT invoice_id, SUM(amount_raw) AS total
			FROM payments
			WHERE status = 'Confirmed'
			GROUP BY invoice_id
		) s ON s.invoice_id = i.id
		WHERE i.paid_raw <> COALESCE(s.total, 0)
		ORDER BY i.created_at
		LIMIT 50
	`)
	if err != nil {
		log.Fatalf("Failed to list drifted invoices: %v", err)
	}
	for rows.Next() {
		var id, status, paidRaw, ledgerTotal string
		if err := rows.Scan(&id, &status, &paidRaw, &ledgerTotal); err != nil {
			rows.Close()
			log.Fatalf("Failed to scan drifted invoice: %v", err)
		}
		log.Printf("   %s (%s): paid_raw=%s, ledger says %s", id, status, paidRaw, ledgerTotal)
	}
	rows.Close()

	// Step 2: reset paid_raw to the confirmed sum
	log.Println("🔄 Step 2: Recomputing paid_raw from confirmed payments...")
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
		log.Fatalf("❌ Failed to recompute paid totals: %v", err)
	}
	affected, _ := result.RowsAffected()
	log.Printf("✅ Recomputed paid_raw for %d invoices", affected)

	// Step 3: zero invoices with no confirmed payments left
	log.Println("🔄 Step 3: Zeroing invoices without confirmed payments...")
	result, err = db.Exec(`
		UPDATE invoices
		SET paid_raw = 0
		WHERE paid_raw <> 0
		AND id NOT IN (SELECT DISTINCT invoice_id FROM payments WHERE status = 'Confirmed')
	`)
	if err != nil {
		log.Fatalf("❌ Failed to zero drifted paid totals: %v", err)
	}
	affected, _ = result.RowsAffected()
	log.Printf("✅ Zeroed paid_raw for %d invoices", affected)

	// Step 4: verify
	if err := db.QueryRow(driftQuery).Scan(&drifted); err != nil {
		log.Fatalf("Failed to verify drift count: %v", err)
	}

	if drifted == 0 {
		log.Println("✅ All paid totals reconciled!")
	} else {
		log.Fatalf("❌ Still have %d drifted invoices", drifted)
	}

	log.Println("✅ Ledger is consistent. Status flips stay with the settlement engine; this script never marks invoices Paid.")
}
