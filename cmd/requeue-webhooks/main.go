package main

import (
	"database/sql"
	"flag"
	"log"

	_ "github.com/lib/pq"

	"github.com/necko-moe/necko3-core/internal/config"
)

// Puts dead webhooks back in the queue after a merchant endpoint outage.
// Failed rows get a fresh attempt budget; stuck Processing rows (dispatcher
// died mid-claim) are released immediately instead of waiting for the
// reclaim sweep.
func main() {
	configPath := flag.String("config", "", "config file path")
	invoiceID := flag.String("invoice", "", "only requeue webhooks for this invoice")
	flag.Parse()

	if err := config.LoadConfig(*configPath); err != nil {
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

	invoiceFilter := ""
	args := []interface{}{}
	if *invoiceID != "" {
		invoiceFilter = " AND invoice_id = $1"
		args = append(args, *invoiceID)
		log.Printf("📋 Limiting to invoice %s", *invoiceID)
	}

	var failedCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM webhooks WHERE status = 'Failed'"+invoiceFilter, args...).Scan(&failedCount); err != nil {
		log.Fatalf("Failed to count dead webhooks: %v", err)
	}
	log.Printf("📊 Found %d webhooks in Failed state", failedCount)

	// Step 1: release Processing rows stuck under a dead dispatcher's claim
	log.Println("🔄 Step 1: Releasing claimed Processing rows...")
	result, err := db.Exec(`
		UPDATE webhooks
		SET status = 'Pending', claimed_at = NULL, next_retry = NOW(), updated_at = NOW()
		WHERE status = 'Processing'`+invoiceFilter, args...)
	if err != nil {
		log.Fatalf("❌ Failed to release Processing rows: %v", err)
	}
	rows, _ := result.RowsAffected()
	log.Printf("✅ Released %d Processing rows", rows)

	// Step 2: requeue Failed rows with a fresh attempt budget
	log.Println("🔄 Step 2: Requeuing Failed webhooks...")
	result, err = db.Exec(`
		UPDATE webhooks
		SET status = 'Pending', attempts = 0, claimed_at = NULL,
		    next_retry = NOW(), last_error = '', updated_at = NOW()
		WHERE status = 'Failed'`+invoiceFilter, args...)
	if err != nil {
		log.Fatalf("❌ Failed to requeue webhooks: %v", err)
	}
	rows, _ = result.RowsAffected()
	log.Printf("✅ Requeued %d webhooks", rows)

	// Step 3: verify nothing is left behind
	var remaining int
	if err := db.QueryRow("SELECT COUNT(*) FROM webhooks WHERE status IN ('Failed', 'Processing')"+invoiceFilter, args...).Scan(&remaining); err != nil {
		log.Fatalf("Failed to verify: %v", err)
	}

	if remaining == 0 {
		log.Println("✅ Queue is clean; the dispatcher will pick the rows up on its next poll")
	} else {
		log.Printf("⚠️ %d rows still Failed/Processing (claimed again while this ran?)", remaining)
	}
}
