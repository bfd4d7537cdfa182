package db

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/necko-moe/necko3-core/internal/config"
	"github.com/necko-moe/necko3-core/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDB() {
	var err error

	if config.AppConfig == nil || config.AppConfig.Database.DSN == "" {
		log.Fatalf("Database DSN is required")
	}

	dsn := config.AppConfig.Database.DSN

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		DisableAutomaticPing:                     true,
		PrepareStmt:                              true,
		CreateBatchSize:                          1000,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	log.Println("✅ Database connected successfully")

	// GORM AutoMigrate adds missing columns but never alters an existing
	// column's type, so precision upgrades must run before it.
	log.Println("🔧 Checking raw amount column precision...")
	if err := fixAmountColumnPrecision(DB); err != nil {
		log.Printf("⚠️ Failed to fix amount column precision: %v", err)
		log.Println("⚠️ Attempting to continue with migration anyway...")
	}

	log.Println("🚀 Starting database schema migration with GORM AutoMigrate...")

	if err := DB.AutoMigrate(
		&models.Chain{},
		&models.Token{},
		&models.Invoice{},
		&models.Payment{},
		&models.Webhook{},
	); err != nil {
		log.Fatalf("AutoMigrate failed: %v", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		log.Fatalf("Failed to access underlying database handle: %v", err)
	}
	if err := RunDataMigrations(sqlDB); err != nil {
		log.Fatalf("Data migrations failed: %v", err)
	}

	log.Println("✅ Database schema migrated successfully")
}

// fixAmountColumnPrecision widens raw amount columns to numeric(78,0).
// 78 digits holds any uint256 value; early deployments created these as
// numeric(38,0), which overflows for 18-decimal tokens.
func fixAmountColumnPrecision(db *gorm.DB) error {
	amountColumns := []struct {
		tableName  string
		columnName string
	}{
		{"invoices", "amount_raw"},
		{"invoices", "paid_raw"},
		{"payments", "amount_raw"},
	}

	for _, col := range amountColumns {
		if err := fixAmountColumn(db, col.tableName, col.columnName); err != nil {
			log.Printf("⚠️ Failed to fix %s.%s: %v", col.tableName, col.columnName, err)
		}
	}

	return nil
}

// fixAmountColumn widens a single raw amount column when its precision
// is below 78 digits
func fixAmountColumn(db *gorm.DB, tableName, columnName string) error {
	var tableExists bool
	err := db.Raw(`
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = ?
		)
	`, tableName).Scan(&tableExists).Error

	if err != nil {
		return fmt.Errorf("failed to check if %s table exists: %w", tableName, err)
	}

	if !tableExists {
		log.Printf("📋 %s table does not exist yet, will be created by AutoMigrate", tableName)
		return nil
	}

	var currentPrecision sql.NullInt64
	err = db.Raw(`
		SELECT numeric_precision
		FROM information_schema.columns
		WHERE table_schema = 'public'
		AND table_name = ?
		AND column_name = ?
	`, tableName, columnName).Scan(&currentPrecision).Error

	if err != nil {
		return fmt.Errorf("failed to check %s.%s precision: %w", tableName, columnName, err)
	}

	if !currentPrecision.Valid {
		log.Printf("📋 %s.%s column does not exist yet, will be created by AutoMigrate", tableName, columnName)
		return nil
	}

	precision := int(currentPrecision.Int64)
	if precision >= 78 {
		return nil
	}

	log.Printf("🔧 Updating %s.%s from numeric(%d,0) to numeric(78,0)...", tableName, columnName, precision)
	result := db.Exec(fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s TYPE numeric(78,0)`, tableName, columnName))
	if result.Error != nil {
		return fmt.Errorf("failed to widen %s.%s: %w", tableName, columnName, result.Error)
	}

	log.Printf("✅ Updated %s.%s to numeric(78,0)", tableName, columnName)
	return nil
}
