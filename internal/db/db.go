package db

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	// Blank imports register the postgres driver and file source for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ashanw/subplanet-invoicer/internal/models"
)

// ConnectAndMigrate opens the database named by dsn (sqlite path or postgres
// DSN) and brings the schema up to date. With MIGRATIONS=1 the SQL files in
// ./migrations run via golang-migrate; otherwise AutoMigrate covers dev use.
func ConnectAndMigrate(dsn string, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dsn = NormalizeDSN(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("empty DATABASE_DSN; check environment configuration")
	}

	logLevel := logger.Silent
	if os.Getenv("DB_DEBUG") == "1" {
		logLevel = logger.Info
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logLevel), TranslateError: true}

	var conn *gorm.DB
	var err error
	if IsPostgres(dsn) {
		for i := 0; i < 10; i++ {
			conn, err = gorm.Open(postgres.Open(dsn), cfg)
			if err == nil {
				break
			}
			log.Warn("retrying DB connection", zap.Error(err))
			time.Sleep(2 * time.Second)
		}
	} else {
		conn, err = gorm.Open(sqlite.Open(dsn), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if pingErr := conn.Exec("SELECT 1").Error; pingErr != nil {
		return nil, fmt.Errorf("db ping failed: %w", pingErr)
	}
	log.Info("database connected", zap.String("dsn", maskDSN(dsn)))

	if v := strings.ToLower(os.Getenv("MIGRATIONS")); v == "1" || v == "true" || v == "yes" {
		if err := runSQLMigrations(dsn); err != nil {
			return nil, fmt.Errorf("sql migrations failed: %w", err)
		}
	} else {
		for _, m := range []any{&models.Product{}, &models.Invoice{}, &models.InvoiceItem{}} {
			if migErr := conn.AutoMigrate(m); migErr != nil {
				return nil, fmt.Errorf("automigrate %T: %w", m, migErr)
			}
		}
	}

	for _, table := range []string{"products", "invoices", "invoice_items"} {
		if !conn.Migrator().HasTable(table) {
			return nil, errors.New("missing table after migration: " + table)
		}
	}

	if v := strings.ToLower(os.Getenv("DB_SEED")); v == "1" || v == "true" || v == "yes" {
		seed(conn, log)
	}
	return conn, nil
}

// seed inserts the starter catalog on an empty products table. Numbers are
// fixed so P0001 stays the reserved upgradeable product.
func seed(conn *gorm.DB, log *zap.Logger) {
	var count int64
	if err := conn.Model(&models.Product{}).Count(&count).Error; err != nil || count > 0 {
		return
	}
	starter := []models.Product{
		{ProductNumber: "P0001", Name: "Spotify Premium", Price: decimal.NewFromFloat(1450)},
		{ProductNumber: "P0002", Name: "Netflix Standard", Price: decimal.NewFromFloat(2900)},
		{ProductNumber: "P0003", Name: "YouTube Premium", Price: decimal.NewFromFloat(1150)},
	}
	for _, p := range starter {
		if err := conn.Create(&p).Error; err != nil {
			log.Warn("seed product failed", zap.String("product", p.Name), zap.Error(err))
		}
	}
	log.Info("seeded starter catalog", zap.Int("products", len(starter)))
}

// runSQLMigrations executes migrations in ./migrations using the file source.
func runSQLMigrations(dsn string) error {
	m, err := migrate.New("file://migrations", dsn)
	if err != nil {
		return err
	}
	if err = m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

var passwordRegex = regexp.MustCompile(`(password=)([^\s]+)`)

func maskDSN(dsn string) string {
	if strings.Contains(dsn, "password=") {
		return passwordRegex.ReplaceAllString(dsn, `${1}***`)
	}
	return dsn
}
