package sequence

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ashanw/subplanet-invoicer/internal/models"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Product{}, &models.Invoice{}, &models.InvoiceItem{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestNextProductNumberEmptyTable(t *testing.T) {
	db := setupDB(t)
	got, err := NextProductNumber(db)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got != "P0001" {
		t.Fatalf("expected P0001 got %s", got)
	}
}

func TestNextProductNumberIncrements(t *testing.T) {
	db := setupDB(t)
	p := models.Product{ProductNumber: "P0042", Name: "Spotify", Price: decimal.NewFromInt(100)}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	got, err := NextProductNumber(db)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got != "P0043" {
		t.Fatalf("expected P0043 got %s", got)
	}
}

func TestNextProductNumberMalformedLatestRestarts(t *testing.T) {
	db := setupDB(t)
	p := models.Product{ProductNumber: "LEGACY-9", Name: "Old import", Price: decimal.NewFromInt(10)}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	got, err := NextProductNumber(db)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got != "P0001" {
		t.Fatalf("expected P0001 for malformed latest got %s", got)
	}
}

func TestNextFollowsInsertionOrderNotLexicographic(t *testing.T) {
	db := setupDB(t)
	// The latest surviving row decides the next number, not the historical max.
	for _, num := range []string{"P0009", "P0010"} {
		p := models.Product{ProductNumber: num, Name: "Item " + num, Price: decimal.NewFromInt(5)}
		if err := db.Create(&p).Error; err != nil {
			t.Fatalf("seed %s: %v", num, err)
		}
	}
	if err := db.Where("product_number = ?", "P0010").Delete(&models.Product{}).Error; err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := NextProductNumber(db)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got != "P0010" {
		t.Fatalf("expected P0010 got %s", got)
	}
}

func TestNextOrderNumber(t *testing.T) {
	db := setupDB(t)
	inv := models.Invoice{
		OrderNumber:   "O0007",
		ClientName:    "Client",
		CustomerPhone: "0770000000",
		PurchaseDate:  time.Now(),
		ExpireDate:    time.Now(),
		PaymentStatus: models.PaymentPaid,
		Subtotal:      decimal.Zero,
		Total:         decimal.Zero,
	}
	if err := db.Create(&inv).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	got, err := NextOrderNumber(db)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got != "O0008" {
		t.Fatalf("expected O0008 got %s", got)
	}
}
