package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UpgraderProductNumber is the one catalog entry that may carry an upgrader
// key on invoice lines. Keys submitted for any other product are discarded.
const UpgraderProductNumber = "P0001"

// Product is a catalog entry. ProductNumber is server-assigned (P + 4-digit
// sequence) and never edited after creation; invoice items snapshot the price
// at sale time, so later edits or deletes do not rewrite issued invoices.
type Product struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	ProductNumber string          `gorm:"size:8;not null;uniqueIndex" json:"product_number"`
	Name          string          `gorm:"not null;index" json:"name"`
	Price         decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
