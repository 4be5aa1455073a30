package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment statuses accepted on invoice creation.
const (
	PaymentPaid    = "Paid"
	PaymentNotPaid = "Not Paid"
	PaymentPartial = "Partial"
)

// ValidPaymentStatus reports whether s is one of the accepted statuses.
func ValidPaymentStatus(s string) bool {
	return s == PaymentPaid || s == PaymentNotPaid || s == PaymentPartial
}

// Invoice is immutable once created. Subtotal/Total are written in the same
// transaction as the header and items, so a partially-built invoice is never
// visible outside the transaction.
type Invoice struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	OrderNumber     string          `gorm:"size:8;not null;uniqueIndex" json:"order_number"`
	ClientName      string          `gorm:"not null" json:"client_name"`
	CustomerPhone   string          `gorm:"not null" json:"customer_phone"`
	PurchaseDate    time.Time       `gorm:"not null" json:"purchase_date"`
	ExpireDate      time.Time       `gorm:"not null" json:"expire_date"`
	PaymentStatus   string          `gorm:"size:16;not null" json:"payment_status"`
	Subtotal        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	DiscountPercent float64         `gorm:"not null;default:0" json:"discount_percent"`
	Total           decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
	Items           []InvoiceItem   `gorm:"foreignKey:InvoiceID" json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
}

// InvoiceItem references the product sold and snapshots its price at sale
// time; the snapshot is decoupled from later catalog price changes.
type InvoiceItem struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	InvoiceID   uint            `gorm:"not null;index" json:"invoice_id"`
	ProductID   uint            `gorm:"not null" json:"product_id"`
	Product     Product         `gorm:"foreignKey:ProductID" json:"product"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	UpgraderKey string          `gorm:"size:191" json:"upgrader_key,omitempty"`
}
