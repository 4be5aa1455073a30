package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ashanw/subplanet-invoicer/internal/models"
	"github.com/ashanw/subplanet-invoicer/internal/sequence"
)

// ErrNoValidItems is returned when every submitted line was skipped (zero or
// negative quantity), leaving nothing to invoice.
var ErrNoValidItems = errors.New("no valid products selected")

// ProductNotFoundError aborts the whole creation; the handler surfaces the
// product name to the operator.
type ProductNotFoundError struct {
	Name string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %q not found", e.Name)
}

// sequenceRetries bounds retries when two submissions race for the same
// order number and the unique index rejects the second insert.
const sequenceRetries = 3

// LineInput is one submitted order line.
type LineInput struct {
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UpgraderKey string `json:"upgrader_key"`
}

// CreateInvoiceInput carries the already-parsed form fields. Required-field
// and discount-range validation happens in the handler; everything touching
// the catalog or storage happens here.
type CreateInvoiceInput struct {
	ClientName      string
	CustomerPhone   string
	PaymentStatus   string
	PurchaseDate    time.Time
	ExpireDuration  string
	DiscountPercent float64
	Lines           []LineInput
}

// InvoiceService owns the invoice creation flow: number issuance, line
// validation and price snapshotting, totals, all inside one transaction.
type InvoiceService struct {
	DB  *gorm.DB
	Log *zap.Logger
}

func NewInvoiceService(db *gorm.DB, log *zap.Logger) *InvoiceService {
	if log == nil {
		log = zap.NewNop()
	}
	return &InvoiceService{DB: db, Log: log}
}

// Create validates the order lines against the catalog and persists the
// invoice atomically: header, items and totals commit together or not at all.
// Lines with quantity <= 0 are skipped, not rejected. An upgrader key is kept
// only when the line's product is the reserved upgradeable product.
func (s *InvoiceService) Create(ctx context.Context, in CreateInvoiceInput) (*models.Invoice, error) {
	expire, err := ExpireDate(in.PurchaseDate, in.ExpireDuration)
	if err != nil {
		return nil, err
	}

	var inv models.Invoice
	for attempt := 0; ; attempt++ {
		inv = models.Invoice{}
		err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			orderNumber, err := sequence.NextOrderNumber(tx)
			if err != nil {
				return err
			}
			inv = models.Invoice{
				OrderNumber:     orderNumber,
				ClientName:      in.ClientName,
				CustomerPhone:   in.CustomerPhone,
				PurchaseDate:    in.PurchaseDate,
				ExpireDate:      expire,
				PaymentStatus:   in.PaymentStatus,
				DiscountPercent: in.DiscountPercent,
				Subtotal:        decimal.Zero,
				Total:           decimal.Zero,
			}
			if err := tx.Create(&inv).Error; err != nil {
				return err
			}

			items := make([]models.InvoiceItem, 0, len(in.Lines))
			for _, line := range in.Lines {
				if line.Quantity <= 0 {
					continue
				}
				var p models.Product
				if err := tx.Where("name = ?", line.ProductName).First(&p).Error; err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return &ProductNotFoundError{Name: line.ProductName}
					}
					return err
				}
				key := strings.TrimSpace(line.UpgraderKey)
				if p.ProductNumber != models.UpgraderProductNumber {
					key = ""
				}
				item := models.InvoiceItem{
					InvoiceID:   inv.ID,
					ProductID:   p.ID,
					Product:     p,
					Quantity:    line.Quantity,
					Price:       p.Price,
					UpgraderKey: key,
				}
				if err := tx.Create(&item).Error; err != nil {
					return err
				}
				items = append(items, item)
			}
			if len(items) == 0 {
				return ErrNoValidItems
			}

			subtotal, total := ComputeTotals(items, in.DiscountPercent)
			if err := tx.Model(&models.Invoice{}).Where("id = ?", inv.ID).
				Updates(map[string]any{"subtotal": subtotal, "total": total}).Error; err != nil {
				return err
			}
			inv.Items = items
			inv.Subtotal = subtotal
			inv.Total = total
			return nil
		})
		if err == nil {
			return &inv, nil
		}
		if isUniqueViolation(err) && attempt < sequenceRetries {
			s.Log.Warn("order number collision, retrying",
				zap.String("order_number", inv.OrderNumber), zap.Int("attempt", attempt+1))
			continue
		}
		return nil, err
	}
}

// ComputeTotals sums price*quantity over the items and applies the percentage
// discount. Both amounts are rounded to two decimal places.
func ComputeTotals(items []models.InvoiceItem, discountPercent float64) (subtotal, total decimal.Decimal) {
	subtotal = decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	subtotal = subtotal.Round(2)
	discount := subtotal.Mul(decimal.NewFromFloat(discountPercent)).Div(decimal.NewFromInt(100))
	total = subtotal.Sub(discount).Round(2)
	return subtotal, total
}

// DiscountAmount is the currency value subtracted from the subtotal; the
// renderer shows it on its own row when the discount is non-zero.
func DiscountAmount(subtotal decimal.Decimal, discountPercent float64) decimal.Decimal {
	return subtotal.Mul(decimal.NewFromFloat(discountPercent)).Div(decimal.NewFromInt(100)).Round(2)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint")
}
