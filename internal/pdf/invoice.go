// Package pdf renders a finalized invoice into a printable document. It is a
// pure function of the invoice data handed to it; storage and HTTP concerns
// stay in the callers.
package pdf

import (
	"fmt"
	"os"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/image"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/extension"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
)

const (
	brandName  = "SUBSCRIPTION PLANET"
	brandPhone = "Phone: 075 696 4895"
	brandEmail = "Email: subscriptionplanet@gmail.com"

	currency = "LKR"
)

// Invoice is the render input: a finalized header plus its line items,
// already formatted where the layout needs strings (dates).
type Invoice struct {
	OrderNumber     string
	PaymentStatus   string
	ClientName      string
	CustomerPhone   string
	PurchaseDate    string
	ExpireDate      string
	Subtotal        decimal.Decimal
	DiscountPercent float64
	DiscountAmount  decimal.Decimal
	Total           decimal.Decimal
	Items           []Item
}

// Item is one invoiced line. UpgraderKey, when non-empty, renders as an
// annotation row beneath the line.
type Item struct {
	ProductNumber string
	Name          string
	Quantity      int
	UnitPrice     decimal.Decimal
	UpgraderKey   string
}

// Options point at optional artwork. Missing files degrade gracefully: the
// document renders without the logo or background instead of failing.
type Options struct {
	LogoPath       string
	BackgroundPath string
}

// Amount formats a currency value with the fixed label and two decimals.
func Amount(d decimal.Decimal) string {
	return currency + " " + d.StringFixed(2)
}

// NegAmount formats a deduction, e.g. "-LKR 25.00".
func NegAmount(d decimal.Decimal) string {
	return "-" + Amount(d)
}

// Render produces the PDF bytes for the invoice. The input is not mutated.
func Render(inv Invoice, opts Options) ([]byte, error) {
	builder := config.NewBuilder().
		WithPageNumber(props.PageNumber{Pattern: "Page {current} of {total}", Place: props.RightBottom})
	if fileExists(opts.BackgroundPath) {
		builder = builder.WithBackgroundImage(opts.BackgroundPath, extension.Jpg)
	}
	m := maroto.New(builder.Build())

	// Branding block
	if fileExists(opts.LogoPath) {
		m.AddRow(24,
			image.NewFromFileCol(3, opts.LogoPath, props.Rect{Percent: 80}),
			col.New(9).Add(
				text.New(brandName, props.Text{Size: 14, Style: fontstyle.Bold}),
				text.New(brandPhone, props.Text{Top: 8, Size: 9}),
				text.New(brandEmail, props.Text{Top: 12, Size: 9}),
			),
		)
	} else {
		m.AddRow(24, col.New(12).Add(
			text.New(brandName, props.Text{Size: 14, Style: fontstyle.Bold}),
			text.New(brandPhone, props.Text{Top: 8, Size: 9}),
			text.New(brandEmail, props.Text{Top: 12, Size: 9}),
		))
	}
	m.AddRow(10, text.NewCol(12, "Invoice", props.Text{Size: 18, Style: fontstyle.Bold}))
	m.AddRow(2, line.NewCol(12))

	// Key/value block, two columns of three rows
	kv := [][2]string{
		{"Order Number: " + inv.OrderNumber, "Payment Status: " + inv.PaymentStatus},
		{"Client Name: " + inv.ClientName, "Customer Phone: " + inv.CustomerPhone},
		{"Purchase Date: " + inv.PurchaseDate, "Expire Date: " + inv.ExpireDate},
	}
	for _, row := range kv {
		m.AddRow(7,
			text.NewCol(6, row[0], props.Text{Size: 10}),
			text.NewCol(6, row[1], props.Text{Size: 10}),
		)
	}
	m.AddRow(2, line.NewCol(12))

	// Item table
	m.AddRow(8,
		text.NewCol(3, "Product Number", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Product Name", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(1, "Quantity", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(1, line.NewCol(12))
	for _, it := range inv.Items {
		lineTotal := it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
		m.AddRow(7,
			text.NewCol(3, it.ProductNumber, props.Text{Size: 9}),
			text.NewCol(4, it.Name, props.Text{Size: 9}),
			text.NewCol(1, fmt.Sprintf("%d", it.Quantity), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, Amount(it.UnitPrice), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, Amount(lineTotal), props.Text{Size: 9, Align: align.Right}),
		)
		if it.UpgraderKey != "" {
			m.AddRow(6, text.NewCol(12, "Upgrader Key: "+it.UpgraderKey,
				props.Text{Size: 8, Style: fontstyle.Italic}))
		}
	}
	m.AddRow(1, line.NewCol(12))

	// Totals block; the discount row only appears when a discount applies.
	m.AddRow(7,
		col.New(8),
		text.NewCol(2, "Subtotal:", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, Amount(inv.Subtotal), props.Text{Size: 9, Align: align.Right}),
	)
	if inv.DiscountPercent > 0 {
		m.AddRow(7,
			col.New(8),
			text.NewCol(2, fmt.Sprintf("Discount (%.2f%%):", inv.DiscountPercent),
				props.Text{Style: fontstyle.Bold, Size: 9}),
			text.NewCol(2, NegAmount(inv.DiscountAmount), props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(7,
		col.New(8),
		text.NewCol(2, "Total:", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, Amount(inv.Total), props.Text{Size: 9, Align: align.Right}),
	)

	m.AddRow(10, text.NewCol(12, "Thank you for your business!", props.Text{Size: 10, Top: 4}))

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate invoice document: %w", err)
	}
	return doc.GetBytes(), nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
