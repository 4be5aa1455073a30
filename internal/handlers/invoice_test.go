package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ashanw/subplanet-invoicer/internal/models"
	"github.com/ashanw/subplanet-invoicer/internal/pdf"
	"github.com/ashanw/subplanet-invoicer/internal/services"
	"github.com/ashanw/subplanet-invoicer/internal/session"
)

func newInvoiceHandler(db *gorm.DB, m *session.Manager) *InvoiceHandler {
	return NewInvoiceHandler(db, services.NewInvoiceService(db, nil), m, pdf.Options{}, nil)
}

func seedProducts(t *testing.T, db *gorm.DB) {
	t.Helper()
	products := []models.Product{
		{ProductNumber: "P0001", Name: "Spotify Premium", Price: decimal.NewFromInt(1450)},
		{ProductNumber: "P0002", Name: "Netflix Standard", Price: decimal.NewFromInt(2900)},
	}
	for i := range products {
		if err := db.Create(&products[i]).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestInvoiceCreateReturnsPDF(t *testing.T) {
	db := setupTestDB(t)
	seedProducts(t, db)
	m := session.NewManager("test-secret")
	h := newInvoiceHandler(db, m)

	body := `{
		"client_name": "Kasun Perera",
		"customer_phone": "0771234567",
		"payment_status": "Paid",
		"purchase_date": "2024-03-01",
		"expire_duration": "1_month",
		"discount": 10,
		"items": [
			{"product_name": "Spotify Premium", "quantity": 2, "upgrader_key": "SPOT-123"},
			{"product_name": "Netflix Standard", "quantity": 1}
		]
	}`
	req, token := authedRequest(t, m, http.MethodPost, "/invoices", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", token)
	w := httptest.NewRecorder()
	h.Create(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("expected application/pdf got %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "invoice_O0001.pdf") {
		t.Fatalf("unexpected Content-Disposition: %s", cd)
	}
	if !strings.HasPrefix(w.Body.String(), "%PDF") {
		t.Fatal("body is not a PDF document")
	}

	var inv models.Invoice
	if err := db.Preload("Items").First(&inv).Error; err != nil {
		t.Fatalf("load invoice: %v", err)
	}
	if inv.OrderNumber != "O0001" {
		t.Fatalf("expected O0001 got %s", inv.OrderNumber)
	}
	if inv.Subtotal.StringFixed(2) != "5800.00" || inv.Total.StringFixed(2) != "5220.00" {
		t.Fatalf("unexpected totals: subtotal=%s total=%s", inv.Subtotal, inv.Total)
	}
	if inv.ExpireDate.Format("2006-01-02") != "2024-04-01" {
		t.Fatalf("unexpected expire date: %s", inv.ExpireDate)
	}
	if len(inv.Items) != 2 {
		t.Fatalf("expected 2 items got %d", len(inv.Items))
	}
}

func TestInvoiceCreateFormEncoded(t *testing.T) {
	db := setupTestDB(t)
	seedProducts(t, db)
	m := session.NewManager("test-secret")
	h := newInvoiceHandler(db, m)

	form := url.Values{
		"client_name":     {"Kasun Perera"},
		"customer_phone":  {"0771234567"},
		"payment_status":  {"Not Paid"},
		"purchase_date":   {"2024-03-01"},
		"expire_duration": {"1_year"},
		"product_name":    {"Spotify Premium", "Netflix Standard"},
		"quantity":        {"1", "2"},
		"upgrader_key":    {"SPOT-123", ""},
	}
	req, token := authedRequest(t, m, http.MethodPost, "/invoices", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-CSRF-Token", token)
	w := httptest.NewRecorder()
	h.Create(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	var items []models.InvoiceItem
	if err := db.Order("id asc").Find(&items).Error; err != nil {
		t.Fatalf("load items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items got %d", len(items))
	}
	if items[0].Quantity != 1 || items[1].Quantity != 2 {
		t.Fatalf("parallel form fields not folded in order: %+v", items)
	}
	if items[0].UpgraderKey != "SPOT-123" || items[1].UpgraderKey != "" {
		t.Fatalf("unexpected upgrader keys: %+v", items)
	}
}

func TestInvoiceCreateRejectsBadCSRF(t *testing.T) {
	db := setupTestDB(t)
	seedProducts(t, db)
	m := session.NewManager("test-secret")
	h := newInvoiceHandler(db, m)

	req, _ := authedRequest(t, m, http.MethodPost, "/invoices",
		strings.NewReader(`{"client_name":"X","csrf_token":"forged"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.Create(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Invalid CSRF token.") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestInvoiceCreateValidation(t *testing.T) {
	db := setupTestDB(t)
	m := session.NewManager("test-secret")
	h := newInvoiceHandler(db, m)

	body := `{
		"client_name": "",
		"customer_phone": "",
		"payment_status": "Maybe",
		"purchase_date": "01/03/2024",
		"expire_duration": "",
		"discount": 150
	}`
	req, token := authedRequest(t, m, http.MethodPost, "/invoices", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", token)
	w := httptest.NewRecorder()
	h.Create(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Errors []string `json:"errors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Errors) < 5 {
		t.Fatalf("expected violations for every field, got %v", resp.Errors)
	}
}

func TestInvoiceCreateUnknownProduct(t *testing.T) {
	db := setupTestDB(t)
	seedProducts(t, db)
	m := session.NewManager("test-secret")
	h := newInvoiceHandler(db, m)

	body := `{
		"client_name": "Kasun Perera",
		"customer_phone": "0771234567",
		"payment_status": "Paid",
		"purchase_date": "2024-03-01",
		"expire_duration": "1_month",
		"items": [{"product_name": "Disney Plus", "quantity": 1}]
	}`
	req, token := authedRequest(t, m, http.MethodPost, "/invoices", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", token)
	w := httptest.NewRecorder()
	h.Create(w, req)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Product 'Disney Plus' not found.") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}

	// Nothing persisted.
	var count int64
	db.Model(&models.Invoice{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no invoices, got %d", count)
	}
}

func TestInvoiceListNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	seedProducts(t, db)
	m := session.NewManager("test-secret")
	h := newInvoiceHandler(db, m)

	for i := 1; i <= 2; i++ {
		createTestInvoice(t, db, m, h, fmt.Sprintf("Client %d", i))
	}

	req := httptest.NewRequest(http.MethodGet, "/invoices", nil)
	w := httptest.NewRecorder()
	h.List(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	var payload struct {
		Items []models.Invoice `json:"items"`
		Total int64            `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Total != 2 {
		t.Fatalf("expected 2 invoices got %d", payload.Total)
	}
	if payload.Items[0].OrderNumber != "O0002" {
		t.Fatalf("expected newest first, got %s", payload.Items[0].OrderNumber)
	}
	if len(payload.Items[0].Items) == 0 || payload.Items[0].Items[0].Product.Name == "" {
		t.Fatal("expected items with product preloaded")
	}
}

func TestInvoicePDFReRender(t *testing.T) {
	db := setupTestDB(t)
	seedProducts(t, db)
	m := session.NewManager("test-secret")
	h := newInvoiceHandler(db, m)

	createTestInvoice(t, db, m, h, "Kasun Perera")
	var inv models.Invoice
	if err := db.First(&inv).Error; err != nil {
		t.Fatalf("load: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/invoices/pdf?id=%d", inv.ID), nil)
	w := httptest.NewRecorder()
	h.PDF(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	if !strings.HasPrefix(w.Body.String(), "%PDF") {
		t.Fatal("body is not a PDF document")
	}

	// Unknown id.
	req2 := httptest.NewRequest(http.MethodGet, "/invoices/pdf?id=999", nil)
	w2 := httptest.NewRecorder()
	h.PDF(w2, req2)
	if w2.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w2.Code)
	}
}

func createTestInvoice(t *testing.T, db *gorm.DB, m *session.Manager, h *InvoiceHandler, client string) {
	t.Helper()
	body := fmt.Sprintf(`{
		"client_name": %q,
		"customer_phone": "0771234567",
		"payment_status": "Paid",
		"purchase_date": "2024-03-01",
		"expire_duration": "1_month",
		"items": [{"product_name": "Spotify Premium", "quantity": 1}]
	}`, client)
	req, token := authedRequest(t, m, http.MethodPost, "/invoices", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", token)
	w := httptest.NewRecorder()
	h.Create(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("create invoice: %d body=%s", w.Code, w.Body.String())
	}
}
