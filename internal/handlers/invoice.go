package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ashanw/subplanet-invoicer/internal/httpx"
	"github.com/ashanw/subplanet-invoicer/internal/models"
	"github.com/ashanw/subplanet-invoicer/internal/pdf"
	"github.com/ashanw/subplanet-invoicer/internal/services"
	"github.com/ashanw/subplanet-invoicer/internal/session"
	"github.com/ashanw/subplanet-invoicer/internal/validation"
)

const dateLayout = "2006-01-02"

type InvoiceHandler struct {
	DB       *gorm.DB
	Svc      *services.InvoiceService
	Sessions *session.Manager
	PDFOpts  pdf.Options
	Log      *zap.Logger
}

func NewInvoiceHandler(db *gorm.DB, svc *services.InvoiceService, sm *session.Manager, opts pdf.Options, log *zap.Logger) *InvoiceHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &InvoiceHandler{DB: db, Svc: svc, Sessions: sm, PDFOpts: opts, Log: log}
}

type createInvoiceRequest struct {
	ClientName     string               `json:"client_name"`
	CustomerPhone  string               `json:"customer_phone"`
	PaymentStatus  string               `json:"payment_status"`
	PurchaseDate   string               `json:"purchase_date"`
	ExpireDuration string               `json:"expire_duration"`
	Discount       float64              `json:"discount"`
	Items          []services.LineInput `json:"items"`
	CSRFToken      string               `json:"csrf_token"`
}

// Create: POST /invoices – validates the order, persists it atomically and
// streams the rendered PDF back as the success response.
func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCreateRequest(w, r)
	if !ok {
		return
	}
	// Anti-forgery first: a bad token aborts before anything is touched.
	if !verifyCSRF(h.Sessions, r, req.CSRFToken) {
		httpx.JSONError(w, http.StatusForbidden, "invalid_csrf_token", "Invalid CSRF token.")
		return
	}

	v := validation.Violations{}
	validation.Required("client_name", req.ClientName, v)
	validation.Required("customer_phone", req.CustomerPhone, v)
	validation.Required("purchase_date", req.PurchaseDate, v)
	validation.Required("expire_duration", req.ExpireDuration, v)
	validation.OneOf("payment_status", req.PaymentStatus,
		[]string{models.PaymentPaid, models.PaymentNotPaid, models.PaymentPartial}, v)
	validation.RangeFloat("discount", req.Discount, 0, 100, v)
	var purchase time.Time
	if req.PurchaseDate != "" {
		var err error
		purchase, err = time.Parse(dateLayout, req.PurchaseDate)
		if err != nil {
			v["purchase_date"] = "invalid_date"
		}
	}
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v.Messages()...)
		return
	}

	inv, err := h.Svc.Create(r.Context(), services.CreateInvoiceInput{
		ClientName:      strings.TrimSpace(req.ClientName),
		CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
		PaymentStatus:   req.PaymentStatus,
		PurchaseDate:    purchase,
		ExpireDuration:  req.ExpireDuration,
		DiscountPercent: req.Discount,
		Lines:           req.Items,
	})
	if err != nil {
		var notFound *services.ProductNotFoundError
		switch {
		case errors.As(err, &notFound):
			httpx.JSONError(w, http.StatusUnprocessableEntity, "product_not_found",
				fmt.Sprintf("Product '%s' not found.", notFound.Name))
		case errors.Is(err, services.ErrNoValidItems):
			httpx.JSONError(w, http.StatusUnprocessableEntity, "no_valid_products", "No valid products selected.")
		case errors.Is(err, services.ErrUnknownDuration):
			httpx.JSONError(w, http.StatusBadRequest, "invalid_expire_duration", "Failed to calculate expire date.")
		default:
			h.Log.Error("create invoice", zap.Error(err))
			httpx.JSONError(w, http.StatusInternalServerError, "invoice_create_failed", "Error creating invoice. Please try again.")
		}
		return
	}

	h.writePDF(w, inv)
}

// List: GET /invoices – newest first.
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 1 {
			offset = (n - 1) * limit
		}
	}
	var total int64
	h.DB.Model(&models.Invoice{}).Count(&total)
	var invs []models.Invoice
	if err := h.DB.Preload("Items.Product").Order("id desc").Limit(limit).Offset(offset).Find(&invs).Error; err != nil {
		h.Log.Error("list invoices", zap.Error(err))
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_invoices")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": invs, "total": total, "limit": limit, "offset": offset})
}

// PDF: GET /invoices/pdf?id=... – re-renders the document for an issued
// invoice from its stored snapshots.
func (h *InvoiceHandler) PDF(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(r.URL.Query().Get("id"))
	if id <= 0 {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id")
		return
	}
	var inv models.Invoice
	if err := h.DB.Preload("Items.Product").First(&inv, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.JSONError(w, http.StatusNotFound, "not_found")
			return
		}
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_load_invoice")
		return
	}
	h.writePDF(w, &inv)
}

func (h *InvoiceHandler) writePDF(w http.ResponseWriter, inv *models.Invoice) {
	doc := pdf.Invoice{
		OrderNumber:     inv.OrderNumber,
		PaymentStatus:   inv.PaymentStatus,
		ClientName:      inv.ClientName,
		CustomerPhone:   inv.CustomerPhone,
		PurchaseDate:    inv.PurchaseDate.Format(dateLayout),
		ExpireDate:      inv.ExpireDate.Format(dateLayout),
		Subtotal:        inv.Subtotal,
		DiscountPercent: inv.DiscountPercent,
		DiscountAmount:  services.DiscountAmount(inv.Subtotal, inv.DiscountPercent),
		Total:           inv.Total,
	}
	for _, it := range inv.Items {
		doc.Items = append(doc.Items, pdf.Item{
			ProductNumber: it.Product.ProductNumber,
			Name:          it.Product.Name,
			Quantity:      it.Quantity,
			UnitPrice:     it.Price,
			UpgraderKey:   it.UpgraderKey,
		})
	}
	data, err := pdf.Render(doc, h.PDFOpts)
	if err != nil {
		h.Log.Error("render invoice pdf", zap.String("order_number", inv.OrderNumber), zap.Error(err))
		httpx.JSONError(w, http.StatusInternalServerError, "pdf_generation_failed",
			"PDF generation failed. Please try again later.")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="invoice_`+inv.OrderNumber+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *InvoiceHandler) decodeCreateRequest(w http.ResponseWriter, r *http.Request) (createInvoiceRequest, bool) {
	var req createInvoiceRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "invalid_json")
			return req, false
		}
		return req, true
	}
	if err := r.ParseForm(); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_form")
		return req, false
	}
	req.ClientName = r.FormValue("client_name")
	req.CustomerPhone = r.FormValue("customer_phone")
	req.PaymentStatus = r.FormValue("payment_status")
	req.PurchaseDate = r.FormValue("purchase_date")
	req.ExpireDuration = r.FormValue("expire_duration")
	req.CSRFToken = r.FormValue("csrf_token")
	if d := r.FormValue("discount"); d != "" {
		req.Discount, _ = strconv.ParseFloat(d, 64)
	}
	// The form posts one value per line under repeated field names; fold the
	// parallel arrays into ordered line records here, at the boundary.
	names := r.Form["product_name"]
	quantities := r.Form["quantity"]
	keys := r.Form["upgrader_key"]
	for i, name := range names {
		line := services.LineInput{ProductName: name}
		if i < len(quantities) {
			line.Quantity, _ = strconv.Atoi(quantities[i])
		}
		if i < len(keys) {
			line.UpgraderKey = keys[i]
		}
		req.Items = append(req.Items, line)
	}
	return req, true
}
