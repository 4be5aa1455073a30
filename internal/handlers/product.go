package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ashanw/subplanet-invoicer/internal/httpx"
	"github.com/ashanw/subplanet-invoicer/internal/models"
	"github.com/ashanw/subplanet-invoicer/internal/sequence"
	"github.com/ashanw/subplanet-invoicer/internal/session"
	"github.com/ashanw/subplanet-invoicer/internal/validation"
)

type ProductHandler struct {
	DB       *gorm.DB
	Sessions *session.Manager
	Log      *zap.Logger
}

func NewProductHandler(db *gorm.DB, sm *session.Manager, log *zap.Logger) *ProductHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProductHandler{DB: db, Sessions: sm, Log: log}
}

// List: GET /products – catalog ordered by name ascending.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
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
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	dbq := h.DB
	if q != "" {
		like := "%" + strings.ToLower(q) + "%"
		dbq = dbq.Where("lower(name) LIKE ? OR lower(product_number) LIKE ?", like, like)
	}
	var total int64
	dbq.Model(&models.Product{}).Count(&total)
	var products []models.Product
	if err := dbq.Order("name asc").Limit(limit).Offset(offset).Find(&products).Error; err != nil {
		h.Log.Error("list products", zap.Error(err))
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_products")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": products, "total": total, "limit": limit, "offset": offset})
}

// Create: POST /products – product number is generated server-side inside the
// insert transaction, so a racing submission retries instead of issuing a
// duplicate number.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeProductInput(w, r)
	if !ok {
		return
	}
	if !verifyCSRF(h.Sessions, r, input.CSRFToken) {
		httpx.JSONError(w, http.StatusForbidden, "invalid_csrf_token", "Invalid CSRF token.")
		return
	}
	v := validation.Violations{}
	validation.Required("name", input.Name, v)
	validation.PositiveFloat("price", input.Price.InexactFloat64(), v)
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v.Messages()...)
		return
	}

	var p models.Product
	var err error
	for attempt := 0; attempt <= 3; attempt++ {
		err = h.DB.Transaction(func(tx *gorm.DB) error {
			number, err := sequence.NextProductNumber(tx)
			if err != nil {
				return err
			}
			p = models.Product{ProductNumber: number, Name: strings.TrimSpace(input.Name), Price: input.Price.Round(2)}
			return tx.Create(&p).Error
		})
		if err == nil || !isDuplicate(err) {
			break
		}
	}
	if err != nil {
		h.Log.Error("create product", zap.Error(err))
		httpx.JSONError(w, http.StatusInternalServerError, "product_create_failed", "Error adding product. Please try again.")
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

// Update allows editing name and price; the product number is immutable.
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
		httpx.JSONError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	input, ok := h.decodeProductInput(w, r)
	if !ok {
		return
	}
	if !verifyCSRF(h.Sessions, r, input.CSRFToken) {
		httpx.JSONError(w, http.StatusForbidden, "invalid_csrf_token", "Invalid CSRF token.")
		return
	}
	if input.ID <= 0 {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id")
		return
	}
	v := validation.Violations{}
	validation.Required("name", input.Name, v)
	validation.PositiveFloat("price", input.Price.InexactFloat64(), v)
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v.Messages()...)
		return
	}
	var p models.Product
	if err := h.DB.First(&p, input.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.JSONError(w, http.StatusNotFound, "not_found")
			return
		}
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_load_product")
		return
	}
	p.Name = strings.TrimSpace(input.Name)
	p.Price = input.Price.Round(2)
	if err := h.DB.Save(&p).Error; err != nil {
		h.Log.Error("update product", zap.Error(err))
		httpx.JSONError(w, http.StatusInternalServerError, "update_failed", "Error updating product. Please try again.")
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

// Delete removes a catalog entry. Issued invoices keep their price snapshots,
// and the freed product number is never reissued.
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		httpx.JSONError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	token := r.Header.Get("X-CSRF-Token")
	if token == "" {
		_ = r.ParseForm()
		token = r.FormValue("csrf_token")
	}
	if !verifyCSRF(h.Sessions, r, token) {
		httpx.JSONError(w, http.StatusForbidden, "invalid_csrf_token", "Invalid CSRF token.")
		return
	}
	idStr := r.URL.Query().Get("id")
	if idStr == "" {
		idStr = r.FormValue("id")
	}
	id, _ := strconv.Atoi(idStr)
	if id <= 0 {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id")
		return
	}
	if err := h.DB.Delete(&models.Product{}, id).Error; err != nil {
		h.Log.Error("delete product", zap.Error(err))
		httpx.JSONError(w, http.StatusInternalServerError, "delete_failed", "Error deleting product. Please try again.")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// Price: GET /products/price?name=... – used by the order-entry form to fill
// line prices without a page reload.
func (h *ProductHandler) Price(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		httpx.JSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Product name is required."})
		return
	}
	var p models.Product
	if err := h.DB.Where("name = ?", name).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.JSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Product not found."})
			return
		}
		h.Log.Error("price lookup", zap.Error(err))
		httpx.JSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Lookup failed."})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"message":        "Product found.",
		"product_number": p.ProductNumber,
		"price":          p.Price.InexactFloat64(),
	})
}

type productInput struct {
	ID        int             `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	CSRFToken string          `json:"csrf_token"`
}

func (h *ProductHandler) decodeProductInput(w http.ResponseWriter, r *http.Request) (productInput, bool) {
	var input productInput
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "invalid_json")
			return input, false
		}
		if input.CSRFToken == "" {
			input.CSRFToken = r.Header.Get("X-CSRF-Token")
		}
		return input, true
	}
	if err := r.ParseForm(); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_form")
		return input, false
	}
	input.Name = r.FormValue("name")
	input.CSRFToken = r.FormValue("csrf_token")
	if idStr := r.FormValue("product_id"); idStr != "" {
		input.ID, _ = strconv.Atoi(idStr)
	}
	if priceStr := r.FormValue("price"); priceStr != "" {
		if d, err := decimal.NewFromString(priceStr); err == nil {
			input.Price = d
		}
	}
	return input, true
}

func verifyCSRF(m *session.Manager, r *http.Request, token string) bool {
	if token == "" {
		token = r.Header.Get("X-CSRF-Token")
	}
	return m.VerifyCSRF(r, token)
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint")
}
