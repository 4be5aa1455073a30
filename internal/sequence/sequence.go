// Package sequence issues the human-readable catalog and order identifiers
// (P0001, O0001, ...). The next number is derived from the most recently
// inserted row, so gaps left by deletions are never refilled.
package sequence

import (
	"fmt"
	"regexp"
	"strconv"

	"gorm.io/gorm"

	"github.com/ashanw/subplanet-invoicer/internal/models"
)

const (
	ProductPrefix = "P"
	OrderPrefix   = "O"

	digits = 4
)

var (
	productPattern = regexp.MustCompile(`^P(\d{4})$`)
	orderPattern   = regexp.MustCompile(`^O(\d{4})$`)
)

// NextProductNumber returns the next free product number. Call it inside the
// transaction that inserts the product; the unique index on product_number
// catches the losing side of a race and the caller retries.
func NextProductNumber(tx *gorm.DB) (string, error) {
	return next(tx, &models.Product{}, "product_number", ProductPrefix, productPattern)
}

// NextOrderNumber returns the next free invoice order number. Same
// transactional contract as NextProductNumber.
func NextOrderNumber(tx *gorm.DB) (string, error) {
	return next(tx, &models.Invoice{}, "order_number", OrderPrefix, orderPattern)
}

func next(tx *gorm.DB, model any, column, prefix string, pattern *regexp.Regexp) (string, error) {
	var last string
	err := tx.Model(model).Select(column).Order("id desc").Limit(1).Scan(&last).Error
	if err != nil {
		return "", fmt.Errorf("read latest %s: %w", column, err)
	}
	n := 1
	if m := pattern.FindStringSubmatch(last); m != nil {
		prev, _ := strconv.Atoi(m[1])
		n = prev + 1
	}
	return fmt.Sprintf("%s%0*d", prefix, digits, n), nil
}
