package validation

import (
	"fmt"
	"sort"
	"strings"
)

// Violations collects field-level problems so a form submission can be
// rejected with every error at once instead of one per round trip.
type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Messages renders the violations as human-readable strings in stable field
// order so error lists don't jump around between submissions.
func (v Violations) Messages() []string {
	fields := make([]string, 0, len(v))
	for field := range v {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		out = append(out, fmt.Sprintf("%s: %s", field, v[field]))
	}
	return out
}

func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v[field] = "required"
	}
}

func PositiveFloat(field string, val float64, v Violations) {
	if val <= 0 {
		v[field] = "must_be_positive"
	}
}

func RangeFloat(field string, val, minVal, maxVal float64, v Violations) {
	if val < minVal || val > maxVal {
		v[field] = "out_of_range"
	}
}

func OneOf(field, value string, allowed []string, v Violations) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v[field] = "invalid_value"
}
