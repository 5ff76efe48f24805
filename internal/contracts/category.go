package contracts

import (
	"fmt"
	"strings"
)

// Category is one of the fixed CAMPS engagement dimensions
// ⭐ SSOT: 카테고리 목록은 여기서만 정의
type Category string

const (
	CategoryCertainty       Category = "CERTAINTY"
	CategoryAutonomy        Category = "AUTONOMY"
	CategoryMeaning         Category = "MEANING"
	CategoryProgress        Category = "PROGRESS"
	CategorySocialInclusion Category = "SOCIAL_INCLUSION"
)

var allCategories = [...]Category{
	CategoryCertainty,
	CategoryAutonomy,
	CategoryMeaning,
	CategoryProgress,
	CategorySocialInclusion,
}

// AllCategories returns every category in declaration order
func AllCategories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories[:])
	return out
}

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	for _, known := range allCategories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory converts user input (case-insensitive) to a Category
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// CategoryValues maps a category to a value that is known to exist.
// A missing key means "no data", which is different from 0.
type CategoryValues map[Category]float64

// Get returns the value and whether it is present
func (v CategoryValues) Get(c Category) (float64, bool) {
	value, ok := v[c]
	return value, ok
}
