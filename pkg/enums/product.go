package enums

import (
	"fmt"
	"strings"
)

// ProductCategory groups catalog products for filtering.
type ProductCategory string

const (
	ProductCategoryBooster    ProductCategory = "booster"
	ProductCategoryDisplay    ProductCategory = "display"
	ProductCategoryETB        ProductCategory = "etb"
	ProductCategorySingle     ProductCategory = "single"
	ProductCategoryAccessory  ProductCategory = "accessory"
	ProductCategoryCollection ProductCategory = "collection"
)

var validProductCategories = []ProductCategory{
	ProductCategoryBooster,
	ProductCategoryDisplay,
	ProductCategoryETB,
	ProductCategorySingle,
	ProductCategoryAccessory,
	ProductCategoryCollection,
}

// String implements fmt.Stringer.
func (c ProductCategory) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ProductCategory.
func (c ProductCategory) IsValid() bool {
	for _, candidate := range validProductCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseProductCategory converts raw input into a ProductCategory.
func ParseProductCategory(value string) (ProductCategory, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validProductCategories {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product category %q", value)
}
