package pagination

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 20
	// MaxLimit caps how many rows any page can request.
	MaxLimit = 100
)

// Params holds page-based pagination inputs from controllers or services.
type Params struct {
	Page  int
	Limit int
}

// Meta is returned alongside a page of results.
type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// FromQuery reads page and limit; malformed values fall back to defaults.
func FromQuery(values url.Values) Params {
	page, _ := strconv.Atoi(strings.TrimSpace(values.Get("page")))
	limit, _ := strconv.Atoi(strings.TrimSpace(values.Get("limit")))
	return Params{Page: page, Limit: limit}.Normalize()
}

// Normalize enforces page >= 1 and the configured default and maximum limits.
func (p Params) Normalize() Params {
	if p.Page < 1 {
		p.Page = 1
	}
	p.Limit = NormalizeLimit(p.Limit)
	return p
}

// Offset returns the row offset for the page.
func (p Params) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Limit
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// NewMeta computes totals for the page.
func NewMeta(p Params, total int64) Meta {
	n := p.Normalize()
	pages := int((total + int64(n.Limit) - 1) / int64(n.Limit))
	return Meta{Page: n.Page, Limit: n.Limit, Total: total, TotalPages: pages}
}
