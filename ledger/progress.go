package ledger

import (
	"math"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Percentage returns round(100 * completed / total), or 0 when total is 0.
// Halves round away from zero, so 1 of 8 lessons is 13%.
func Percentage(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	pct := decimal.NewFromInt(int64(completed)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(total))).
		Round(0)
	return int(pct.IntPart())
}

// =============================================================================
// PAGINATION
// =============================================================================

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// maxOffset bounds Offset so it fits a SQL OFFSET on every platform.
const maxOffset = math.MaxInt32

// Page is an offset-based page request.
type Page struct {
	Page  int
	Limit int
}

// NewPage applies defaults to non-positive values, caps the limit at
// MaxLimit, and clamps the page so Offset cannot overflow. A clamped page
// still lies past any real history and reads back empty.
func NewPage(page, limit int) Page {
	if page <= 0 {
		page = DefaultPage
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)
	if page-1 > maxOffset/limit {
		page = maxOffset/limit + 1
	}
	return Page{Page: page, Limit: limit}
}

// Offset is the number of rows to skip.
func (p Page) Offset() int { return (p.Page - 1) * p.Limit }

// Pages returns ceil(total / limit).
func (p Page) Pages(total int) int {
	if total <= 0 || p.Limit <= 0 {
		return 0
	}
	n := total / p.Limit
	if total%p.Limit != 0 {
		n++
	}
	return n
}
