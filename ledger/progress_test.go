package ledger_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/course-ledger/ledger"
)

func TestPercentage(t *testing.T) {
	tests := []struct {
		completed int
		total     int
		expected  int
	}{
		{0, 0, 0},
		{3, 0, 0},
		{0, 5, 0},
		{1, 3, 33},
		{2, 3, 67},
		{1, 2, 50},
		{1, 8, 13},
		{3, 8, 38},
		{49, 50, 98},
		{1, 200, 1},
		{1, 201, 0},
		{5, 5, 100},
		{6, 5, 100},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, ledger.Percentage(tc.completed, tc.total),
			"completed=%d total=%d", tc.completed, tc.total)
	}
}

func TestPercentage_RoundsHalfUp(t *testing.T) {
	// GIVEN: A course with 201 lessons
	// WHEN: 200 are complete (99.502%)
	// THEN: The stored value rounds to 100
	assert.Equal(t, 100, ledger.Percentage(200, 201))
	assert.Equal(t, 99, ledger.Percentage(199, 201))
}

func TestNewPage_Defaults(t *testing.T) {
	tests := []struct {
		name        string
		page, limit int
		wantPage    int
		wantLimit   int
	}{
		{"non-positive fall back", 0, -1, ledger.DefaultPage, ledger.DefaultLimit},
		{"in range kept", 3, 50, 3, 50},
		{"limit capped", 2, 1_000_000, 2, ledger.MaxLimit},
		{"max int limit capped", 1, math.MaxInt, 1, ledger.MaxLimit},
		{"max int page clamped", math.MaxInt, 10, math.MaxInt32/10 + 1, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ledger.NewPage(tt.page, tt.limit)
			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, tt.wantLimit, p.Limit)
			assert.GreaterOrEqual(t, p.Offset(), 0)
			assert.LessOrEqual(t, p.Offset(), math.MaxInt32)
		})
	}
}

func TestPage_OffsetAndPages(t *testing.T) {
	p := ledger.NewPage(3, 10)
	assert.Equal(t, 20, p.Offset())

	tests := []struct {
		total int
		limit int
		want  int
	}{
		{0, 10, 0},
		{-5, 10, 0},
		{10, 10, 1},
		{11, 10, 2},
		{25, 10, 3},
		{1, 100, 1},
		{math.MaxInt, 10, math.MaxInt/10 + 1},
		{math.MaxInt, 100, math.MaxInt/100 + 1},
		{math.MaxInt - 1, 1, math.MaxInt - 1},
	}
	for _, tt := range tests {
		got := ledger.NewPage(1, tt.limit).Pages(tt.total)
		assert.Equal(t, tt.want, got, "total=%d limit=%d", tt.total, tt.limit)
	}
}
