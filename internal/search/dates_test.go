package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseDateExpr(t *testing.T) {
	// now is Wednesday 2024-03-20 12:00 UTC
	tests := []struct {
		expr string
		want DateRange
	}{
		{"today", DateRange{date(2024, 3, 20), date(2024, 3, 21)}},
		{"Yesterday", DateRange{date(2024, 3, 19), date(2024, 3, 20)}},
		{"this week", DateRange{date(2024, 3, 18), date(2024, 3, 25)}},
		{"last week", DateRange{date(2024, 3, 11), date(2024, 3, 18)}},
		{"this month", DateRange{date(2024, 3, 1), date(2024, 4, 1)}},
		{"last month", DateRange{date(2024, 2, 1), date(2024, 3, 1)}},
		{"this year", DateRange{date(2024, 1, 1), date(2025, 1, 1)}},
		{"last year", DateRange{date(2023, 1, 1), date(2024, 1, 1)}},
		{"2021", DateRange{date(2021, 1, 1), date(2022, 1, 1)}},
		{"2021-02", DateRange{date(2021, 2, 1), date(2021, 3, 1)}},
		{"2021-02-03", DateRange{date(2021, 2, 3), date(2021, 2, 4)}},
		{"-3 days", DateRange{now.AddDate(0, 0, -3), now}},
		{"-1 week", DateRange{now.AddDate(0, 0, -7), now}},
		{"-2 hours", DateRange{now.Add(-2 * time.Hour), now}},
		{"[2020 to 2021]", DateRange{date(2020, 1, 1), date(2022, 1, 1)}},
		{"[2020-06 TO today]", DateRange{date(2020, 6, 1), date(2024, 3, 21)}},
		{"[last month to]", DateRange{Start: date(2024, 2, 1)}},
		{"[to 2019]", DateRange{End: date(2020, 1, 1)}},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := ParseDateExpr(tt.expr, now)

			require.NoError(t, err)
			assert.True(t, tt.want.Start.Equal(got.Start), "start: want %v, got %v", tt.want.Start, got.Start)
			assert.True(t, tt.want.End.Equal(got.End), "end: want %v, got %v", tt.want.End, got.End)
		})
	}
}

func TestParseDateExpr_Now(t *testing.T) {
	got, err := ParseDateExpr("now", now)

	require.NoError(t, err)
	assert.True(t, got.Start.Equal(now))
	assert.True(t, got.End.After(now))
}

func TestParseDateExpr_Invalid(t *testing.T) {
	for _, expr := range []string{"", "2021-13", "-3 fortnights", "[2022 to 2020]", "[to]"} {
		t.Run(expr, func(t *testing.T) {
			_, err := ParseDateExpr(expr, now)
			assert.Error(t, err)
		})
	}
}
