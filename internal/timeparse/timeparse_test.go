package timeparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	now := time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		expr       string
		want       time.Time
		dayKeyword bool
		clockFound bool
	}{
		{
			name:       "tomorrow with pm clock time",
			expr:       "tomorrow at 2:30pm",
			want:       time.Date(2024, 1, 16, 14, 30, 0, 0, time.UTC),
			dayKeyword: true,
			clockFound: true,
		},
		{
			name:       "bare am time resolves to today",
			expr:       "10am",
			want:       time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
			clockFound: true,
		},
		{
			name:       "tomorrow without clock defaults to 9am",
			expr:       "tomorrow",
			want:       time.Date(2024, 1, 16, 9, 0, 0, 0, time.UTC),
			dayKeyword: true,
		},
		{
			name:       "next week without clock defaults to 9am",
			expr:       "next week",
			want:       time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC),
			dayKeyword: true,
		},
		{
			name:       "next week with pm time",
			expr:       "next week 5pm",
			want:       time.Date(2024, 1, 22, 17, 0, 0, 0, time.UTC),
			dayKeyword: true,
			clockFound: true,
		},
		{
			name:       "today keyword with 24h time",
			expr:       "today 18:45",
			want:       time.Date(2024, 1, 15, 18, 45, 0, 0, time.UTC),
			dayKeyword: true,
			clockFound: true,
		},
		{
			name:       "bare 24h time",
			expr:       "meet at 07:15",
			want:       time.Date(2024, 1, 15, 7, 15, 0, 0, time.UTC),
			clockFound: true,
		},
		{
			name:       "12pm stays noon",
			expr:       "12pm",
			want:       time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
			clockFound: true,
		},
		{
			name:       "12am becomes midnight",
			expr:       "tomorrow 12am",
			want:       time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC),
			dayKeyword: true,
			clockFound: true,
		},
		{
			name: "no expression falls back to one hour from now",
			expr: "call Jane",
			want: now.Add(time.Hour),
		},
		{
			name:       "pm rule wins over bare 24h rule",
			expr:       "tomorrow 3:30pm",
			want:       time.Date(2024, 1, 16, 15, 30, 0, 0, time.UTC),
			dayKeyword: true,
			clockFound: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.expr, now)
			assert.True(t, tt.want.Equal(got.Time), "want %s, got %s", tt.want, got.Time)
			assert.Equal(t, tt.dayKeyword, got.DayKeyword, "dayKeyword")
			assert.Equal(t, tt.clockFound, got.ClockFound, "clockFound")
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	a := Resolve("tomorrow 3pm", now)
	b := Resolve("tomorrow 3pm", now)
	assert.True(t, a.Time.Equal(b.Time))
}
