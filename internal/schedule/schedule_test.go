package schedule

import (
	"testing"

	"tally/internal/core"
)

func TestNextDate(t *testing.T) {
	tests := []struct {
		name      string
		date      core.Date
		frequency core.Frequency
		want      core.Date
	}{
		{
			name:      "weekly adds seven days",
			date:      core.NewDate(2025, 1, 1),
			frequency: core.Weekly,
			want:      core.NewDate(2025, 1, 8),
		},
		{
			name:      "weekly crosses month boundary",
			date:      core.NewDate(2025, 1, 29),
			frequency: core.Weekly,
			want:      core.NewDate(2025, 2, 5),
		},
		{
			name:      "biweekly adds fourteen days",
			date:      core.NewDate(2025, 1, 1),
			frequency: core.Biweekly,
			want:      core.NewDate(2025, 1, 15),
		},
		{
			name:      "monthly keeps day of month",
			date:      core.NewDate(2025, 1, 15),
			frequency: core.Monthly,
			want:      core.NewDate(2025, 2, 15),
		},
		{
			name:      "monthly overflow rolls into march (non-leap)",
			date:      core.NewDate(2025, 1, 31),
			frequency: core.Monthly,
			want:      core.NewDate(2025, 3, 3),
		},
		{
			name:      "monthly overflow rolls into march (leap year)",
			date:      core.NewDate(2024, 1, 31),
			frequency: core.Monthly,
			want:      core.NewDate(2024, 3, 2),
		},
		{
			name:      "quarterly adds three months",
			date:      core.NewDate(2025, 1, 15),
			frequency: core.Quarterly,
			want:      core.NewDate(2025, 4, 15),
		},
		{
			name:      "quarterly overflow normalizes",
			date:      core.NewDate(2025, 1, 31),
			frequency: core.Quarterly,
			want:      core.NewDate(2025, 5, 1),
		},
		{
			name:      "yearly adds one year",
			date:      core.NewDate(2025, 6, 15),
			frequency: core.Yearly,
			want:      core.NewDate(2026, 6, 15),
		},
		{
			name:      "yearly from leap day normalizes",
			date:      core.NewDate(2024, 2, 29),
			frequency: core.Yearly,
			want:      core.NewDate(2025, 3, 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextDate(tt.date, tt.frequency)
			if !got.Equal(tt.want) {
				t.Errorf("NextDate(%s, %s) = %s, want %s", tt.date, tt.frequency, got, tt.want)
			}
		})
	}
}

func TestNextDate_UnknownFrequency(t *testing.T) {
	got := NextDate(core.NewDate(2025, 1, 1), core.Frequency("daily"))
	if !got.IsZero() {
		t.Errorf("NextDate with unknown frequency = %s, want zero date", got)
	}
}

func collect(t *testing.T, start core.Date, f core.Frequency, windowEnd, resumeAfter core.Date) []core.Date {
	t.Helper()
	seq, err := ExpandWindow(start, f, windowEnd, resumeAfter)
	if err != nil {
		t.Fatalf("ExpandWindow() error = %v", err)
	}
	var out []core.Date
	for d := range seq {
		out = append(out, d)
	}
	return out
}

func TestExpandWindow(t *testing.T) {
	tests := []struct {
		name        string
		start       core.Date
		frequency   core.Frequency
		windowEnd   core.Date
		resumeAfter core.Date
		want        []core.Date
	}{
		{
			name:      "monthly from start inside window",
			start:     core.NewDate(2025, 1, 1),
			frequency: core.Monthly,
			windowEnd: core.NewDate(2025, 4, 15),
			want: []core.Date{
				core.NewDate(2025, 1, 1),
				core.NewDate(2025, 2, 1),
				core.NewDate(2025, 3, 1),
				core.NewDate(2025, 4, 1),
			},
		},
		{
			name:        "resume excludes the bookmark itself",
			start:       core.NewDate(2025, 1, 1),
			frequency:   core.Monthly,
			windowEnd:   core.NewDate(2025, 4, 15),
			resumeAfter: core.NewDate(2025, 2, 1),
			want: []core.Date{
				core.NewDate(2025, 3, 1),
				core.NewDate(2025, 4, 1),
			},
		},
		{
			name:      "window end is inclusive",
			start:     core.NewDate(2025, 1, 1),
			frequency: core.Weekly,
			windowEnd: core.NewDate(2025, 1, 15),
			want: []core.Date{
				core.NewDate(2025, 1, 1),
				core.NewDate(2025, 1, 8),
				core.NewDate(2025, 1, 15),
			},
		},
		{
			name:      "start beyond window yields nothing",
			start:     core.NewDate(2025, 6, 1),
			frequency: core.Monthly,
			windowEnd: core.NewDate(2025, 4, 15),
			want:      nil,
		},
		{
			name:        "resume already past window yields nothing",
			start:       core.NewDate(2025, 1, 1),
			frequency:   core.Monthly,
			windowEnd:   core.NewDate(2025, 4, 15),
			resumeAfter: core.NewDate(2025, 4, 1),
			want:        nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collect(t, tt.start, tt.frequency, tt.windowEnd, tt.resumeAfter)
			if len(got) != len(tt.want) {
				t.Fatalf("ExpandWindow() produced %d dates %v, want %d", len(got), got, len(tt.want))
			}
			for i := range got {
				if !got[i].Equal(tt.want[i]) {
					t.Errorf("ExpandWindow()[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestExpandWindow_InvalidFrequency(t *testing.T) {
	_, err := ExpandWindow(core.NewDate(2025, 1, 1), core.Frequency("fortnightly"), core.NewDate(2025, 4, 1), core.Date{})
	if err == nil {
		t.Fatal("ExpandWindow() with invalid frequency: expected error, got nil")
	}
}

func TestExpandWindow_Restartable(t *testing.T) {
	seq, err := ExpandWindow(core.NewDate(2025, 1, 1), core.Weekly, core.NewDate(2025, 2, 1), core.Date{})
	if err != nil {
		t.Fatalf("ExpandWindow() error = %v", err)
	}

	count := func() int {
		n := 0
		for range seq {
			n++
		}
		return n
	}

	first, second := count(), count()
	if first != second {
		t.Errorf("second iteration produced %d dates, first produced %d", second, first)
	}
	if first != 5 {
		t.Errorf("iteration produced %d dates, want 5", first)
	}
}
