package google

import "testing"

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		year int
		want string
	}{
		{"Ledger", 2025, "2025 Ledger"},
		{"2024 Ledger", 2025, "2024 Ledger"}, // already prefixed, kept as-is
		{"  Ledger  ", 2025, "2025 Ledger"},
		{"", 2025, ""},
		{"12 Ledger", 2025, "2025 12 Ledger"}, // not a plausible year
	}

	for _, tt := range tests {
		if got := yearPrefixedName(tt.base, tt.year); got != tt.want {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
		}
	}
}
