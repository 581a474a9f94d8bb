package scheduler

import (
	"testing"
	"time"
)

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 2 * * *", false},
		{"*/30 * * * * *", false},
		{"@daily", false},
		{"@every 90s", false},
		{"every 5m", false},
		{"Every 2 hours", false},
		{"every 1d", false},
		{"", true},
		{"every 0m", true},
		{"every 5 fortnights", true},
		{"every 400d", true},
		{"invalid cron", true},
		{"off", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := ParseSchedule(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSchedule(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestDisabled(t *testing.T) {
	tests := map[string]bool{
		"off":     true,
		" OFF ":   true,
		"@hourly": false,
		"":        false,
	}
	for expr, want := range tests {
		if got := Disabled(expr); got != want {
			t.Errorf("Disabled(%q) = %v, want %v", expr, got, want)
		}
	}
}

func TestNextRun(t *testing.T) {
	from := time.Date(2024, 3, 10, 1, 30, 0, 0, time.UTC)

	tests := []struct {
		expr string
		want time.Time
	}{
		{"0 2 * * *", time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC)},
		{"@daily", time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)},
		{"every 15m", from.Add(15 * time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := NextRun(tt.expr, from)
			if err != nil {
				t.Fatalf("NextRun() error = %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("NextRun(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}

	if _, err := NextRun("nope", from); err == nil {
		t.Error("expected error for invalid expression")
	}
}
