package utils

import (
	"testing"
	"time"
)

func TestProgressBar(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{0, "[□□□□□□□□□□] 0.0%"},
		{0.5, "[■■■■■□□□□□] 50.0%"},
		{1, "[■■■■■■■■■■] 100.0%"},
		{1.7, "[■■■■■■■■■■] 100.0%"},
		{-0.3, "[□□□□□□□□□□] 0.0%"},
	}
	for _, tt := range tests {
		if got := ProgressBar(tt.ratio, 10); got != tt.want {
			t.Errorf("ProgressBar(%v, 10) = %q, want %q", tt.ratio, got, tt.want)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{25000, "25,000"},
		{1234567, "1,234,567"},
		{-1234567, "-1,234,567"},
	}
	for _, tt := range tests {
		if got := FormatAmount(tt.n); got != tt.want {
			t.Errorf("FormatAmount(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m 30s"},
		{time.Hour + 5*time.Minute, "1h 5m"},
		{26*time.Hour + 30*time.Minute, "26h 30m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
