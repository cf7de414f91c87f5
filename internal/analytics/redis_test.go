package analytics

import (
	"testing"
	"time"
)

func TestBuildKey_Buckets(t *testing.T) {
	ts := time.Date(2024, 6, 3, 9, 37, 12, 0, time.UTC)

	tests := []struct {
		name   string
		window time.Duration
		want   string
	}{
		{"minute", time.Minute, "workpro:analytics:t:ten:p:prog:generated:202406030937"},
		{"five minute", 5 * time.Minute, "workpro:analytics:t:ten:p:prog:generated:202406030935"},
		{"hour", time.Hour, "workpro:analytics:t:ten:p:prog:generated:2024060309"},
		{"unknown window falls back to minute", 30 * time.Second, "workpro:analytics:t:ten:p:prog:generated:202406030937"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildKey("ten", "prog", ts, tt.window); got != tt.want {
				t.Errorf("buildKey = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncateToBucket_NonUTCInput(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	local := time.Date(2024, 6, 3, 5, 37, 0, 0, loc) // 09:37 UTC

	if got := truncateToBucket(local, time.Hour); got != "2024060309" {
		t.Errorf("bucket = %q, want 2024060309", got)
	}
}
