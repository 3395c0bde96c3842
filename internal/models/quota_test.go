package models

import (
	"testing"
	"time"
)

func TestQuotaUsage_Remaining(t *testing.T) {
	tests := []struct {
		name        string
		used, limit int64
		want        int64
		limited     bool
	}{
		{"Headroom", 85, 90, 5, false},
		{"Exact", 90, 90, 0, true},
		{"Overdrawn", 120, 90, 0, true},
		{"ZeroLimit", 0, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := QuotaUsage{Used: tt.used, Limit: tt.limit}
			if got := q.Remaining(); got != tt.want {
				t.Errorf("Remaining() = %d, want %d", got, tt.want)
			}
			if got := q.IsRateLimited(); got != tt.limited {
				t.Errorf("IsRateLimited() = %v, want %v", got, tt.limited)
			}
		})
	}
}

func TestQuotaUsage_ResetTime(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	q := QuotaUsage{WindowStart: start, Window: time.Minute}
	if got := q.ResetTime(); !got.Equal(start.Add(time.Minute)) {
		t.Errorf("ResetTime() = %v, want %v", got, start.Add(time.Minute))
	}
}

func TestQuotaUsage_UsagePercentage(t *testing.T) {
	if got := (QuotaUsage{Used: 45, Limit: 90}).UsagePercentage(); got != 50 {
		t.Errorf("UsagePercentage() = %v, want 50", got)
	}
	if got := (QuotaUsage{Used: 200, Limit: 90}).UsagePercentage(); got != 100 {
		t.Errorf("UsagePercentage() overdrawn = %v, want 100", got)
	}
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []string{"conservative", "balanced", "aggressive"} {
		if _, ok := ParseStrategy(s); !ok {
			t.Errorf("ParseStrategy(%q) should be known", s)
		}
	}
	if _, ok := ParseStrategy("reckless"); ok {
		t.Error("ParseStrategy should reject unknown names")
	}
}

func TestLimitReason(t *testing.T) {
	if LimitReason(ResourceTokens) != ReasonTokensLimit {
		t.Error("tokens should map to tokens_limit")
	}
	if LimitReason(ResourceRequests) != ReasonRequestsLimit {
		t.Error("requests should map to requests_limit")
	}
}
