package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestComputeRequirement_SpreadsOutstandingOverMonths(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	goal := Goal{
		ID:           "g1",
		Name:         "Trip",
		Currency:     "EUR",
		TargetAmount: dec("1200"),
		Deadline:     time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		Status:       GoalActive,
		CreatedAt:    now,
	}

	req := ComputeRequirement(goal, decimal.Zero, now)

	if req.MonthsRemaining != 4 {
		t.Fatalf("MonthsRemaining = %d, want 4", req.MonthsRemaining)
	}
	if !req.Monthly.Equal(dec("300")) {
		t.Fatalf("Monthly = %s, want 300", req.Monthly)
	}
}

func TestComputeRequirement_CompletedWhenFunded(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	goal := Goal{
		TargetAmount: dec("500"),
		Deadline:     now.AddDate(1, 0, 0),
		CreatedAt:    now.AddDate(0, -6, 0),
	}

	req := ComputeRequirement(goal, dec("500"), now)
	if req.Status != FundingCompleted {
		t.Fatalf("Status = %s, want completed", req.Status)
	}
	if !req.Monthly.IsZero() {
		t.Fatalf("Monthly = %s, want 0", req.Monthly)
	}
	if !req.Progress.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("Progress = %s, want 1", req.Progress)
	}

	// Over-funded behaves the same.
	if got := ComputeRequirement(goal, dec("900"), now); got.Status != FundingCompleted {
		t.Fatalf("over-funded Status = %s, want completed", got.Status)
	}
}

func TestComputeRequirement_PastDeadlineUsesOneMonth(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	goal := Goal{
		TargetAmount: dec("400"),
		Deadline:     time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	req := ComputeRequirement(goal, dec("100"), now)
	if req.MonthsRemaining != 0 {
		t.Fatalf("MonthsRemaining = %d, want 0", req.MonthsRemaining)
	}
	// Entire outstanding amount falls into a single month.
	if !req.Monthly.Equal(dec("300")) {
		t.Fatalf("Monthly = %s, want 300", req.Monthly)
	}
}

func TestFundingStatusThresholds(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	deadline := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		now       time.Time
		allocated string
		want      FundingStatus
	}{
		{
			name:      "ahead of pace",
			now:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			allocated: "500",
			want:      FundingOnTrack,
		},
		{
			name:      "behind linear pace",
			now:       time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
			allocated: "100",
			want:      FundingAttention,
		},
		{
			name:      "deadline near and far from target",
			now:       time.Date(2026, 12, 15, 0, 0, 0, 0, time.UTC),
			allocated: "200",
			want:      FundingCritical,
		},
		{
			name:      "deadline near but nearly funded",
			now:       time.Date(2026, 12, 15, 0, 0, 0, 0, time.UTC),
			allocated: "980",
			want:      FundingOnTrack,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			goal := Goal{
				TargetAmount: dec("1000"),
				Deadline:     deadline,
				CreatedAt:    created,
			}
			req := ComputeRequirement(goal, dec(tt.allocated), tt.now)
			if req.Status != tt.want {
				t.Errorf("Status = %s, want %s", req.Status, tt.want)
			}
		})
	}
}
