package strata

import "testing"

func TestTierOrdering(t *testing.T) {
	if !(TierHot < TierWarm && TierWarm < TierCool && TierCool < TierCold) {
		t.Fatal("tier ranks out of order")
	}
	if !TierHot.FasterThan(TierCold) {
		t.Error("hot should outrank cold")
	}
	if TierCold.FasterThan(TierCold) {
		t.Error("a tier does not outrank itself")
	}
	if got := TierWarm.Min(TierCool); got != TierWarm {
		t.Errorf("Min(warm, cool) = %s, want warm", got)
	}
	if got := TierCold.Min(TierHot); got != TierHot {
		t.Errorf("Min(cold, hot) = %s, want hot", got)
	}
}

func TestTierStringRoundTrip(t *testing.T) {
	for _, tier := range AllTiers {
		parsed, err := ParseTier(tier.String())
		if err != nil {
			t.Fatalf("ParseTier(%q): %v", tier.String(), err)
		}
		if parsed != tier {
			t.Errorf("ParseTier(%q) = %s, want %s", tier.String(), parsed, tier)
		}
	}
	if _, err := ParseTier("lukewarm"); err == nil {
		t.Error("expected error for unknown tier name")
	}
}

func TestTierScoresMonotonic(t *testing.T) {
	for i := 1; i < len(AllTiers); i++ {
		faster, slower := AllTiers[i-1], AllTiers[i]
		if faster.PerformanceScore() <= slower.PerformanceScore() {
			t.Errorf("performance score of %s should exceed %s", faster, slower)
		}
		if faster.CostScore() <= slower.CostScore() {
			t.Errorf("cost score of %s should exceed %s", faster, slower)
		}
	}
}

func TestPriorityScores(t *testing.T) {
	cases := []struct {
		priority Priority
		want     float64
	}{
		{PriorityCritical, 1.0},
		{PriorityHigh, 0.75},
		{PriorityMedium, 0.5},
		{PriorityLow, 0.25},
	}
	for _, tc := range cases {
		if got := tc.priority.Score(); got != tc.want {
			t.Errorf("%s.Score() = %v, want %v", tc.priority, got, tc.want)
		}
	}
}
