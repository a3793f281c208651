package epochstake

import (
	"errors"
	"math"
	"testing"
)

func TestComputeReward(t *testing.T) {
	cases := []struct {
		name    string
		amount  uint64
		epoch   uint8
		elapsed int64
		want    uint64
	}{
		{"small stake rounds to zero", 1000, 1, 60, 0},
		{"bucket four full lock", 100_000_000, 4, 240, 456},
		{"one year at thirty percent", 1_000, 1, SecondsPerYear, 300},
		{"zero elapsed", 5_000, 2, 0, 0},
		{"zero amount", 0, 3, 1_000, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ComputeReward(tc.amount, tc.epoch, tc.elapsed)
			if err != nil {
				t.Fatalf("compute: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestComputeRewardWideIntermediates(t *testing.T) {
	// amount*rate*elapsed exceeds 64 bits but the quotient does not.
	got, err := ComputeReward(math.MaxUint64/2, 1, 60)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got == 0 {
		t.Fatalf("expected non-zero reward")
	}
}

func TestComputeRewardOverflow(t *testing.T) {
	if _, err := ComputeReward(math.MaxUint64, 4, math.MaxInt64); !errors.Is(err, ErrNumericOverflow) {
		t.Fatalf("expected ErrNumericOverflow, got %v", err)
	}
}

func TestComputeRewardRejects(t *testing.T) {
	if _, err := ComputeReward(1, 0, 1); !errors.Is(err, ErrInvalidEpoch) {
		t.Fatalf("expected ErrInvalidEpoch, got %v", err)
	}
	if _, err := ComputeReward(1, 1, -1); !errors.Is(err, ErrNegativeElapsed) {
		t.Fatalf("expected ErrNegativeElapsed, got %v", err)
	}
}

func TestPolicies(t *testing.T) {
	policies := Policies()
	if len(policies) != EpochCount {
		t.Fatalf("expected %d policies", EpochCount)
	}
	for i, p := range policies {
		if p.Epoch != uint8(i+1) || p.LockSeconds != int64(60*(i+1)) || p.RatePercent != uint64(30+10*i) {
			t.Fatalf("unexpected policy %+v", p)
		}
	}
	policies[0].RatePercent = 99
	if p, _ := PolicyFor(1); p.RatePercent != 30 {
		t.Fatalf("policy table mutated through copy")
	}
	if _, err := PolicyFor(5); !errors.Is(err, ErrInvalidEpoch) {
		t.Fatalf("expected ErrInvalidEpoch, got %v", err)
	}
}
