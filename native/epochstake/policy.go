package epochstake

import "fmt"

// EpochCount is the number of staking tiers.
const EpochCount = 4

// EpochPolicy fixes the lock duration and annual rate of one tier.
type EpochPolicy struct {
	Epoch       uint8  `json:"epoch"`
	LockSeconds int64  `json:"lockSeconds"`
	RatePercent uint64 `json:"ratePercent"`
}

// Lock durations are minute-scale: this is the demo configuration. A
// production table would use day or month scale values with the same
// arithmetic.
var epochPolicies = [EpochCount]EpochPolicy{
	{Epoch: 1, LockSeconds: 60, RatePercent: 30},
	{Epoch: 2, LockSeconds: 120, RatePercent: 40},
	{Epoch: 3, LockSeconds: 180, RatePercent: 50},
	{Epoch: 4, LockSeconds: 240, RatePercent: 60},
}

// Policies returns a copy of the tier table ordered by epoch.
func Policies() []EpochPolicy {
	out := make([]EpochPolicy, EpochCount)
	copy(out, epochPolicies[:])
	return out
}

// PolicyFor returns the tier for epoch or ErrInvalidEpoch.
func PolicyFor(epoch uint8) (EpochPolicy, error) {
	idx, err := epochIndex(epoch)
	if err != nil {
		return EpochPolicy{}, err
	}
	return epochPolicies[idx], nil
}

func epochIndex(epoch uint8) (int, error) {
	if epoch < 1 || epoch > EpochCount {
		return 0, fmt.Errorf("%w: %d", ErrInvalidEpoch, epoch)
	}
	return int(epoch) - 1, nil
}
