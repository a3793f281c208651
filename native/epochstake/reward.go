package epochstake

import (
	"fmt"

	"github.com/holiman/uint256"
)

// SecondsPerYear is the 365-day year used for annual rates.
const SecondsPerYear = 365 * 24 * 60 * 60

var rewardDenominator = uint256.NewInt(SecondsPerYear * 100)

// ComputeReward returns floor(amount * rate * elapsed / (SecondsPerYear * 100))
// for the tier of epoch. Intermediates are 256-bit and every multiplication
// is overflow checked; the result must fit in 64 bits.
func ComputeReward(amount uint64, epoch uint8, elapsed int64) (uint64, error) {
	policy, err := PolicyFor(epoch)
	if err != nil {
		return 0, err
	}
	if elapsed < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegativeElapsed, elapsed)
	}
	product, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(amount), uint256.NewInt(policy.RatePercent))
	if overflow {
		return 0, ErrNumericOverflow
	}
	product, overflow = product.MulOverflow(product, uint256.NewInt(uint64(elapsed)))
	if overflow {
		return 0, ErrNumericOverflow
	}
	reward := new(uint256.Int).Div(product, rewardDenominator)
	if !reward.IsUint64() {
		return 0, ErrNumericOverflow
	}
	return reward.Uint64(), nil
}
