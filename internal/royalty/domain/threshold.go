package royalty

// ThresholdResult is the outcome of applying a creator's minimum payout
// threshold to their accumulated balance for a run.
type ThresholdResult struct {
	// AccumulatedCents is carryover plus all allocations for the run.
	AccumulatedCents int64
	// Payable reports whether the accumulated balance meets the threshold.
	// When false the full balance becomes the next period's carryover.
	Payable bool
}

// ApplyThreshold folds a creator's allocations and prior carryover against
// their minimum payout threshold. A missing threshold is zero, so any
// positive balance is payable.
func ApplyThreshold(allocatedCents, carryoverCents, minPayoutCents int64) (ThresholdResult, error) {
	if allocatedCents < 0 || carryoverCents < 0 || minPayoutCents < 0 {
		return ThresholdResult{}, ErrNegativeAmount
	}
	accumulated := carryoverCents + allocatedCents
	return ThresholdResult{
		AccumulatedCents: accumulated,
		Payable:          accumulated >= minPayoutCents,
	}, nil
}
