package royalty

import "sort"

// TotalShareBps is the required sum of active ownership shares per asset.
const TotalShareBps = 10000

// OwnerShare is one creator's basis-point share of an asset.
type OwnerShare struct {
	CreatorID string
	ShareBps  int
}

// Allocation is one creator's cent-exact cut of a license's revenue.
type Allocation struct {
	CreatorID   string
	ShareBps    int
	AmountCents int64
	RoundedUp   bool
}

// DistributeRevenue splits revenueCents across the shares using the largest
// remainder method: floor every raw entitlement, then hand the leftover cents
// one at a time to the largest fractional remainders, ties broken by ascending
// creator id. The result always sums to revenueCents exactly and is
// reproducible for identical input.
func DistributeRevenue(revenueCents int64, shares []OwnerShare) ([]Allocation, error) {
	if revenueCents < 0 {
		return nil, ErrNegativeAmount
	}
	if len(shares) == 0 {
		return nil, ErrNoOwnership
	}

	total := 0
	for _, share := range shares {
		if share.ShareBps < 0 {
			return nil, ErrSharesNotTotal
		}
		total += share.ShareBps
	}
	if total != TotalShareBps {
		return nil, ErrSharesNotTotal
	}

	ordered := append([]OwnerShare(nil), shares...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].CreatorID < ordered[j].CreatorID
	})

	allocations := make([]Allocation, len(ordered))
	remainders := make([]int64, len(ordered))
	var allocated int64
	for i, share := range ordered {
		raw := revenueCents * int64(share.ShareBps)
		floor := raw / TotalShareBps
		remainders[i] = raw % TotalShareBps
		allocations[i] = Allocation{
			CreatorID:   share.CreatorID,
			ShareBps:    share.ShareBps,
			AmountCents: floor,
		}
		allocated += floor
	}

	leftover := revenueCents - allocated
	if leftover < 0 || leftover > int64(len(ordered)) {
		return nil, ErrAllocationMismatch
	}

	// Award leftover cents by descending remainder; the slice is already in
	// creator-id order, so a stable sort keeps ties deterministic.
	order := make([]int, len(ordered))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return remainders[order[i]] > remainders[order[j]]
	})
	for i := int64(0); i < leftover; i++ {
		idx := order[i]
		allocations[idx].AmountCents++
		allocations[idx].RoundedUp = true
	}

	var sum int64
	for _, alloc := range allocations {
		if alloc.AmountCents < 0 {
			return nil, ErrNegativeAmount
		}
		sum += alloc.AmountCents
	}
	if sum != revenueCents {
		return nil, ErrAllocationMismatch
	}
	return allocations, nil
}
