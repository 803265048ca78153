package catalog

import "time"

// LicenseKind distinguishes how a license earns revenue.
type LicenseKind string

const (
	// LicenseKindFee is a flat fee for a bounded term, pro-rated by overlap.
	LicenseKindFee LicenseKind = "fee"
	// LicenseKindShare earns from revenue events recorded against the license.
	LicenseKindShare LicenseKind = "share"
)

// License is the read-only view of a license the engine consumes.
type License struct {
	ID        string
	AssetID   string
	Kind      LicenseKind
	FeeCents  int64
	TermStart time.Time
	TermEnd   time.Time
	Active    bool
}

// OwnershipShare is one creator's active basis-point share of an asset.
type OwnershipShare struct {
	AssetID   string
	CreatorID string
	ShareBps  int
	Active    bool
}

// RevenueEvent is one usage/revenue amount recorded against a share license.
type RevenueEvent struct {
	LicenseID   string
	AmountCents int64
	OccurredAt  time.Time
}
