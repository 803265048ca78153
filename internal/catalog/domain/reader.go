package catalog

import (
	"context"
	"time"
)

// LicenseReader lists licenses whose term overlaps a window.
type LicenseReader interface {
	ListActiveInWindow(ctx context.Context, start, end time.Time) ([]License, error)
}

// OwnershipReader loads an asset's active ownership shares.
type OwnershipReader interface {
	ListActiveByAsset(ctx context.Context, assetID string) ([]OwnershipShare, error)
}

// TermsReader loads a creator's payout terms. A missing creator returns
// zero-valued terms, not an error.
type TermsReader interface {
	GetTerms(ctx context.Context, creatorID string) (CreatorTerms, error)
}

// RevenueReader sums revenue events for a share license inside a window.
type RevenueReader interface {
	SumByLicense(ctx context.Context, licenseID string, start, end time.Time) (int64, error)
}
