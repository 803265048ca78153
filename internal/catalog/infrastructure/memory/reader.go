package memory

import (
	"context"
	"sync"
	"time"

	catalog "royalty-engine/internal/catalog/domain"
)

// CatalogReader is an in-memory catalog for unit tests and demos.
type CatalogReader struct {
	mu       sync.RWMutex
	licenses []catalog.License
	shares   map[string][]catalog.OwnershipShare
	terms    map[string]catalog.CreatorTerms
	revenue  []catalog.RevenueEvent
}

// NewCatalogReader constructs an empty catalog.
func NewCatalogReader() *CatalogReader {
	return &CatalogReader{
		shares: make(map[string][]catalog.OwnershipShare),
		terms:  make(map[string]catalog.CreatorTerms),
	}
}

// AddLicense registers a license.
func (r *CatalogReader) AddLicense(lic catalog.License) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lic.TermStart = lic.TermStart.UTC()
	lic.TermEnd = lic.TermEnd.UTC()
	r.licenses = append(r.licenses, lic)
}

// AddShare registers an ownership share.
func (r *CatalogReader) AddShare(share catalog.OwnershipShare) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shares[share.AssetID] = append(r.shares[share.AssetID], share)
}

// SetTerms registers creator payout terms.
func (r *CatalogReader) SetTerms(terms catalog.CreatorTerms) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terms[terms.CreatorID] = terms
}

// AddRevenueEvent registers a revenue event for a share license.
func (r *CatalogReader) AddRevenueEvent(event catalog.RevenueEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event.OccurredAt = event.OccurredAt.UTC()
	r.revenue = append(r.revenue, event)
}

// ListActiveInWindow returns active licenses overlapping [start, end).
func (r *CatalogReader) ListActiveInWindow(ctx context.Context, start, end time.Time) ([]catalog.License, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []catalog.License
	for _, lic := range r.licenses {
		if !lic.Active {
			continue
		}
		if lic.TermStart.Before(end) && lic.TermEnd.After(start) {
			result = append(result, lic)
		}
	}
	return result, nil
}

// ListActiveByAsset returns an asset's active shares.
func (r *CatalogReader) ListActiveByAsset(ctx context.Context, assetID string) ([]catalog.OwnershipShare, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []catalog.OwnershipShare
	for _, share := range r.shares[assetID] {
		if share.Active {
			result = append(result, share)
		}
	}
	return result, nil
}

// GetTerms returns a creator's terms; missing creators get zero terms.
func (r *CatalogReader) GetTerms(ctx context.Context, creatorID string) (catalog.CreatorTerms, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if terms, ok := r.terms[creatorID]; ok {
		return terms, nil
	}
	return catalog.CreatorTerms{CreatorID: creatorID}, nil
}

// SumByLicense sums revenue events for a license inside [start, end).
func (r *CatalogReader) SumByLicense(ctx context.Context, licenseID string, start, end time.Time) (int64, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sum int64
	for _, event := range r.revenue {
		if event.LicenseID != licenseID {
			continue
		}
		if event.OccurredAt.Before(start) || !event.OccurredAt.Before(end) {
			continue
		}
		sum += event.AmountCents
	}
	return sum, nil
}
