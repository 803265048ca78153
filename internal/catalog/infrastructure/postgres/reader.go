package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	catalog "royalty-engine/internal/catalog/domain"
)

// CatalogReader is a Postgres implementation of the read-only catalog views.
// The engine never writes these tables; they belong to the licensing system.
type CatalogReader struct {
	db *sql.DB
}

// NewCatalogReader constructs a reader.
func NewCatalogReader(db *sql.DB) *CatalogReader {
	return &CatalogReader{db: db}
}

// ListActiveInWindow returns active licenses whose term overlaps [start, end).
func (r *CatalogReader) ListActiveInWindow(ctx context.Context, start, end time.Time) ([]catalog.License, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("catalog reader: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, asset_id, kind, fee_cents, term_start, term_end
FROM licenses
WHERE active = TRUE AND term_start < $2 AND term_end > $1
ORDER BY id ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []catalog.License
	for rows.Next() {
		var lic catalog.License
		var kind string
		if err := rows.Scan(&lic.ID, &lic.AssetID, &kind, &lic.FeeCents, &lic.TermStart, &lic.TermEnd); err != nil {
			return nil, err
		}
		lic.Kind = catalog.LicenseKind(kind)
		lic.TermStart = lic.TermStart.UTC()
		lic.TermEnd = lic.TermEnd.UTC()
		lic.Active = true
		result = append(result, lic)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListActiveByAsset returns an asset's active ownership shares.
func (r *CatalogReader) ListActiveByAsset(ctx context.Context, assetID string) ([]catalog.OwnershipShare, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("catalog reader: nil db")
	}
	if assetID == "" {
		return nil, errors.New("catalog reader: empty asset id")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT asset_id, creator_id, share_bps
FROM ownership_shares
WHERE asset_id = $1 AND active = TRUE
ORDER BY creator_id ASC`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []catalog.OwnershipShare
	for rows.Next() {
		var share catalog.OwnershipShare
		if err := rows.Scan(&share.AssetID, &share.CreatorID, &share.ShareBps); err != nil {
			return nil, err
		}
		share.Active = true
		result = append(result, share)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetTerms returns a creator's payout terms; missing creators get zero terms.
func (r *CatalogReader) GetTerms(ctx context.Context, creatorID string) (catalog.CreatorTerms, error) {
	if r == nil || r.db == nil {
		return catalog.CreatorTerms{}, errors.New("catalog reader: nil db")
	}
	terms := catalog.CreatorTerms{CreatorID: creatorID}
	var email sql.NullString
	err := r.db.QueryRowContext(ctx, `
SELECT min_payout_cents, email
FROM creator_terms
WHERE creator_id = $1`, creatorID).Scan(&terms.MinPayoutCents, &email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return terms, nil
		}
		return catalog.CreatorTerms{}, err
	}
	if email.Valid {
		terms.Email = email.String
	}
	return terms, nil
}

// SumByLicense sums revenue events for a license inside [start, end).
func (r *CatalogReader) SumByLicense(ctx context.Context, licenseID string, start, end time.Time) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("catalog reader: nil db")
	}
	var sum sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
SELECT SUM(amount_cents)
FROM revenue_events
WHERE license_id = $1 AND occurred_at >= $2 AND occurred_at < $3`, licenseID, start, end).Scan(&sum)
	if err != nil {
		return 0, err
	}
	if !sum.Valid {
		return 0, nil
	}
	return sum.Int64, nil
}
