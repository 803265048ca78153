package royalty

import (
	"encoding/json"
	"strings"
	"time"
)

// ArchiveSchemaVersion is the current rollback archive record version.
// Downstream audit tooling parses records by this version, decoupled from the
// live schema.
const ArchiveSchemaVersion = 1

// ArchiveRecord snapshots a run and its statements at rollback time. One
// record is appended to the run's notes ledger per rollback, as a single
// JSON document on its own line.
type ArchiveRecord struct {
	SchemaVersion int                 `json:"schema_version"`
	ArchivedAt    time.Time           `json:"archived_at"`
	Reason        string              `json:"reason"`
	Actor         string              `json:"actor"`
	Run           ArchivedRun         `json:"run"`
	Statements    []ArchivedStatement `json:"statements"`
}

// ArchivedRun is the run's pre-rollback state.
type ArchivedRun struct {
	ID                  string    `json:"id"`
	Status              string    `json:"status"`
	PeriodStart         time.Time `json:"period_start"`
	PeriodEnd           time.Time `json:"period_end"`
	TotalRevenueCents   int64     `json:"total_revenue_cents"`
	TotalRoyaltiesCents int64     `json:"total_royalties_cents"`
	LockedAt            time.Time `json:"locked_at,omitempty"`
}

// ArchivedStatement is one statement with its lines, as they stood.
type ArchivedStatement struct {
	ID         string         `json:"id"`
	CreatorID  string         `json:"creator_id"`
	TotalCents int64          `json:"total_cents"`
	Status     string         `json:"status"`
	Lines      []ArchivedLine `json:"lines"`
}

// ArchivedLine is one line as it stood.
type ArchivedLine struct {
	Kind         string    `json:"kind"`
	LicenseID    string    `json:"license_id,omitempty"`
	AssetID      string    `json:"asset_id,omitempty"`
	RevenueCents int64     `json:"revenue_cents"`
	ShareBps     int       `json:"share_bps"`
	RoyaltyCents int64     `json:"royalty_cents"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
	Note         string    `json:"note,omitempty"`
}

// Encode renders the record as a single ledger line.
func (r ArchiveRecord) Encode() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParseArchiveLedger extracts archive records from a run's notes ledger.
// Free-text note lines are skipped; only well-formed records are returned.
func ParseArchiveLedger(notes string) []ArchiveRecord {
	var records []ArchiveRecord
	for _, line := range strings.Split(notes, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var record ArchiveRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			continue
		}
		if record.SchemaVersion == 0 {
			continue
		}
		records = append(records, record)
	}
	return records
}
