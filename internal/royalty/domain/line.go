package royalty

import "time"

// LineKind is the closed set of statement line variants. Synthetic kinds
// replace the open metadata-map pattern so builders and validators can match
// exhaustively instead of probing string keys.
type LineKind string

const (
	// LineKindUsage is a real (license, asset) revenue contribution.
	LineKindUsage LineKind = "usage"
	// LineKindCarryover carries an unpaid balance in from a prior run.
	LineKindCarryover LineKind = "carryover"
	// LineKindThresholdNote marks a statement held below the payout threshold.
	LineKindThresholdNote LineKind = "threshold-note"
	// LineKindManualAdjustment is an operator-entered pre-lock adjustment.
	LineKindManualAdjustment LineKind = "manual-adjustment"
	// LineKindCorrection is an admin-issued additive post-lock correction.
	LineKindCorrection LineKind = "correction"
)

// ParseLineKind validates a line kind string.
func ParseLineKind(value string) (LineKind, bool) {
	switch LineKind(value) {
	case LineKindUsage, LineKindCarryover, LineKindThresholdNote,
		LineKindManualAdjustment, LineKindCorrection:
		return LineKind(value), true
	default:
		return "", false
	}
}

// Synthetic reports whether the kind is engine-generated rather than a
// license contribution.
func (k LineKind) Synthetic() bool {
	return k != LineKindUsage
}

// Line is one contribution to a statement. Usage lines reference a license
// and asset; synthetic lines leave those empty and explain themselves in Note.
type Line struct {
	ID           string
	StatementID  string
	Kind         LineKind
	LicenseID    string
	AssetID      string
	RevenueCents int64
	ShareBps     int
	RoyaltyCents int64
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Note         string
	CreatedAt    time.Time
}
