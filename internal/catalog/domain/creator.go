package catalog

// CreatorTerms is the read-only payout configuration for a creator.
// A creator without a row has a zero threshold.
type CreatorTerms struct {
	CreatorID      string
	MinPayoutCents int64
	Email          string
}
