package clientdata

import "time"

// TTL constants for cached upstream responses.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// Commerce pricing may be served from cache for at most a day; any
	// successful price write clears these tables early.
	TTLPartnerProducts = 24 * time.Hour
	TTLPartnerPrices   = 24 * time.Hour

	// Subscribed SKUs move when customers buy or shed seats.
	TTLSubscribedSkus = 12 * time.Hour
)
