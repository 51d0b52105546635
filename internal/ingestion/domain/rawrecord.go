package domain

import "time"

// RawRecord is adapter output prior to normalization (spec §3). It is
// transient: it lives only on the producer side of the channel between
// an adapter and the Filter/Normalize stage, and is never persisted itself.
type RawRecord struct {
	SupplierTag string
	Payload     map[string]any
	FetchedAt   time.Time
}
