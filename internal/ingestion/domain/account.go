package domain

import "time"

// ConnectionState is the lifecycle state of a SupplierAccount's last known
// connectivity to its supplier backend (spec §3).
type ConnectionState string

const (
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionTesting      ConnectionState = "testing"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionError        ConnectionState = "error"
)

// SupplierAccount holds credentials and collection policy for one supplier
// (spec §3). AuthMaterial is always the sealed ciphertext; it is decrypted
// only in memory, only for the lifetime of a single authenticate call.
type SupplierAccount struct {
	SupplierTag         string
	DisplayName         string
	AuthMaterial        []byte // sealed with pkg/crypto
	ConnectionState     ConnectionState
	AutoCollect         bool
	DefaultInterval     time.Duration
	CollectCategories   []string
	RecentWindowDays    int
	MaxProductsPerRun   int
	LastConnectedAt     *time.Time
	LastError           string
}

// NewSupplierAccount creates an account in the Disconnected state.
func NewSupplierAccount(supplierTag, displayName string, sealedAuth []byte) *SupplierAccount {
	return &SupplierAccount{
		SupplierTag:     supplierTag,
		DisplayName:     displayName,
		AuthMaterial:    sealedAuth,
		ConnectionState: ConnectionDisconnected,
	}
}

// MarkConnected transitions the account to Connected and clears LastError.
func (a *SupplierAccount) MarkConnected(now time.Time) {
	a.ConnectionState = ConnectionConnected
	a.LastConnectedAt = &now
	a.LastError = ""
}

// MarkError transitions the account to Error and records the failure.
func (a *SupplierAccount) MarkError(err error) {
	a.ConnectionState = ConnectionError
	if err != nil {
		a.LastError = err.Error()
	}
}

// RotateCredentials replaces the sealed auth material in place, per the
// "credentials are rotated in place" lifecycle rule (spec §3).
func (a *SupplierAccount) RotateCredentials(sealedAuth []byte) {
	a.AuthMaterial = sealedAuth
	a.ConnectionState = ConnectionDisconnected
}
