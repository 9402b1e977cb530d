// Package custodial defines the root-key signing capability held by an
// external custodial key-management service.
package custodial

import (
	"context"
	"time"
)

// Session identifies the authenticated user of the custodial service.
// It is passed explicitly through every call that may need the root key.
type Session struct {
	OrganizationID string    `json:"organization_id"`
	UserID         string    `json:"user_id"`
	Expiry         time.Time `json:"expiry"`
}

// Valid reports whether the session is present and unexpired at now.
func (s Session) Valid(now time.Time) bool {
	return s.OrganizationID != "" && now.Before(s.Expiry)
}

// Signer is the custodial root signer.
type Signer interface {
	// GetSession returns the current session; AUTHENTICATION when absent or expired.
	GetSession(ctx context.Context) (Session, error)

	// Sign signs a 32-byte digest with the root key identified by keyRef.
	// The signature is 65 bytes with V in {27, 28}.
	Sign(ctx context.Context, payload []byte, keyRef string) ([]byte, error)
}
