package keys

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Material is the public half of a generated session key.
type Material struct {
	Address   common.Address
	PublicKey []byte // uncompressed secp256k1 (65 bytes, 0x04 prefix)
}

// Generator produces and holds session-key material. Private keys never
// leave the implementation.
type Generator interface {
	// Generate creates a new key pair and returns its public material.
	Generate(ctx context.Context) (Material, error)

	// SignHash signs a 32-byte digest with the key held for addr.
	// The returned signature is 65 bytes with V in {27, 28}.
	SignHash(ctx context.Context, addr common.Address, hash []byte) ([]byte, error)

	// Forget drops the private key for addr. Unknown addresses are ignored.
	Forget(addr common.Address)

	// Has reports whether key material for addr is held.
	Has(addr common.Address) bool
}
