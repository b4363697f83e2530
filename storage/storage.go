// Package storage defines the contract of the immutable-storage /
// mutable-pointer substrate the ark core publishes against.
//
// The production network client is an external collaborator; this package
// holds the interfaces it must satisfy, the pointer record wire form, and an
// in-memory substrate used by tests and tooling.
package storage

import (
	"context"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/rrauch/ark/address"
)

// CAS is a minimal content-addressable storage interface.
//
// Contract:
// - Put MUST be idempotent.
// - Stored objects MUST be immutable.
// - CIDs MUST be derived from the bytes written (callers are responsible for
//   supplying canonical bytes).
// - Get MUST return ErrNotFound when the CID is absent.
type CAS interface {
	Put(ctx context.Context, data []byte) (cid.Cid, error)
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
	Has(ctx context.Context, id cid.Cid) bool
}

// PointerStore holds one mutable, authenticated pointer record per address.
//
// Contract:
// - PutPointer MUST reject a record unless its sequence number is exactly
//   previous+1, or 0 when no record exists yet (ErrConflict otherwise). This
//   server-side check is the protocol's only concurrency control.
// - An accepted update is final; there is no delete.
// - GetPointer MUST return ErrNotFound when the address has no record.
type PointerStore interface {
	GetPointer(ctx context.Context, addr address.Address) (PointerRecord, error)
	PutPointer(ctx context.Context, addr address.Address, rec PointerRecord) error
}

// Substrate is the full surface the ark core consumes.
type Substrate interface {
	CAS
	PointerStore
}

// ContentID returns the CIDv1 (raw + sha2-256) every substrate derives from
// stored bytes.
func ContentID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}
