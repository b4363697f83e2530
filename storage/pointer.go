package storage

import (
	"crypto/ed25519"
	"encoding/binary"

	"github.com/ipfs/go-cid"

	"github.com/rrauch/ark/address"
	"github.com/rrauch/ark/codec"
)

// pointerDomain is the signature-preimage domain tag for pointer records.
const pointerDomain = "ark/v0/pointer\x00"

// PointerRecord designates the latest manifest snapshot for one address.
//
// Records for an address form a strictly increasing sequence starting at 0;
// the substrate's sequence check makes exactly one concurrent update at a
// given expected sequence number win.
type PointerRecord struct {
	Snapshot  cid.Cid
	Sequence  uint64
	Signer    ed25519.PublicKey
	Signature []byte
}

// SignedBytes returns the signature preimage binding the record to addr.
// NUL delimiters and the fixed-width sequence keep distinct records from
// sharing a preimage.
func (r PointerRecord) SignedBytes(addr address.Address) []byte {
	snapshot := r.Snapshot.Bytes()
	addrString := addr.String()

	out := make([]byte, 0, len(pointerDomain)+len(addrString)+1+len(snapshot)+1+8)
	out = append(out, pointerDomain...)
	out = append(out, addrString...)
	out = append(out, 0)
	out = append(out, snapshot...)
	out = append(out, 0)
	out = binary.BigEndian.AppendUint64(out, r.Sequence)
	return out
}

// Verify checks the record's signature for addr.
func (r PointerRecord) Verify(addr address.Address) bool {
	if len(r.Signer) != ed25519.PublicKeySize || !r.Snapshot.Defined() {
		return false
	}
	return ed25519.Verify(r.Signer, r.SignedBytes(addr), r.Signature)
}

// pointerWire is the canonical on-the-wire / on-disk shape of a record.
type pointerWire struct {
	Snapshot  []byte `cbor:"snapshot"`
	Sequence  uint64 `cbor:"sequence"`
	Signer    []byte `cbor:"signer"`
	Signature []byte `cbor:"signature"`
}

// EncodeRecord serializes a record with the deterministic encoding.
func EncodeRecord(rec PointerRecord) ([]byte, error) {
	return codec.Marshal(pointerWire{
		Snapshot:  rec.Snapshot.Bytes(),
		Sequence:  rec.Sequence,
		Signer:    rec.Signer,
		Signature: rec.Signature,
	})
}

// DecodeRecord deserializes a record produced by EncodeRecord.
func DecodeRecord(data []byte) (PointerRecord, error) {
	var w pointerWire
	if err := codec.Unmarshal(data, &w); err != nil {
		return PointerRecord{}, err
	}
	id, err := cid.Cast(w.Snapshot)
	if err != nil {
		return PointerRecord{}, ErrInvalidCID
	}
	return PointerRecord{
		Snapshot:  id,
		Sequence:  w.Sequence,
		Signer:    ed25519.PublicKey(w.Signer),
		Signature: w.Signature,
	}, nil
}
