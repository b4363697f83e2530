// Package testkit provides the conformance suite every substrate
// implementation must pass.
package testkit

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"

	"github.com/ipfs/go-cid"

	"github.com/rrauch/ark/address"
	"github.com/rrauch/ark/storage"
)

// NewSubstrate constructs a fresh, empty substrate for a test.
// The returned substrate MUST be isolated from other tests.
type NewSubstrate func(t *testing.T) storage.Substrate

func testAddress(t *testing.T) address.Address {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	addr, err := address.Resolve(pub, address.Ark)
	if err != nil {
		t.Fatalf("address.Resolve: %v", err)
	}
	return addr
}

func record(t *testing.T, sub storage.Substrate, payload []byte, seq uint64) storage.PointerRecord {
	t.Helper()
	id, err := sub.Put(context.Background(), payload)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return storage.PointerRecord{Snapshot: id, Sequence: seq, Signer: pub}
}

// RunSubstrateConformance exercises the CAS and pointer contracts.
func RunSubstrateConformance(t *testing.T, newSubstrate NewSubstrate) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		sub := newSubstrate(t)
		want := []byte("hello, ark substrate")

		id, err := sub.Put(ctx, want)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		wantID, err := storage.ContentID(want)
		if err != nil {
			t.Fatalf("ContentID failed: %v", err)
		}
		if id != wantID {
			t.Fatalf("Put CID mismatch: got %s want %s", id, wantID)
		}

		got, err := sub.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		sub := newSubstrate(t)
		b := []byte("same bytes")

		id1, err := sub.Put(ctx, b)
		if err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		id2, err := sub.Put(ctx, b)
		if err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		if id1 != id2 {
			t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		sub := newSubstrate(t)
		b := []byte("missing")
		id, err := storage.ContentID(b)
		if err != nil {
			t.Fatalf("ContentID failed: %v", err)
		}

		if sub.Has(ctx, id) {
			t.Fatalf("Has returned true for missing CID")
		}
		if _, err := sub.Get(ctx, id); !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}

		if _, err := sub.Put(ctx, b); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !sub.Has(ctx, id) {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		sub := newSubstrate(t)
		var undef cid.Cid
		if sub.Has(ctx, undef) {
			t.Fatalf("Has should be false for undefined CID")
		}
		if _, err := sub.Get(ctx, undef); err == nil {
			t.Fatalf("Get should fail for undefined CID")
		}
	})

	t.Run("PointerGenesisAtZero", func(t *testing.T) {
		sub := newSubstrate(t)
		addr := testAddress(t)

		if _, err := sub.GetPointer(ctx, addr); !storage.IsNotFound(err) {
			t.Fatalf("GetPointer on empty address: got %v want ErrNotFound", err)
		}

		if err := sub.PutPointer(ctx, addr, record(t, sub, []byte("v1"), 1)); !storage.IsConflict(err) {
			t.Fatalf("first record at sequence 1: got %v want ErrConflict", err)
		}
		if err := sub.PutPointer(ctx, addr, record(t, sub, []byte("v0"), 0)); err != nil {
			t.Fatalf("genesis PutPointer failed: %v", err)
		}
		got, err := sub.GetPointer(ctx, addr)
		if err != nil {
			t.Fatalf("GetPointer failed: %v", err)
		}
		if got.Sequence != 0 {
			t.Fatalf("sequence mismatch: got %d want 0", got.Sequence)
		}
	})

	t.Run("PointerSequenceCheck", func(t *testing.T) {
		sub := newSubstrate(t)
		addr := testAddress(t)

		if err := sub.PutPointer(ctx, addr, record(t, sub, []byte("v0"), 0)); err != nil {
			t.Fatalf("genesis PutPointer failed: %v", err)
		}
		if err := sub.PutPointer(ctx, addr, record(t, sub, []byte("v1"), 1)); err != nil {
			t.Fatalf("PutPointer(1) failed: %v", err)
		}

		// Stale and skipped sequence numbers are both rejected.
		if err := sub.PutPointer(ctx, addr, record(t, sub, []byte("stale"), 1)); !storage.IsConflict(err) {
			t.Fatalf("stale sequence: got %v want ErrConflict", err)
		}
		if err := sub.PutPointer(ctx, addr, record(t, sub, []byte("skip"), 3)); !storage.IsConflict(err) {
			t.Fatalf("skipped sequence: got %v want ErrConflict", err)
		}

		got, err := sub.GetPointer(ctx, addr)
		if err != nil {
			t.Fatalf("GetPointer failed: %v", err)
		}
		if got.Sequence != 1 {
			t.Fatalf("rejected updates must not change the record, sequence=%d", got.Sequence)
		}
	})

	t.Run("PointerContentionOneWinner", func(t *testing.T) {
		sub := newSubstrate(t)
		addr := testAddress(t)

		if err := sub.PutPointer(ctx, addr, record(t, sub, []byte("base"), 0)); err != nil {
			t.Fatalf("genesis PutPointer failed: %v", err)
		}

		const writers = 8
		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := 0; i < writers; i++ {
			rec := record(t, sub, []byte{byte(i)}, 1)
			wg.Add(1)
			go func(i int, rec storage.PointerRecord) {
				defer wg.Done()
				errs[i] = sub.PutPointer(ctx, addr, rec)
			}(i, rec)
		}
		wg.Wait()

		wins := 0
		for i, err := range errs {
			switch {
			case err == nil:
				wins++
			case storage.IsConflict(err):
			default:
				t.Fatalf("writer %d: unexpected error %v", i, err)
			}
		}
		if wins != 1 {
			t.Fatalf("expected exactly one winner, got %d", wins)
		}
	})
}
