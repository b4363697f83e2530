package testkit

import (
	"context"
	"sync"

	"github.com/ipfs/go-cid"

	"github.com/rrauch/ark/address"
	"github.com/rrauch/ark/storage"
)

// Flaky wraps a substrate and fails the first Failures calls with
// ErrNetwork. It exercises retry policies without a real network.
type Flaky struct {
	Inner    storage.Substrate
	Failures int

	mu    sync.Mutex
	calls int
}

func (f *Flaky) fail() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.calls <= f.Failures
}

// Calls reports how many substrate operations were attempted.
func (f *Flaky) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *Flaky) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if f.fail() {
		return cid.Undef, storage.ErrNetwork
	}
	return f.Inner.Put(ctx, data)
}

func (f *Flaky) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if f.fail() {
		return nil, storage.ErrNetwork
	}
	return f.Inner.Get(ctx, id)
}

func (f *Flaky) Has(ctx context.Context, id cid.Cid) bool {
	if f.fail() {
		return false
	}
	return f.Inner.Has(ctx, id)
}

func (f *Flaky) GetPointer(ctx context.Context, addr address.Address) (storage.PointerRecord, error) {
	if f.fail() {
		return storage.PointerRecord{}, storage.ErrNetwork
	}
	return f.Inner.GetPointer(ctx, addr)
}

func (f *Flaky) PutPointer(ctx context.Context, addr address.Address, rec storage.PointerRecord) error {
	if f.fail() {
		return storage.ErrNetwork
	}
	return f.Inner.PutPointer(ctx, addr, rec)
}
