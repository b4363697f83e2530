package storage

import (
	"bytes"
	"context"
	"sync"

	"github.com/ipfs/go-cid"

	"github.com/rrauch/ark/address"
)

// Memory is an in-process substrate. It honors the full contract, including
// the pointer sequence check, and is safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	objects  map[cid.Cid][]byte
	pointers map[address.Address]PointerRecord
}

// NewMemory returns an empty in-memory substrate.
func NewMemory() *Memory {
	return &Memory{
		objects:  make(map[cid.Cid][]byte),
		pointers: make(map[address.Address]PointerRecord),
	}
}

func (m *Memory) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}
	id, err := ContentID(data)
	if err != nil {
		return cid.Undef, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.objects[id]; ok {
		if !bytes.Equal(existing, data) {
			return cid.Undef, ErrImmutable
		}
		return id, nil
	}
	m.objects[id] = bytes.Clone(data)
	return id, nil
}

func (m *Memory) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(data), nil
}

func (m *Memory) Has(ctx context.Context, id cid.Cid) bool {
	if ctx.Err() != nil || !id.Defined() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[id]
	return ok
}

func (m *Memory) GetPointer(ctx context.Context, addr address.Address) (PointerRecord, error) {
	if err := ctx.Err(); err != nil {
		return PointerRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.pointers[addr]
	if !ok {
		return PointerRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) PutPointer(ctx context.Context, addr address.Address, rec PointerRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !rec.Snapshot.Defined() {
		return ErrInvalidCID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.pointers[addr]
	if !ok {
		if rec.Sequence != 0 {
			return ErrConflict
		}
	} else if rec.Sequence != current.Sequence+1 {
		return ErrConflict
	}
	m.pointers[addr] = rec
	return nil
}
