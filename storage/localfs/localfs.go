// Package localfs is a filesystem-backed substrate.
//
// Objects are stored immutably and keyed strictly by CID; pointer records
// are replaced atomically under the sequence check. Offline and
// deterministic: never uses the network, never depends on wall-clock time.
package localfs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/ipfs/go-cid"

	"github.com/rrauch/ark/address"
	"github.com/rrauch/ark/storage"
)

// Store implements storage.Substrate on a local directory.
type Store struct {
	root string

	// mu serializes pointer updates so the sequence check is atomic within
	// this process. The daemon is the substrate's single server.
	mu sync.Mutex
}

// New constructs a substrate rooted at root. Directories are created as
// needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	for _, dir := range []string{root, filepath.Join(root, "objects"), filepath.Join(root, "pointers")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &Store{root: root}, nil
}

func (s *Store) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}
	id, err := storage.ContentID(data)
	if err != nil {
		return cid.Undef, err
	}

	path := s.objectPath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cid.Undef, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		if os.IsExist(err) {
			existing, rerr := s.Get(ctx, id)
			if rerr != nil {
				// Exists but unreadable or corrupted: immutability violation.
				return cid.Undef, storage.ErrImmutable
			}
			if string(existing) != string(data) {
				return cid.Undef, storage.ErrImmutable
			}
			return id, nil
		}
		return cid.Undef, err
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return cid.Undef, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return cid.Undef, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return cid.Undef, err
	}

	return id, nil
}

func (s *Store) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, err := os.ReadFile(s.objectPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	got, err := storage.ContentID(b)
	if err != nil {
		return nil, err
	}
	if got != id {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (s *Store) Has(ctx context.Context, id cid.Cid) bool {
	if ctx.Err() != nil || !id.Defined() {
		return false
	}
	_, err := os.Stat(s.objectPath(id))
	return err == nil
}

func (s *Store) GetPointer(ctx context.Context, addr address.Address) (storage.PointerRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.PointerRecord{}, err
	}
	b, err := os.ReadFile(s.pointerPath(addr))
	if err != nil {
		if os.IsNotExist(err) {
			return storage.PointerRecord{}, storage.ErrNotFound
		}
		return storage.PointerRecord{}, err
	}
	return storage.DecodeRecord(b)
}

func (s *Store) PutPointer(ctx context.Context, addr address.Address, rec storage.PointerRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !rec.Snapshot.Defined() {
		return storage.ErrInvalidCID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.GetPointer(ctx, addr)
	switch {
	case storage.IsNotFound(err):
		if rec.Sequence != 0 {
			return storage.ErrConflict
		}
	case err != nil:
		return err
	default:
		if rec.Sequence != current.Sequence+1 {
			return storage.ErrConflict
		}
	}

	data, err := storage.EncodeRecord(rec)
	if err != nil {
		return err
	}

	path := s.pointerPath(addr)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pointer-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

func (s *Store) objectPath(id cid.Cid) string {
	c := id.String()
	if len(c) < 2 {
		return filepath.Join(s.root, "objects", c)
	}
	return filepath.Join(s.root, "objects", c[:2], c)
}

func (s *Store) pointerPath(addr address.Address) string {
	return filepath.Join(s.root, "pointers", string(addr.Namespace()), addr.String())
}
