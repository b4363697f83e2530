package keys

import (
	"sync"

	"github.com/rrauch/ark"
)

// EngineKeyring is the complete key store of the always-online engine
// process: the current worker keypair and nothing else.
//
// The type statically excludes the helm and data keys, so the engine cannot
// hold either even by programming mistake. Key material is scoped to the
// process lifetime and erased on Close.
type EngineKeyring struct {
	mu     sync.Mutex
	worker *WorkerKey
}

// NewEngineKeyring takes ownership of worker. The caller must not use or
// wipe the key afterwards.
func NewEngineKeyring(worker *WorkerKey) *EngineKeyring {
	return &EngineKeyring{worker: worker}
}

// Worker returns the current worker key, or an error after Close.
func (r *EngineKeyring) Worker() (*WorkerKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.worker == nil {
		return nil, ark.NewError(ark.KindInternal, "keys.EngineKeyring", "keyring is closed")
	}
	return r.worker, nil
}

// Replace swaps in the successor key after a rotation and wipes the retired
// one.
func (r *EngineKeyring) Replace(next *WorkerKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.worker != nil {
		r.worker.Wipe()
	}
	r.worker = next
}

// Close wipes the held key material. The keyring is unusable afterwards.
func (r *EngineKeyring) Close() {
	r.Replace(nil)
}
