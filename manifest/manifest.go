// Package manifest defines the versioned record of an Ark's metadata: its
// authorized worker key, retired key history, and vaults.
//
// A manifest is never mutated in place. Every mutation produces a new
// immutable snapshot whose canonical bytes are content-addressed; the chain
// of snapshots is linked through Previous and the latest one is designated by
// an authenticated mutable pointer (see manifeststore).
package manifest

import (
	"bytes"
	"crypto/ed25519"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/rrauch/ark"
	"github.com/rrauch/ark/address"
	"github.com/rrauch/ark/codec"
	"github.com/rrauch/ark/storage"
)

// RetiredKey records a worker public key that is permanently out of service.
type RetiredKey struct {
	PublicKey ed25519.PublicKey `cbor:"public_key"`
	RetiredAt time.Time         `cbor:"retired_at"`
}

// Vault is a named archival unit bound to a bridge and an object-type
// variant. The bridge address is not validated for liveness here; that is an
// external collaborator's concern.
type Vault struct {
	Address      address.Address `cbor:"address"`
	Created      time.Time       `cbor:"created"`
	LastModified time.Time       `cbor:"last_modified"`
	Name         string          `cbor:"name"`
	Description  string          `cbor:"description,omitempty"`
	Active       bool            `cbor:"active"`
	Bridge       address.Address `cbor:"bridge"`
	ObjectType   ObjectType      `cbor:"object_type"`
}

// NewVault validates the object type and returns a vault stamped with the
// current time. Fails with kind MalformedObjectType on an invalid selection.
func NewVault(addr, bridge address.Address, name, description string, active bool, objectType ObjectType) (Vault, error) {
	const op = "manifest.NewVault"
	if err := objectType.Validate(); err != nil {
		return Vault{}, err
	}
	if !addr.Defined() || addr.Namespace() != address.Vault {
		return Vault{}, ark.NewError(ark.KindInternal, op, "vault address required")
	}
	if !bridge.Defined() || bridge.Namespace() != address.Bridge {
		return Vault{}, ark.NewError(ark.KindInternal, op, "bridge address required")
	}
	now := time.Now().UTC()
	return Vault{
		Address:      addr,
		Created:      now,
		LastModified: now,
		Name:         name,
		Description:  description,
		Active:       active,
		Bridge:       bridge,
		ObjectType:   objectType,
	}, nil
}

// Manifest is the single authoritative record for one Ark address.
type Manifest struct {
	Address          address.Address   `cbor:"address"`
	Created          time.Time         `cbor:"created"`
	LastModified     time.Time         `cbor:"last_modified"`
	Name             string            `cbor:"name"`
	Description      string            `cbor:"description,omitempty"`
	AuthorizedWorker ed25519.PublicKey `cbor:"authorized_worker"`
	WorkerGeneration uint32            `cbor:"worker_generation"`
	RetiredWorkers   []RetiredKey      `cbor:"retired_workers,omitempty"`
	Vaults           []Vault           `cbor:"vaults,omitempty"`

	// Previous holds the canonical encoding of the pointer record that
	// designated the prior snapshot, empty for the genesis snapshot.
	// Carrying the signed record rather than a bare CID lets resolvers
	// authenticate the chain instead of trusting whatever prior snapshot the
	// head claims. See PreviousRecord.
	Previous []byte `cbor:"previous,omitempty"`
}

// New returns the genesis manifest for a freshly initialized Ark: the
// generation-0 worker authorized, empty retired and vault sets.
func New(arkAddress address.Address, name, description string, worker ed25519.PublicKey) *Manifest {
	now := time.Now().UTC()
	return &Manifest{
		Address:          arkAddress,
		Created:          now,
		LastModified:     now,
		Name:             name,
		Description:      description,
		AuthorizedWorker: worker,
		WorkerGeneration: 0,
	}
}

// Clone returns a deep copy. Mutating the copy never touches the original;
// publication relies on this to treat resolved manifests as immutable.
func (m *Manifest) Clone() *Manifest {
	out := *m
	out.AuthorizedWorker = bytes.Clone(m.AuthorizedWorker)
	out.Previous = bytes.Clone(m.Previous)
	out.RetiredWorkers = make([]RetiredKey, len(m.RetiredWorkers))
	for i, r := range m.RetiredWorkers {
		out.RetiredWorkers[i] = RetiredKey{PublicKey: bytes.Clone(r.PublicKey), RetiredAt: r.RetiredAt}
	}
	out.Vaults = make([]Vault, len(m.Vaults))
	for i, v := range m.Vaults {
		v.ObjectType = v.ObjectType.clone()
		out.Vaults[i] = v
	}
	return &out
}

// AddVault appends a vault. The vault address must be new to the manifest.
func (m *Manifest) AddVault(v Vault) error {
	const op = "manifest.AddVault"
	if err := v.ObjectType.Validate(); err != nil {
		return err
	}
	if m.findVault(v.Address) != nil {
		return ark.NewError(ark.KindInternal, op, "vault address already present: "+v.Address.String())
	}
	m.Vaults = append(m.Vaults, v)
	return nil
}

// RemoveVault deletes the vault at addr. Fails with kind NotFound when the
// manifest has no such vault.
func (m *Manifest) RemoveVault(addr address.Address) error {
	for i := range m.Vaults {
		if m.Vaults[i].Address == addr {
			m.Vaults = append(m.Vaults[:i], m.Vaults[i+1:]...)
			return nil
		}
	}
	return ark.NewError(ark.KindNotFound, "manifest.RemoveVault", "no vault at "+addr.String())
}

// SetVaultActive toggles the active flag of an existing vault. This is the
// only mutation the worker key may sign.
func (m *Manifest) SetVaultActive(addr address.Address, active bool) error {
	v := m.findVault(addr)
	if v == nil {
		return ark.NewError(ark.KindNotFound, "manifest.SetVaultActive", "no vault at "+addr.String())
	}
	v.Active = active
	v.LastModified = time.Now().UTC()
	return nil
}

func (m *Manifest) findVault(addr address.Address) *Vault {
	for i := range m.Vaults {
		if m.Vaults[i].Address == addr {
			return &m.Vaults[i]
		}
	}
	return nil
}

// VaultAt returns the vault at addr, or false when absent.
func (m *Manifest) VaultAt(addr address.Address) (Vault, bool) {
	if v := m.findVault(addr); v != nil {
		return *v, true
	}
	return Vault{}, false
}

// RotateWorker retires the current worker and authorizes its successor.
// Retirement is terminal: the retired set only ever grows and a key appears
// in it at most once.
func (m *Manifest) RotateWorker(next ed25519.PublicKey, generation uint32, at time.Time) error {
	const op = "manifest.RotateWorker"
	if generation != m.WorkerGeneration+1 {
		return ark.NewError(ark.KindConflict, op, "rotation must target the resolved generation + 1")
	}
	for _, r := range m.RetiredWorkers {
		if bytes.Equal(r.PublicKey, next) {
			return ark.NewError(ark.KindInconsistentManifest, op, "successor key has already been retired")
		}
	}
	if bytes.Equal(next, m.AuthorizedWorker) {
		return ark.NewError(ark.KindInconsistentManifest, op, "successor key equals the current worker")
	}
	m.RetiredWorkers = append(m.RetiredWorkers, RetiredKey{
		PublicKey: m.AuthorizedWorker,
		RetiredAt: at.UTC(),
	})
	m.AuthorizedWorker = next
	m.WorkerGeneration = generation
	return nil
}

// PreviousRecord decodes the signed pointer record of the prior snapshot.
// The second return is false for the genesis snapshot.
func (m *Manifest) PreviousRecord() (storage.PointerRecord, bool, error) {
	if len(m.Previous) == 0 {
		return storage.PointerRecord{}, false, nil
	}
	rec, err := storage.DecodeRecord(m.Previous)
	if err != nil {
		return storage.PointerRecord{}, false, ark.WrapError(ark.KindInconsistentManifest, "manifest.PreviousRecord", "malformed chain record", err)
	}
	return rec, true, nil
}

// PreviousLink returns the CID of the prior snapshot. The second return is
// false for the genesis snapshot.
func (m *Manifest) PreviousLink() (cid.Cid, bool, error) {
	rec, ok, err := m.PreviousRecord()
	if err != nil || !ok {
		return cid.Undef, false, err
	}
	return rec.Snapshot, true, nil
}

// SetPrevious records the pointer record of the prior snapshot as the chain
// link.
func (m *Manifest) SetPrevious(rec storage.PointerRecord) error {
	data, err := storage.EncodeRecord(rec)
	if err != nil {
		return ark.WrapError(ark.KindInternal, "manifest.SetPrevious", "chain record encoding failed", err)
	}
	m.Previous = data
	return nil
}

// CheckConsistent re-checks every manifest invariant. Violations surface as
// kind InconsistentManifest and are never auto-repaired.
func (m *Manifest) CheckConsistent() error {
	const op = "manifest.CheckConsistent"
	fail := func(msg string) error {
		return ark.NewError(ark.KindInconsistentManifest, op, msg)
	}

	if !m.Address.Defined() || m.Address.Namespace() != address.Ark {
		return fail("manifest requires an ark address")
	}
	if m.LastModified.Before(m.Created) {
		return fail("last_modified precedes created")
	}
	if len(m.AuthorizedWorker) != ed25519.PublicKeySize {
		return fail("authorized worker key malformed")
	}

	var lastRetired time.Time
	for i, r := range m.RetiredWorkers {
		if len(r.PublicKey) != ed25519.PublicKeySize {
			return fail("retired worker key malformed")
		}
		if bytes.Equal(r.PublicKey, m.AuthorizedWorker) {
			return fail("authorized worker appears in retired set")
		}
		for _, earlier := range m.RetiredWorkers[:i] {
			if bytes.Equal(earlier.PublicKey, r.PublicKey) {
				return fail("retired worker listed twice")
			}
		}
		if r.RetiredAt.Before(lastRetired) {
			return fail("retired workers out of retirement order")
		}
		lastRetired = r.RetiredAt
	}

	seen := make(map[address.Address]struct{}, len(m.Vaults))
	for _, v := range m.Vaults {
		if !v.Address.Defined() || v.Address.Namespace() != address.Vault {
			return fail("vault requires a vault address")
		}
		if _, dup := seen[v.Address]; dup {
			return fail("duplicate vault address " + v.Address.String())
		}
		seen[v.Address] = struct{}{}
		if v.LastModified.Before(v.Created) {
			return fail("vault last_modified precedes created")
		}
		if !v.Bridge.Defined() || v.Bridge.Namespace() != address.Bridge {
			return fail("vault requires a bridge address")
		}
		if err := v.ObjectType.Validate(); err != nil {
			return fail("vault object type invalid: " + err.Error())
		}
	}
	return nil
}

// EncodeCanonical serializes the manifest with the deterministic encoding
// used for content addressing and signing. Field order never affects the
// bytes.
func (m *Manifest) EncodeCanonical() ([]byte, error) {
	data, err := codec.Marshal(m)
	if err != nil {
		return nil, ark.WrapError(ark.KindInternal, "manifest.EncodeCanonical", "encoding failed", err)
	}
	return data, nil
}

// Decode deserializes canonical manifest bytes. Invariants are not checked
// here; resolvers re-check them explicitly.
func Decode(data []byte) (*Manifest, error) {
	var m Manifest
	if err := codec.Unmarshal(data, &m); err != nil {
		return nil, ark.WrapError(ark.KindInconsistentManifest, "manifest.Decode", "undecodable snapshot", err)
	}
	return &m, nil
}
