// Package manifeststore publishes and resolves manifest snapshots over the
// immutable substrate.
//
// Manifests are never mutated in place. Publish serializes the manifest
// canonically, content-addresses the snapshot, and advances the Ark's
// mutable pointer by exactly one sequence number, signed by the mutating
// key. Resolve walks the other direction and re-checks everything: pointer
// signature, snapshot identity, manifest invariants, and the signer's
// authority over what actually changed.
//
// Concurrency is optimistic: no lock is held across the network round trip.
// The substrate's sequence check is the only arbiter, so of two publishes
// against the same base exactly one wins and the other surfaces Conflict.
package manifeststore

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ipfs/go-cid"
	"github.com/sirupsen/logrus"

	"github.com/rrauch/ark"
	"github.com/rrauch/ark/address"
	"github.com/rrauch/ark/keys"
	"github.com/rrauch/ark/manifest"
	"github.com/rrauch/ark/storage"
)

// MutationCategory classifies what a publish changes and therefore which
// key may sign it.
type MutationCategory uint8

const (
	// Administrative covers vault add/remove, worker rotation, and name or
	// description changes. Requires the helm key.
	Administrative MutationCategory = iota

	// Operational covers exactly one thing: toggling the active flag of an
	// existing vault. May be signed by the current worker key.
	Operational
)

func (c MutationCategory) String() string {
	switch c {
	case Administrative:
		return "administrative"
	case Operational:
		return "operational"
	default:
		return "unknown"
	}
}

// Store publishes and resolves manifests for any number of Ark addresses.
type Store struct {
	substrate  storage.Substrate
	log        *logrus.Entry
	newBackOff func(ctx context.Context) backoff.BackOff

	// mu guards perAddress; each per-address mutex serializes this process's
	// publishes so a single logical writer does not conflict with itself.
	mu         sync.Mutex
	perAddress map[address.Address]*sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger routes retry warnings to logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Store) {
		s.log = logrus.NewEntry(logger).WithField("component", "manifeststore")
	}
}

// WithBackOff replaces the retry policy applied to transient substrate
// failures.
func WithBackOff(factory func(ctx context.Context) backoff.BackOff) Option {
	return func(s *Store) {
		s.newBackOff = factory
	}
}

// New returns a Store over the given substrate.
func New(substrate storage.Substrate, opts ...Option) *Store {
	s := &Store{
		substrate:  substrate,
		log:        logrus.NewEntry(logrus.StandardLogger()).WithField("component", "manifeststore"),
		newBackOff: defaultBackOff,
		perAddress: make(map[address.Address]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultBackOff(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(&backoff.ExponentialBackOff{
		InitialInterval:     250 * time.Millisecond,
		RandomizationFactor: 0.5,
		Multiplier:          1.7,
		MaxInterval:         5 * time.Second,
		MaxElapsedTime:      30 * time.Second,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}, ctx)
}

// withRetry runs fn under the store's backoff policy. Only transient network
// failures are retried; everything else is permanent and surfaces as-is.
func (s *Store) withRetry(ctx context.Context, op string, fn func() error) error {
	attempt := 0
	operation := func() error {
		err := fn()
		switch {
		case err == nil:
			return nil
		case storage.IsNetwork(err):
			attempt++
			s.log.WithFields(logrus.Fields{"op": op, "attempt": attempt}).
				Warn("transient substrate failure, backing off")
			return err
		default:
			return backoff.Permanent(err)
		}
	}
	return backoff.Retry(operation, s.newBackOff(ctx))
}

func (s *Store) addressLock(addr address.Address) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.perAddress[addr]
	if !ok {
		l = &sync.Mutex{}
		s.perAddress[addr] = l
	}
	return l
}

// Init publishes the genesis snapshot for a freshly created Ark at sequence
// 0. Fails with kind Conflict when the address already has a pointer.
func (s *Store) Init(ctx context.Context, m *manifest.Manifest, helm *keys.HelmKey) (storage.PointerRecord, error) {
	const op = "manifeststore.Init"

	helmAddr, err := address.Resolve(helm.Public(), address.Ark)
	if err != nil {
		return storage.PointerRecord{}, err
	}
	if helmAddr != m.Address {
		return storage.PointerRecord{}, ark.NewError(ark.KindUnauthorized, op, "helm key does not own this ark address")
	}

	snapshot := m.Clone()
	snapshot.Previous = nil
	if err := snapshot.CheckConsistent(); err != nil {
		return storage.PointerRecord{}, err
	}

	lock := s.addressLock(m.Address)
	lock.Lock()
	defer lock.Unlock()

	return s.push(ctx, op, snapshot, 0, helm)
}

// Publish records a mutated manifest as the successor of base, which must
// be the pointer record the caller resolved before mutating.
//
// Fails with kind Unauthorized when the signing key's category does not
// match the mutation, and kind Conflict when base is stale: the caller must
// re-resolve and decide whether to re-issue the mutation.
func (s *Store) Publish(ctx context.Context, m *manifest.Manifest, base storage.PointerRecord, signer keys.Signer, category MutationCategory) (storage.PointerRecord, error) {
	const op = "manifeststore.Publish"

	if !base.Snapshot.Defined() {
		return storage.PointerRecord{}, ark.NewError(ark.KindInternal, op, "base pointer record required")
	}
	if !base.Verify(m.Address) {
		return storage.PointerRecord{}, ark.NewError(ark.KindInternal, op, "base pointer record does not verify")
	}

	lock := s.addressLock(m.Address)
	lock.Lock()
	defer lock.Unlock()

	prev, err := s.fetchSnapshot(ctx, op, base.Snapshot)
	if err != nil {
		return storage.PointerRecord{}, err
	}

	switch category {
	case Administrative:
		signerAddr, err := address.Resolve(signer.Public(), address.Ark)
		if err != nil {
			return storage.PointerRecord{}, err
		}
		if signerAddr != m.Address {
			return storage.PointerRecord{}, ark.NewError(ark.KindUnauthorized, op, "administrative mutations require the helm key")
		}
	case Operational:
		if !bytes.Equal(signer.Public(), prev.AuthorizedWorker) {
			return storage.PointerRecord{}, ark.NewError(ark.KindUnauthorized, op, "operational mutations require the current worker key")
		}
		if !operationalOnly(prev, m) {
			return storage.PointerRecord{}, ark.NewError(ark.KindUnauthorized, op, "operational mutations are confined to vault active flags")
		}
	default:
		return storage.PointerRecord{}, ark.NewError(ark.KindInternal, op, "unknown mutation category")
	}

	snapshot := m.Clone()
	snapshot.LastModified = time.Now().UTC()
	if err := snapshot.SetPrevious(base); err != nil {
		return storage.PointerRecord{}, err
	}
	if err := snapshot.CheckConsistent(); err != nil {
		return storage.PointerRecord{}, err
	}

	return s.push(ctx, op, snapshot, base.Sequence+1, signer)
}

// push uploads the snapshot, then swings the pointer. Cancellation before
// the pointer update is accepted has no effect: orphaned snapshots are
// unreferenced and harmless on an immutable substrate.
func (s *Store) push(ctx context.Context, op string, snapshot *manifest.Manifest, sequence uint64, signer keys.Signer) (storage.PointerRecord, error) {
	data, err := snapshot.EncodeCanonical()
	if err != nil {
		return storage.PointerRecord{}, err
	}

	var snapshotID cid.Cid
	err = s.withRetry(ctx, op+"/put", func() error {
		var putErr error
		snapshotID, putErr = s.substrate.Put(ctx, data)
		return putErr
	})
	if err != nil {
		return storage.PointerRecord{}, wrapStorage(op, "snapshot upload failed", err)
	}

	rec := storage.PointerRecord{
		Snapshot: snapshotID,
		Sequence: sequence,
		Signer:   signer.Public(),
	}
	rec.Signature = signer.Sign(rec.SignedBytes(snapshot.Address))

	err = s.withRetry(ctx, op+"/pointer", func() error {
		return s.substrate.PutPointer(ctx, snapshot.Address, rec)
	})
	if err != nil {
		return storage.PointerRecord{}, wrapStorage(op, "pointer update rejected", err)
	}
	return rec, nil
}

// Resolve returns the latest authenticated manifest for an Ark address,
// along with the pointer record to use as the base of the next publish.
func (s *Store) Resolve(ctx context.Context, arkAddr address.Address) (*manifest.Manifest, storage.PointerRecord, error) {
	const op = "manifeststore.Resolve"

	var rec storage.PointerRecord
	err := s.withRetry(ctx, op+"/pointer", func() error {
		var getErr error
		rec, getErr = s.substrate.GetPointer(ctx, arkAddr)
		return getErr
	})
	if err != nil {
		return nil, storage.PointerRecord{}, wrapStorage(op, "pointer fetch failed", err)
	}

	if !rec.Verify(arkAddr) {
		return nil, storage.PointerRecord{}, ark.NewError(ark.KindUnauthorized, op, "pointer signature invalid")
	}

	m, err := s.fetchSnapshot(ctx, op, rec.Snapshot)
	if err != nil {
		return nil, storage.PointerRecord{}, err
	}
	if err := m.CheckConsistent(); err != nil {
		return nil, storage.PointerRecord{}, err
	}
	if m.Address != arkAddr {
		return nil, storage.PointerRecord{}, ark.NewError(ark.KindInconsistentManifest, op, "snapshot bound to a different ark address")
	}

	base, hasPrev, err := m.PreviousRecord()
	if err != nil {
		return nil, storage.PointerRecord{}, err
	}
	if rec.Sequence == 0 && hasPrev {
		return nil, storage.PointerRecord{}, ark.NewError(ark.KindInconsistentManifest, op, "genesis snapshot carries a chain record")
	}
	if rec.Sequence > 0 {
		if !hasPrev {
			return nil, storage.PointerRecord{}, ark.NewError(ark.KindInconsistentManifest, op, "non-genesis snapshot missing its chain record")
		}
		if !base.Verify(arkAddr) {
			return nil, storage.PointerRecord{}, ark.NewError(ark.KindInconsistentManifest, op, "chain record signature invalid")
		}
		if base.Sequence+1 != rec.Sequence {
			return nil, storage.PointerRecord{}, ark.NewError(ark.KindInconsistentManifest, op, "chain record sequence mismatch")
		}
	}

	if err := s.verifySignerChain(ctx, op, arkAddr, rec, m); err != nil {
		return nil, storage.PointerRecord{}, err
	}
	return m, rec, nil
}

// verifySignerChain enforces the key-category rule on resolve: the helm key
// is always valid, the worker key only for operational diffs.
//
// The prior snapshot is anchored through the signed chain record each
// snapshot embeds, never through content the head's signer chose freely. A
// worker-signed head is accepted only if every worker-signed hop back to the
// nearest helm-signed record is confined to vault active flags, so every
// administrative difference must trace to a record only the helm key could
// have signed. Each hop decrements the sequence, so the walk terminates.
func (s *Store) verifySignerChain(ctx context.Context, op string, arkAddr address.Address, rec storage.PointerRecord, m *manifest.Manifest) error {
	for {
		signerAddr, err := address.Resolve(rec.Signer, address.Ark)
		if err != nil {
			return ark.WrapError(ark.KindUnauthorized, op, "pointer signer key malformed", err)
		}
		if signerAddr == arkAddr {
			return nil
		}
		if rec.Sequence == 0 {
			return ark.NewError(ark.KindUnauthorized, op, "genesis snapshot must be signed by the helm key")
		}

		base, ok, err := m.PreviousRecord()
		if err != nil {
			return err
		}
		if !ok {
			return ark.NewError(ark.KindInconsistentManifest, op, "non-genesis snapshot missing its chain record")
		}
		if !base.Verify(arkAddr) {
			return ark.NewError(ark.KindUnauthorized, op, "chain record signature invalid")
		}
		if base.Sequence+1 != rec.Sequence {
			return ark.NewError(ark.KindInconsistentManifest, op, "chain record sequence mismatch")
		}
		prev, err := s.fetchSnapshot(ctx, op, base.Snapshot)
		if err != nil {
			return err
		}
		if !bytes.Equal(rec.Signer, prev.AuthorizedWorker) {
			return ark.NewError(ark.KindUnauthorized, op, "pointer signed by neither helm nor the authorized worker")
		}
		if !operationalOnly(prev, m) {
			return ark.NewError(ark.KindUnauthorized, op, "worker-signed snapshot changes more than vault active flags")
		}
		rec, m = base, prev
	}
}

// History returns the full snapshot chain for an Ark address, latest first.
// The chain is append-only; snapshots themselves are never mutated or
// deleted.
func (s *Store) History(ctx context.Context, arkAddr address.Address) ([]*manifest.Manifest, error) {
	const op = "manifeststore.History"

	head, _, err := s.Resolve(ctx, arkAddr)
	if err != nil {
		return nil, err
	}

	out := []*manifest.Manifest{head}
	seen := map[cid.Cid]struct{}{}
	current := head
	for {
		link, ok, err := current.PreviousLink()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		if _, dup := seen[link]; dup {
			return nil, ark.NewError(ark.KindInconsistentManifest, op, "snapshot chain contains a cycle")
		}
		seen[link] = struct{}{}

		prev, err := s.fetchSnapshot(ctx, op, link)
		if err != nil {
			return nil, err
		}
		out = append(out, prev)
		current = prev
	}
}

// fetchSnapshot gets and decodes one snapshot, re-checking its content
// address even though conforming substrates do so themselves.
func (s *Store) fetchSnapshot(ctx context.Context, op string, id cid.Cid) (*manifest.Manifest, error) {
	var data []byte
	err := s.withRetry(ctx, op+"/get", func() error {
		var getErr error
		data, getErr = s.substrate.Get(ctx, id)
		return getErr
	})
	if err != nil {
		return nil, wrapStorage(op, "snapshot fetch failed", err)
	}

	got, err := storage.ContentID(data)
	if err != nil {
		return nil, ark.WrapError(ark.KindInternal, op, "cid computation failed", err)
	}
	if got != id {
		return nil, ark.NewError(ark.KindInconsistentManifest, op, "snapshot bytes do not match their content address")
	}
	return manifest.Decode(data)
}

// operationalOnly reports whether next differs from prev in nothing but
// vault active flags (and the vault modification times those toggles stamp).
func operationalOnly(prev, next *manifest.Manifest) bool {
	if next.Address != prev.Address ||
		!next.Created.Equal(prev.Created) ||
		next.Name != prev.Name ||
		next.Description != prev.Description ||
		!bytes.Equal(next.AuthorizedWorker, prev.AuthorizedWorker) ||
		next.WorkerGeneration != prev.WorkerGeneration {
		return false
	}
	if len(next.RetiredWorkers) != len(prev.RetiredWorkers) {
		return false
	}
	for i := range next.RetiredWorkers {
		if !bytes.Equal(next.RetiredWorkers[i].PublicKey, prev.RetiredWorkers[i].PublicKey) ||
			!next.RetiredWorkers[i].RetiredAt.Equal(prev.RetiredWorkers[i].RetiredAt) {
			return false
		}
	}
	if len(next.Vaults) != len(prev.Vaults) {
		return false
	}
	for i := range next.Vaults {
		a, b := prev.Vaults[i], next.Vaults[i]
		if b.Address != a.Address ||
			!b.Created.Equal(a.Created) ||
			b.Name != a.Name ||
			b.Description != a.Description ||
			b.Bridge != a.Bridge ||
			b.ObjectType.Kind() != a.ObjectType.Kind() ||
			b.ObjectType.Kind() == manifest.TypeInvalid {
			return false
		}
	}
	return true
}

// wrapStorage translates substrate sentinels into the stable error
// taxonomy. Already-structured errors pass through untouched.
func wrapStorage(op, msg string, err error) error {
	if ark.ErrKind(err) != "" {
		return err
	}
	switch {
	case storage.IsConflict(err):
		return ark.WrapError(ark.KindConflict, op, msg, err)
	case storage.IsNotFound(err):
		return ark.WrapError(ark.KindNotFound, op, msg, err)
	case storage.IsNetwork(err):
		return ark.WrapError(ark.KindNetwork, op, msg, err)
	default:
		return ark.WrapError(ark.KindInternal, op, msg, err)
	}
}
