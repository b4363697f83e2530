package manifeststore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/rrauch/ark"
	"github.com/rrauch/ark/address"
	"github.com/rrauch/ark/keys"
	"github.com/rrauch/ark/manifest"
	"github.com/rrauch/ark/storage"
	"github.com/rrauch/ark/storage/testkit"
)

func fastBackOff(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 8), ctx)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

type env struct {
	secret  *keys.RootSecret
	helm    *keys.HelmKey
	worker  *keys.WorkerKey
	arkAddr address.Address
	store   *Store
	mem     *storage.Memory
}

func newEnv(t *testing.T) *env {
	t.Helper()
	secret, err := keys.NewRootSecret()
	if err != nil {
		t.Fatalf("NewRootSecret: %v", err)
	}
	t.Cleanup(secret.Wipe)
	helm, err := keys.DeriveHelmKey(secret)
	if err != nil {
		t.Fatalf("DeriveHelmKey: %v", err)
	}
	worker, err := keys.DeriveWorkerKey(secret, 0)
	if err != nil {
		t.Fatalf("DeriveWorkerKey: %v", err)
	}
	arkAddr, err := address.Resolve(helm.Public(), address.Ark)
	if err != nil {
		t.Fatalf("Resolve ark address: %v", err)
	}
	mem := storage.NewMemory()
	return &env{
		secret:  secret,
		helm:    helm,
		worker:  worker,
		arkAddr: arkAddr,
		store:   New(mem, WithBackOff(fastBackOff), WithLogger(quietLogger())),
		mem:     mem,
	}
}

func (e *env) init(t *testing.T) storage.PointerRecord {
	t.Helper()
	m := manifest.New(e.arkAddr, "family archive", "", e.worker.Public())
	rec, err := e.store.Init(context.Background(), m, e.helm)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return rec
}

func randomAddress(t *testing.T, ns address.Namespace) address.Address {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	addr, err := address.Resolve(pub, ns)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return addr
}

func testVault(t *testing.T) manifest.Vault {
	t.Helper()
	v, err := manifest.NewVault(
		randomAddress(t, address.Vault),
		randomAddress(t, address.Bridge),
		"photos", "", true, manifest.FilesystemPosix())
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	return v
}

func TestInitGenesis(t *testing.T) {
	e := newEnv(t)
	rec := e.init(t)

	if rec.Sequence != 0 {
		t.Fatalf("genesis sequence = %d, want 0", rec.Sequence)
	}
	m, got, err := e.store.Resolve(context.Background(), e.arkAddr)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Sequence != 0 {
		t.Fatalf("resolved sequence = %d, want 0", got.Sequence)
	}
	if !m.AuthorizedWorker.Equal(ed25519.PublicKey(e.worker.Public())) {
		t.Fatal("authorized worker does not match generation-0 key")
	}
	if len(m.Vaults) != 0 || len(m.RetiredWorkers) != 0 {
		t.Fatal("genesis manifest must start with no vaults and no retired workers")
	}
	if m.WorkerGeneration != 0 {
		t.Fatalf("WorkerGeneration = %d, want 0", m.WorkerGeneration)
	}
}

func TestInitRejectsForeignHelm(t *testing.T) {
	e := newEnv(t)
	other, err := keys.NewRootSecret()
	if err != nil {
		t.Fatalf("NewRootSecret: %v", err)
	}
	defer other.Wipe()
	otherHelm, err := keys.DeriveHelmKey(other)
	if err != nil {
		t.Fatalf("DeriveHelmKey: %v", err)
	}

	m := manifest.New(e.arkAddr, "family archive", "", e.worker.Public())
	if _, err := e.store.Init(context.Background(), m, otherHelm); !ark.IsKind(err, ark.KindUnauthorized) {
		t.Fatalf("Init with foreign helm: got %v, want Unauthorized", err)
	}
}

func TestInitTwiceConflicts(t *testing.T) {
	e := newEnv(t)
	e.init(t)

	m := manifest.New(e.arkAddr, "family archive", "", e.worker.Public())
	if _, err := e.store.Init(context.Background(), m, e.helm); !ark.IsKind(err, ark.KindConflict) {
		t.Fatalf("second Init: got %v, want Conflict", err)
	}
}

func TestPublishAdministrativeAddVault(t *testing.T) {
	e := newEnv(t)
	base := e.init(t)

	m, _, err := e.store.Resolve(context.Background(), e.arkAddr)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	next := m.Clone()
	if err := next.AddVault(testVault(t)); err != nil {
		t.Fatalf("AddVault: %v", err)
	}

	rec, err := e.store.Publish(context.Background(), next, base, e.helm, Administrative)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if rec.Sequence != 1 {
		t.Fatalf("sequence = %d, want 1", rec.Sequence)
	}

	resolved, _, err := e.store.Resolve(context.Background(), e.arkAddr)
	if err != nil {
		t.Fatalf("Resolve after publish: %v", err)
	}
	if len(resolved.Vaults) != 1 {
		t.Fatalf("vault count = %d, want 1", len(resolved.Vaults))
	}
	link, ok, err := resolved.PreviousLink()
	if err != nil || !ok {
		t.Fatalf("PreviousLink: ok=%v err=%v", ok, err)
	}
	if link != base.Snapshot {
		t.Fatal("chain link does not point at the genesis snapshot")
	}
}

func TestPublishOperationalToggle(t *testing.T) {
	e := newEnv(t)
	base := e.init(t)

	m, _, err := e.store.Resolve(context.Background(), e.arkAddr)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	withVault := m.Clone()
	v := testVault(t)
	if err := withVault.AddVault(v); err != nil {
		t.Fatalf("AddVault: %v", err)
	}
	base, err = e.store.Publish(context.Background(), withVault, base, e.helm, Administrative)
	if err != nil {
		t.Fatalf("Publish vault: %v", err)
	}

	m, _, err = e.store.Resolve(context.Background(), e.arkAddr)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	toggled := m.Clone()
	if err := toggled.SetVaultActive(v.Address, false); err != nil {
		t.Fatalf("SetVaultActive: %v", err)
	}

	rec, err := e.store.Publish(context.Background(), toggled, base, e.worker, Operational)
	if err != nil {
		t.Fatalf("worker Publish: %v", err)
	}
	if rec.Sequence != 2 {
		t.Fatalf("sequence = %d, want 2", rec.Sequence)
	}

	resolved, _, err := e.store.Resolve(context.Background(), e.arkAddr)
	if err != nil {
		t.Fatalf("Resolve worker-signed snapshot: %v", err)
	}
	got, ok := resolved.VaultAt(v.Address)
	if !ok {
		t.Fatal("vault missing after toggle")
	}
	if got.Active {
		t.Fatal("vault still active after worker deactivation")
	}
}

func TestPublishStaleBaseConflicts(t *testing.T) {
	e := newEnv(t)
	base := e.init(t)

	m, _, err := e.store.Resolve(context.Background(), e.arkAddr)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	first := m.Clone()
	if err := first.AddVault(testVault(t)); err != nil {
		t.Fatalf("AddVault: %v", err)
	}
	if _, err := e.store.Publish(context.Background(), first, base, e.helm, Administrative); err != nil {
		t.Fatalf("first Publish: %v", err)
	}

	// Second writer still holds the genesis record as its base.
	second := m.Clone()
	if err := second.AddVault(testVault(t)); err != nil {
		t.Fatalf("AddVault: %v", err)
	}
	if _, err := e.store.Publish(context.Background(), second, base, e.helm, Administrative); !ark.IsKind(err, ark.KindConflict) {
		t.Fatalf("stale Publish: got %v, want Conflict", err)
	}
}

func TestPublishWorkerCannotAdministrate(t *testing.T) {
	e := newEnv(t)
	base := e.init(t)

	m, _, err := e.store.Resolve(context.Background(), e.arkAddr)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	next := m.Clone()
	if err := next.AddVault(testVault(t)); err != nil {
		t.Fatalf("AddVault: %v", err)
	}

	if _, err := e.store.Publish(context.Background(), next, base, e.worker, Administrative); !ark.IsKind(err, ark.KindUnauthorized) {
		t.Fatalf("worker administrative Publish: got %v, want Unauthorized", err)
	}
	// Declaring it operational does not help: the diff exceeds active flags.
	if _, err := e.store.Publish(context.Background(), next, base, e.worker, Operational); !ark.IsKind(err, ark.KindUnauthorized) {
		t.Fatalf("worker overreaching operational Publish: got %v, want Unauthorized", err)
	}
}

func TestRotationRetiresOldWorker(t *testing.T) {
	e := newEnv(t)
	base := e.init(t)

	m, _, err := e.store.Resolve(context.Background(), e.arkAddr)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	next, err := keys.DeriveWorkerKey(e.secret, 1)
	if err != nil {
		t.Fatalf("DeriveWorkerKey: %v", err)
	}
	rotated := m.Clone()
	if err := rotated.RotateWorker(next.Public(), 1, time.Now().UTC()); err != nil {
		t.Fatalf("RotateWorker: %v", err)
	}
	base, err = e.store.Publish(context.Background(), rotated, base, e.helm, Administrative)
	if err != nil {
		t.Fatalf("Publish rotation: %v", err)
	}

	resolved, _, err := e.store.Resolve(context.Background(), e.arkAddr)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !resolved.AuthorizedWorker.Equal(ed25519.PublicKey(next.Public())) {
		t.Fatal("authorized worker was not replaced")
	}
	if resolved.WorkerGeneration != 1 {
		t.Fatalf("WorkerGeneration = %d, want 1", resolved.WorkerGeneration)
	}
	if len(resolved.RetiredWorkers) != 1 || !resolved.RetiredWorkers[0].PublicKey.Equal(ed25519.PublicKey(e.worker.Public())) {
		t.Fatal("retired set does not contain the generation-0 key")
	}

	// The retired key has no remaining authority.
	withVault := resolved.Clone()
	v := testVault(t)
	if err := withVault.AddVault(v); err != nil {
		t.Fatalf("AddVault: %v", err)
	}
	base, err = e.store.Publish(context.Background(), withVault, base, e.helm, Administrative)
	if err != nil {
		t.Fatalf("Publish vault: %v", err)
	}
	resolved, _, err = e.store.Resolve(context.Background(), e.arkAddr)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	toggled := resolved.Clone()
	if err := toggled.SetVaultActive(v.Address, false); err != nil {
		t.Fatalf("SetVaultActive: %v", err)
	}
	if _, err := e.store.Publish(context.Background(), toggled, base, e.worker, Operational); !ark.IsKind(err, ark.KindUnauthorized) {
		t.Fatalf("retired worker Publish: got %v, want Unauthorized", err)
	}
	if _, err := e.store.Publish(context.Background(), toggled, base, next, Operational); err != nil {
		t.Fatalf("current worker Publish: %v", err)
	}
}

func TestResolveRoundTripIsCanonical(t *testing.T) {
	e := newEnv(t)
	base := e.init(t)

	m, _, err := e.store.Resolve(context.Background(), e.arkAddr)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	next := m.Clone()
	if err := next.AddVault(testVault(t)); err != nil {
		t.Fatalf("AddVault: %v", err)
	}
	if _, err := e.store.Publish(context.Background(), next, base, e.helm, Administrative); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	first, _, err := e.store.Resolve(context.Background(), e.arkAddr)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, _, err := e.store.Resolve(context.Background(), e.arkAddr)
	if err != nil {
		t.Fatalf("Resolve again: %v", err)
	}
	a, err := first.EncodeCanonical()
	if err != nil {
		t.Fatalf("EncodeCanonical: %v", err)
	}
	b, err := second.EncodeCanonical()
	if err != nil {
		t.Fatalf("EncodeCanonical: %v", err)
	}
	if string(a) != string(b) {
		t.Fatal("independent resolves yield different canonical bytes")
	}
}

func TestResolveRejectsWorkerOverreach(t *testing.T) {
	e := newEnv(t)
	base := e.init(t)

	// Bypass Publish and plant a worker-signed snapshot that renames the
	// ark, a change only the helm key may make.
	m, _, err := e.store.Resolve(context.Background(), e.arkAddr)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	forged := m.Clone()
	forged.Name = "renamed by worker"
	if err := forged.SetPrevious(base); err != nil {
		t.Fatalf("SetPrevious: %v", err)
	}
	data, err := forged.EncodeCanonical()
	if err != nil {
		t.Fatalf("EncodeCanonical: %v", err)
	}
	id, err := e.mem.Put(context.Background(), data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	rec := storage.PointerRecord{Snapshot: id, Sequence: 1, Signer: e.worker.Public()}
	rec.Signature = e.worker.Sign(rec.SignedBytes(e.arkAddr))
	if err := e.mem.PutPointer(context.Background(), e.arkAddr, rec); err != nil {
		t.Fatalf("PutPointer: %v", err)
	}

	if _, _, err := e.store.Resolve(context.Background(), e.arkAddr); !ark.IsKind(err, ark.KindUnauthorized) {
		t.Fatalf("Resolve forged snapshot: got %v, want Unauthorized", err)
	}
}

// plant uploads a snapshot and signs a pointer record for it with signer,
// bypassing Publish.
func (e *env) plant(t *testing.T, m *manifest.Manifest, seq uint64, signer keys.Signer) storage.PointerRecord {
	t.Helper()
	data, err := m.EncodeCanonical()
	if err != nil {
		t.Fatalf("EncodeCanonical: %v", err)
	}
	id, err := e.mem.Put(context.Background(), data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	rec := storage.PointerRecord{Snapshot: id, Sequence: seq, Signer: signer.Public()}
	rec.Signature = signer.Sign(rec.SignedBytes(e.arkAddr))
	return rec
}

// A compromised worker must not be able to smuggle in an administrative
// change by fabricating the "prior" snapshot it is diffed against: a forged
// prior already carrying the change plus a head whose diff from it is empty,
// both worker-signed.
func TestResolveRejectsFabricatedPriorChain(t *testing.T) {
	t.Run("WorkerSignedGenesis", func(t *testing.T) {
		e := newEnv(t)
		e.init(t)

		m, _, err := e.store.Resolve(context.Background(), e.arkAddr)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		prior := m.Clone()
		prior.Name = "renamed offline"
		priorRec := e.plant(t, prior, 0, e.worker)

		head := prior.Clone()
		if err := head.SetPrevious(priorRec); err != nil {
			t.Fatalf("SetPrevious: %v", err)
		}
		headRec := e.plant(t, head, 1, e.worker)
		if err := e.mem.PutPointer(context.Background(), e.arkAddr, headRec); err != nil {
			t.Fatalf("PutPointer: %v", err)
		}

		if _, _, err := e.store.Resolve(context.Background(), e.arkAddr); !ark.IsKind(err, ark.KindUnauthorized) {
			t.Fatalf("Resolve fabricated chain: got %v, want Unauthorized", err)
		}
	})

	// Anchoring the fabrication on the genuine helm-signed genesis does not
	// help: the walk reaches the genesis and the accumulated diff is
	// administrative.
	t.Run("AnchoredOnGenuineGenesis", func(t *testing.T) {
		e := newEnv(t)
		genesisRec := e.init(t)

		m, _, err := e.store.Resolve(context.Background(), e.arkAddr)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		mid := m.Clone()
		mid.Name = "renamed offline"
		if err := mid.SetPrevious(genesisRec); err != nil {
			t.Fatalf("SetPrevious: %v", err)
		}
		midRec := e.plant(t, mid, 1, e.worker)
		if err := e.mem.PutPointer(context.Background(), e.arkAddr, midRec); err != nil {
			t.Fatalf("PutPointer(mid): %v", err)
		}

		head := mid.Clone()
		if err := head.SetPrevious(midRec); err != nil {
			t.Fatalf("SetPrevious: %v", err)
		}
		headRec := e.plant(t, head, 2, e.worker)
		if err := e.mem.PutPointer(context.Background(), e.arkAddr, headRec); err != nil {
			t.Fatalf("PutPointer(head): %v", err)
		}

		if _, _, err := e.store.Resolve(context.Background(), e.arkAddr); !ark.IsKind(err, ark.KindUnauthorized) {
			t.Fatalf("Resolve fabricated chain: got %v, want Unauthorized", err)
		}
	})
}

// A legitimate run of consecutive worker-signed toggles must still resolve:
// the chain walk crosses them all to the helm-signed publish underneath.
func TestResolveAcceptsConsecutiveWorkerPublishes(t *testing.T) {
	e := newEnv(t)
	base := e.init(t)

	m, _, err := e.store.Resolve(context.Background(), e.arkAddr)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	withVault := m.Clone()
	v := testVault(t)
	if err := withVault.AddVault(v); err != nil {
		t.Fatalf("AddVault: %v", err)
	}
	base, err = e.store.Publish(context.Background(), withVault, base, e.helm, Administrative)
	if err != nil {
		t.Fatalf("Publish vault: %v", err)
	}

	for i, active := range []bool{false, true, false} {
		m, _, err = e.store.Resolve(context.Background(), e.arkAddr)
		if err != nil {
			t.Fatalf("Resolve before toggle %d: %v", i, err)
		}
		toggled := m.Clone()
		if err := toggled.SetVaultActive(v.Address, active); err != nil {
			t.Fatalf("SetVaultActive: %v", err)
		}
		base, err = e.store.Publish(context.Background(), toggled, base, e.worker, Operational)
		if err != nil {
			t.Fatalf("worker Publish %d: %v", i, err)
		}
	}

	resolved, rec, err := e.store.Resolve(context.Background(), e.arkAddr)
	if err != nil {
		t.Fatalf("Resolve after toggles: %v", err)
	}
	if rec.Sequence != 4 {
		t.Fatalf("sequence = %d, want 4", rec.Sequence)
	}
	got, ok := resolved.VaultAt(v.Address)
	if !ok || got.Active {
		t.Fatalf("final toggle not reflected, ok=%v", ok)
	}
}

func TestResolveUnknownAddress(t *testing.T) {
	e := newEnv(t)
	if _, _, err := e.store.Resolve(context.Background(), randomAddress(t, address.Ark)); !ark.IsKind(err, ark.KindNotFound) {
		t.Fatalf("Resolve unknown address: got %v, want NotFound", err)
	}
}

func TestHistoryWalksChain(t *testing.T) {
	e := newEnv(t)
	base := e.init(t)

	names := []string{"first", "second", "third"}
	for _, name := range names {
		m, _, err := e.store.Resolve(context.Background(), e.arkAddr)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		next := m.Clone()
		next.Name = name
		base, err = e.store.Publish(context.Background(), next, base, e.helm, Administrative)
		if err != nil {
			t.Fatalf("Publish %q: %v", name, err)
		}
	}

	chain, err := e.store.History(context.Background(), e.arkAddr)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(chain) != 4 {
		t.Fatalf("chain length = %d, want 4", len(chain))
	}
	want := []string{"third", "second", "first", "family archive"}
	for i, name := range want {
		if chain[i].Name != name {
			t.Fatalf("chain[%d].Name = %q, want %q", i, chain[i].Name, name)
		}
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	e := newEnv(t)
	flaky := &testkit.Flaky{Inner: e.mem, Failures: 2}
	store := New(flaky, WithBackOff(fastBackOff), WithLogger(quietLogger()))

	m := manifest.New(e.arkAddr, "family archive", "", e.worker.Public())
	if _, err := store.Init(context.Background(), m, e.helm); err != nil {
		t.Fatalf("Init through flaky substrate: %v", err)
	}
	if flaky.Calls() < 3 {
		t.Fatalf("calls = %d, want retries past the injected failures", flaky.Calls())
	}
}

func TestRetriesGiveUpEventually(t *testing.T) {
	e := newEnv(t)
	flaky := &testkit.Flaky{Inner: e.mem, Failures: 1 << 20}
	store := New(flaky, WithBackOff(fastBackOff), WithLogger(quietLogger()))

	m := manifest.New(e.arkAddr, "family archive", "", e.worker.Public())
	if _, err := store.Init(context.Background(), m, e.helm); !ark.IsKind(err, ark.KindNetwork) {
		t.Fatalf("Init against dead substrate: got %v, want Network", err)
	}
}

func TestPublishHonorsCancellation(t *testing.T) {
	e := newEnv(t)
	base := e.init(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m, _, err := e.store.Resolve(context.Background(), e.arkAddr)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	next := m.Clone()
	if err := next.AddVault(testVault(t)); err != nil {
		t.Fatalf("AddVault: %v", err)
	}
	if _, err := e.store.Publish(ctx, next, base, e.helm, Administrative); err == nil {
		t.Fatal("Publish with canceled context succeeded")
	}

	// The canceled attempt must not have advanced the pointer.
	_, rec, err := e.store.Resolve(context.Background(), e.arkAddr)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rec.Sequence != 0 {
		t.Fatalf("sequence = %d after canceled publish, want 0", rec.Sequence)
	}
}
