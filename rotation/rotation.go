// Package rotation drives worker key lifecycle against a manifest store.
//
// The authoritative worker generation lives in the published manifest, never
// in process memory. Every rotation re-resolves the manifest, derives the
// next generation from what it finds there, and publishes under optimistic
// concurrency, so two concurrent rotations can never both claim the same
// generation.
package rotation

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rrauch/ark"
	"github.com/rrauch/ark/address"
	"github.com/rrauch/ark/keys"
	"github.com/rrauch/ark/manifest"
	"github.com/rrauch/ark/manifeststore"
	"github.com/rrauch/ark/storage"
)

const defaultMaxAttempts = 3

// Coordinator bootstraps Arks and rotates their worker keys.
type Coordinator struct {
	store       *manifeststore.Store
	maxAttempts int
	log         *logrus.Entry
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMaxAttempts bounds how often a rotation is re-issued after losing a
// publish race.
func WithMaxAttempts(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithLogger routes rotation progress to logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Coordinator) {
		c.log = logrus.NewEntry(logger).WithField("component", "rotation")
	}
}

// New returns a Coordinator over store.
func New(store *manifeststore.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		maxAttempts: defaultMaxAttempts,
		log:         logrus.NewEntry(logrus.StandardLogger()).WithField("component", "rotation"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result describes the worker key installed by a bootstrap or rotation. The
// caller owns the key and must Wipe it when done.
type Result struct {
	Worker     *keys.WorkerKey
	Generation uint32
	Record     storage.PointerRecord
}

// Bootstrap derives the key hierarchy from secret, publishes a genesis
// manifest, and returns the Ark's address together with the generation-0
// worker key. Fails with kind Conflict when the Ark already exists.
func (c *Coordinator) Bootstrap(ctx context.Context, secret *keys.RootSecret, name, description string) (address.Address, Result, error) {
	helm, err := keys.DeriveHelmKey(secret)
	if err != nil {
		return address.Address{}, Result{}, err
	}
	defer helm.Wipe()

	arkAddr, err := address.Resolve(helm.Public(), address.Ark)
	if err != nil {
		return address.Address{}, Result{}, err
	}
	worker, err := keys.DeriveWorkerKey(secret, 0)
	if err != nil {
		return address.Address{}, Result{}, err
	}

	m := manifest.New(arkAddr, name, description, worker.Public())
	rec, err := c.store.Init(ctx, m, helm)
	if err != nil {
		worker.Wipe()
		return address.Address{}, Result{}, err
	}

	c.log.WithField("ark", arkAddr.String()).Info("ark bootstrapped")
	return arkAddr, Result{Worker: worker, Generation: 0, Record: rec}, nil
}

// Rotate retires the current worker key and installs the next generation.
//
// The new generation is always derived from the resolved manifest, so a
// coordinator holding a stale view cannot skip or reuse generations. Lost
// publish races are re-resolved and re-issued up to the attempt bound, then
// surfaced as kind Conflict.
func (c *Coordinator) Rotate(ctx context.Context, secret *keys.RootSecret, arkAddr address.Address) (Result, error) {
	const op = "rotation.Rotate"

	helm, err := keys.DeriveHelmKey(secret)
	if err != nil {
		return Result{}, err
	}
	defer helm.Wipe()

	helmAddr, err := address.Resolve(helm.Public(), address.Ark)
	if err != nil {
		return Result{}, err
	}
	if helmAddr != arkAddr {
		return Result{}, ark.NewError(ark.KindUnauthorized, op, "root secret does not control this ark")
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		m, base, err := c.store.Resolve(ctx, arkAddr)
		if err != nil {
			return Result{}, err
		}

		generation := m.WorkerGeneration + 1
		worker, err := keys.DeriveWorkerKey(secret, generation)
		if err != nil {
			return Result{}, err
		}

		next := m.Clone()
		if err := next.RotateWorker(worker.Public(), generation, time.Now().UTC()); err != nil {
			worker.Wipe()
			return Result{}, err
		}

		rec, err := c.store.Publish(ctx, next, base, helm, manifeststore.Administrative)
		if err == nil {
			c.log.WithFields(logrus.Fields{"ark": arkAddr.String(), "generation": generation}).
				Info("worker key rotated")
			return Result{Worker: worker, Generation: generation, Record: rec}, nil
		}
		worker.Wipe()
		if !ark.IsKind(err, ark.KindConflict) {
			return Result{}, err
		}
		lastErr = err
		c.log.WithFields(logrus.Fields{"ark": arkAddr.String(), "attempt": attempt}).
			Warn("lost publish race during rotation, re-resolving")
	}
	return Result{}, ark.WrapError(ark.KindConflict, op, "rotation abandoned after repeated publish races", lastErr)
}
