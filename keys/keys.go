package keys

import (
	"crypto/ed25519"

	"github.com/awnumar/memguard"
)

// Signer is the subset of the hierarchy allowed to sign pointer updates.
// Helm and worker keys implement it; the data key deliberately does not.
type Signer interface {
	Sign(message []byte) []byte
	Public() ed25519.PublicKey
}

// HelmKey is the administrative keypair. It authorizes vault changes, worker
// rotation and every other manifest mutation.
type HelmKey struct {
	priv ed25519.PrivateKey
}

func (k *HelmKey) Public() ed25519.PublicKey {
	return k.priv.Public().(ed25519.PublicKey)
}

func (k *HelmKey) Sign(message []byte) []byte {
	return ed25519.Sign(k.priv, message)
}

// Wipe erases the private key material.
func (k *HelmKey) Wipe() {
	memguard.WipeBytes(k.priv)
}

// DataKey is the content keypair. It carries no Sign method: manifest
// authentication never involves it, and it must never be held online.
type DataKey struct {
	priv ed25519.PrivateKey
}

func (k *DataKey) Public() ed25519.PublicKey {
	return k.priv.Public().(ed25519.PublicKey)
}

// Seed returns the private seed for the archival encryption pipeline, which
// is an external collaborator. Callers own wiping the returned slice.
func (k *DataKey) Seed() []byte {
	seed := make([]byte, ed25519.SeedSize)
	copy(seed, k.priv.Seed())
	return seed
}

// Wipe erases the private key material.
func (k *DataKey) Wipe() {
	memguard.WipeBytes(k.priv)
}

// WorkerKey is the operational keypair for one generation. It can toggle
// vault activity but cannot decrypt archived content or authorize
// administrative mutations.
type WorkerKey struct {
	priv       ed25519.PrivateKey
	generation uint32
}

func (k *WorkerKey) Public() ed25519.PublicKey {
	return k.priv.Public().(ed25519.PublicKey)
}

func (k *WorkerKey) Sign(message []byte) []byte {
	return ed25519.Sign(k.priv, message)
}

// Generation returns the derivation index this key was derived at.
func (k *WorkerKey) Generation() uint32 {
	return k.generation
}

// Wipe erases the private key material.
func (k *WorkerKey) Wipe() {
	memguard.WipeBytes(k.priv)
}
