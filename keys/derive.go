package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"io"
	"strconv"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/hkdf"

	"github.com/rrauch/ark"
)

// Domain-separation labels for HKDF-SHA256 derivation paths. Fields are
// NUL-delimited so no label is a prefix of another. Changing any of these
// creates a disjoint key universe: every derived key changes.
const (
	labelHelm   = "ark/v0/key\x00role:helm"
	labelData   = "ark/v0/key\x00role:data"
	labelWorker = "ark/v0/key\x00role:worker\x00generation:"
)

// DeriveHelmKey derives the administrative keypair.
func DeriveHelmKey(secret *RootSecret) (*HelmKey, error) {
	priv, err := deriveKey(secret, []byte(labelHelm))
	if err != nil {
		return nil, err
	}
	return &HelmKey{priv: priv}, nil
}

// DeriveDataKey derives the content keypair.
//
// Must never be invoked by an always-online process; which components hold a
// RootSecret enforces that, not this function.
func DeriveDataKey(secret *RootSecret) (*DataKey, error) {
	priv, err := deriveKey(secret, []byte(labelData))
	if err != nil {
		return nil, err
	}
	return &DataKey{priv: priv}, nil
}

// DeriveWorkerKey derives the operational keypair for one generation.
//
// Generations are mutually unlinkable: observing a retired worker keypair
// gives no advantage in predicting any other generation without the secret.
// Re-deriving the same generation is always safe and idempotent.
func DeriveWorkerKey(secret *RootSecret, generation uint32) (*WorkerKey, error) {
	info := labelWorker + strconv.FormatUint(uint64(generation), 10)
	priv, err := deriveKey(secret, []byte(info))
	if err != nil {
		return nil, err
	}
	return &WorkerKey{priv: priv, generation: generation}, nil
}

func deriveKey(secret *RootSecret, info []byte) (ed25519.PrivateKey, error) {
	ikm, err := secret.open()
	if err != nil {
		return nil, err
	}
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, nil, info), seed); err != nil {
		return nil, ark.WrapError(ark.KindInternal, "keys.derive", "kdf output too short", err)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	memguard.WipeBytes(seed)
	return priv, nil
}
