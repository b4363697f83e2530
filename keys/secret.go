package keys

import (
	"strings"

	"github.com/awnumar/memguard"
	"github.com/tyler-smith/go-bip39"

	"github.com/rrauch/ark"
)

// entropyBytes is the root secret entropy size: 256 bits, a 24-word mnemonic.
const entropyBytes = 32

// RootSecret is the offline secret every operational key derives from.
//
// The entropy lives in a memguard locked buffer for its whole lifetime: it is
// never persisted by this module and Wipe destroys it on every exit path.
// Callers obtain one transiently, derive what they need, and wipe it.
type RootSecret struct {
	buf *memguard.LockedBuffer
}

// NewRootSecret generates a fresh root secret from the system CSPRNG.
func NewRootSecret() (*RootSecret, error) {
	entropy, err := bip39.NewEntropy(entropyBytes * 8)
	if err != nil {
		return nil, ark.WrapError(ark.KindInternal, "keys.NewRootSecret", "entropy generation failed", err)
	}
	// NewBufferFromBytes wipes the source slice.
	return &RootSecret{buf: memguard.NewBufferFromBytes(entropy)}, nil
}

// SecretFromMnemonic decodes a BIP-39 mnemonic into a root secret.
//
// Fails with kind InvalidSecret when the checksum or word list is invalid or
// the phrase is not 24 words.
func SecretFromMnemonic(words string) (*RootSecret, error) {
	const op = "keys.SecretFromMnemonic"

	normalized := strings.Join(strings.Fields(words), " ")
	entropy, err := bip39.EntropyFromMnemonic(normalized)
	if err != nil {
		return nil, ark.WrapError(ark.KindInvalidSecret, op, "mnemonic failed checksum or word-list validation", err)
	}
	if len(entropy) != entropyBytes {
		memguard.WipeBytes(entropy)
		return nil, ark.NewError(ark.KindInvalidSecret, op, "mnemonic must encode 256 bits of entropy (24 words)")
	}
	return &RootSecret{buf: memguard.NewBufferFromBytes(entropy)}, nil
}

// Mnemonic renders the secret as its 24-word phrase. The returned string is
// plain memory; the caller is responsible for its handling.
func (s *RootSecret) Mnemonic() (string, error) {
	entropy, err := s.open()
	if err != nil {
		return "", err
	}
	m, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", ark.WrapError(ark.KindInternal, "keys.Mnemonic", "mnemonic encoding failed", err)
	}
	return m, nil
}

// Wipe destroys the secret's memory. All later derivations fail with
// InvalidSecret. Safe to call more than once.
func (s *RootSecret) Wipe() {
	if s == nil || s.buf == nil {
		return
	}
	s.buf.Destroy()
}

// open returns the live entropy bytes. Callers must not retain the slice; it
// aliases locked memory owned by the secret.
func (s *RootSecret) open() ([]byte, error) {
	if s == nil || s.buf == nil || !s.buf.IsAlive() {
		return nil, ark.NewError(ark.KindInvalidSecret, "keys", "root secret has been wiped")
	}
	return s.buf.Bytes(), nil
}
