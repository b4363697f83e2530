// Package keys implements the deterministic key hierarchy rooted in a single
// offline secret.
//
// One 24-word mnemonic yields the root secret; the helm, data and
// generation-indexed worker keypairs are pure HKDF derivations from it. No
// derived key can derive another, and repeated derivation with identical
// inputs always yields identical keypairs.
//
// Operational contract: the data key must never be loaded by an always-online
// process. The derivation functions cannot enforce that; EngineKeyring does,
// by being the only key container the engine holds and being unable to
// contain anything but a worker key.
package keys
