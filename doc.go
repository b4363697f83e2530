// Package ark holds the cross-cutting error taxonomy for the ark core.
//
// The core itself lives in the subpackages:
//
//   - keys: deterministic key hierarchy rooted in one offline secret
//   - address: namespaced addresses derived from public keys
//   - manifest: the manifest/vault data model and its canonical encoding
//   - storage: the immutable-substrate contract and local implementations
//   - manifeststore: signed, sequence-numbered manifest publication
//   - rotation: worker key rotation
//
// Every error surfaced by those packages carries a stable Kind from this
// package so callers can branch on categories instead of strings.
package ark
