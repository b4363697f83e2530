// Package address derives stable, namespaced identifiers from public keys.
//
// An address is both a logical identity and the lookup key for a mutable
// pointer record. The mapping is injective per namespace: identical key
// material used in different roles never collides.
package address

import (
	"crypto/ed25519"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/rrauch/ark"
)

// Namespace discriminates the role an address is used in.
type Namespace string

const (
	Ark    Namespace = "ark"
	Vault  Namespace = "vault"
	Bridge Namespace = "bridge"
)

func (n Namespace) valid() bool {
	switch n {
	case Ark, Vault, Bridge:
		return true
	}
	return false
}

// addressDomain is the hash-preimage domain tag. The NUL delimiters keep the
// namespace and key material from ever aliasing each other.
const addressDomain = "ark/v0/address\x00"

// Address is a namespaced identifier derived from a public key.
//
// The zero value is not a valid address. Address is comparable and usable as
// a map key.
type Address struct {
	ns Namespace
	id cid.Cid
}

// Resolve derives the address of pub within ns.
//
// Deterministic and side-effect free: stable across processes and time. The
// identifier is a CIDv1 (raw, sha2-256) over the domain-tagged preimage, the
// same recipe used for snapshot content addressing.
func Resolve(pub ed25519.PublicKey, ns Namespace) (Address, error) {
	const op = "address.Resolve"
	if len(pub) != ed25519.PublicKeySize {
		return Address{}, ark.NewError(ark.KindInternal, op, "public key must be 32 bytes")
	}
	if !ns.valid() {
		return Address{}, ark.NewError(ark.KindInternal, op, "unknown namespace")
	}

	preimage := make([]byte, 0, len(addressDomain)+len(ns)+1+len(pub))
	preimage = append(preimage, addressDomain...)
	preimage = append(preimage, ns...)
	preimage = append(preimage, 0)
	preimage = append(preimage, pub...)

	sum, err := multihash.Sum(preimage, multihash.SHA2_256, -1)
	if err != nil {
		return Address{}, ark.WrapError(ark.KindInternal, op, "multihash failed", err)
	}
	return Address{ns: ns, id: cid.NewCidV1(cid.Raw, sum)}, nil
}

// Parse decodes the string form produced by String.
func Parse(s string) (Address, error) {
	const op = "address.Parse"
	ns, rest, ok := strings.Cut(s, ":")
	if !ok {
		return Address{}, ark.NewError(ark.KindInternal, op, "missing namespace separator")
	}
	if !Namespace(ns).valid() {
		return Address{}, ark.NewError(ark.KindInternal, op, "unknown namespace "+ns)
	}
	id, err := cid.Decode(rest)
	if err != nil {
		return Address{}, ark.WrapError(ark.KindInternal, op, "invalid identifier", err)
	}
	return Address{ns: Namespace(ns), id: id}, nil
}

// Namespace returns the role discriminator.
func (a Address) Namespace() Namespace {
	return a.ns
}

// Defined reports whether a is a derived address rather than the zero value.
func (a Address) Defined() bool {
	return a.ns.valid() && a.id.Defined()
}

// String renders the address as "<namespace>:<cidv1>".
func (a Address) String() string {
	if !a.Defined() {
		return ""
	}
	return string(a.ns) + ":" + a.id.String()
}

// MarshalText implements encoding.TextMarshaler so addresses serialize as
// text strings in the canonical encoding.
func (a Address) MarshalText() ([]byte, error) {
	if !a.Defined() {
		return nil, ark.NewError(ark.KindInternal, "address.MarshalText", "undefined address")
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
