// Package codec provides the deterministic CBOR configuration used for every
// canonical byte string in the system.
//
// Manifest snapshots and pointer records are content-addressed and signed, so
// the same logical value must always serialize to identical bytes. Core
// Deterministic Encoding (RFC 8949 §4.2) gives that: sorted map keys,
// smallest integer encoding, no indefinite-length items.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// Timestamps encode as epoch time with microsecond precision. Equal
	// times always yield identical bytes under the deterministic float
	// shortening; precision below a microsecond is dropped on round trip.
	encOptions.Time = cbor.TimeUnixMicro
	// address.Address carries unexported fields and serializes through its
	// MarshalText form; without this it would encode as an empty map.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Any-typed targets decode maps as map[string]any; no canonical
		// structure in this system uses non-string map keys.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		// Mirrors the TextMarshaler setting for round-trip correctness.
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is a raw encoded CBOR value.
type RawMessage = cbor.RawMessage
