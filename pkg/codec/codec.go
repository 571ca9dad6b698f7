// Package codec holds the CBOR encoding modes shared by the event trace
// files and the loopback batch framing.
package codec

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Codec pairs an encoding mode with a decoding mode.
type Codec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// EncOptions returns the deterministic encoding every payload uses:
// canonical key order, definite lengths and RFC 3339 timestamps.
func EncOptions() cbor.EncOptions {
	return cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}
}

// Strict rejects duplicate map keys and indefinite lengths.
func Strict() cbor.DecOptions {
	return cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}
}

// Lenient accepts what other CBOR writers may produce.
func Lenient() cbor.DecOptions {
	return cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
}

// New builds a Codec from the given options.
func New(enc cbor.EncOptions, dec cbor.DecOptions) (Codec, error) {
	em, err := enc.EncMode()
	if err != nil {
		return Codec{}, fmt.Errorf("cbor encoder mode: %w", err)
	}
	dm, err := dec.DecMode()
	if err != nil {
		return Codec{}, fmt.Errorf("cbor decoder mode: %w", err)
	}
	return Codec{enc: em, dec: dm}, nil
}

// Must is New for package-level codecs; it panics on invalid options.
func Must(enc cbor.EncOptions, dec cbor.DecOptions) Codec {
	c, err := New(enc, dec)
	if err != nil {
		panic(err)
	}
	return c
}

// Marshal encodes v.
func (c Codec) Marshal(v any) ([]byte, error) { return c.enc.Marshal(v) }

// Unmarshal decodes one item from data into v.
func (c Codec) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }

// NewEncoder returns a stream encoder writing to w.
func (c Codec) NewEncoder(w io.Writer) *cbor.Encoder { return c.enc.NewEncoder(w) }

// NewDecoder returns a stream decoder reading from r.
func (c Codec) NewDecoder(r io.Reader) *cbor.Decoder { return c.dec.NewDecoder(r) }
