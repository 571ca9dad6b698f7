package log

import (
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/libmapper/libmapper-max-sub000/pkg/codec"
)

// Trace decoding is lenient; empty containers encode as null.
var traceCodec = codec.Must(traceEncOptions(), codec.Lenient())

func traceEncOptions() cbor.EncOptions {
	opts := codec.EncOptions()
	opts.NilContainers = cbor.NilContainerAsNull
	return opts
}

// EncodeEvent encodes an Event to CBOR.
func EncodeEvent(event Event) ([]byte, error) {
	return traceCodec.Marshal(event)
}

// DecodeEvent decodes one CBOR-encoded Event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := traceCodec.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// NewEncoder returns a stream encoder for trace files.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return traceCodec.NewEncoder(w)
}

// NewDecoder returns a stream decoder for trace files.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return traceCodec.NewDecoder(r)
}
