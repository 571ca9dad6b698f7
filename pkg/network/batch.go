package network

import (
	"fmt"
	"time"

	"github.com/libmapper/libmapper-max-sub000/pkg/codec"
	"github.com/libmapper/libmapper-max-sub000/pkg/signal"
)

// UpdateKind distinguishes the entries of a batch.
type UpdateKind uint8

const (
	UpdateValue UpdateKind = iota + 1
	UpdateRelease
)

// String returns the update kind name.
func (k UpdateKind) String() string {
	switch k {
	case UpdateValue:
		return "value"
	case UpdateRelease:
		return "release"
	default:
		return "unknown"
	}
}

// Update is one outbound mutation.
type Update struct {
	Kind   UpdateKind `cbor:"1,keyasint"`
	Signal string     `cbor:"2,keyasint"`

	// Instance is set for instance-addressed updates.
	Instance *uint64 `cbor:"3,keyasint,omitempty"`

	Int32   []int32   `cbor:"4,keyasint,omitempty"`
	Float32 []float32 `cbor:"5,keyasint,omitempty"`
}

// Slot returns the slot the update addresses.
func (u Update) Slot() signal.Slot {
	if u.Instance == nil {
		return signal.Base()
	}
	return signal.Instance(signal.InstanceID(*u.Instance))
}

// Values returns the update payload.
func (u Update) Values() signal.Values {
	if u.Float32 != nil {
		return signal.Float32s(u.Float32...)
	}
	return signal.Int32s(u.Int32...)
}

func valueUpdate(name string, slot signal.Slot, v signal.Values) Update {
	u := Update{Kind: UpdateValue, Signal: name, Instance: slotID(slot)}
	switch v.Type {
	case signal.TypeFloat32:
		u.Float32 = append([]float32(nil), v.Float32...)
	default:
		u.Int32 = append([]int32(nil), v.Int32...)
	}
	return u
}

func releaseUpdate(name string, id signal.InstanceID) Update {
	return Update{Kind: UpdateRelease, Signal: name, Instance: slotID(signal.Instance(id))}
}

func slotID(slot signal.Slot) *uint64 {
	id, ok := slot.ID()
	if !ok {
		return nil
	}
	v := uint64(id)
	return &v
}

// Batch is the set of updates flushed by one SendBatch.
type Batch struct {
	Seq       uint64    `cbor:"1,keyasint"`
	Timestamp time.Time `cbor:"2,keyasint"`
	Updates   []Update  `cbor:"3,keyasint"`
}

// String returns a short description for diagnostics.
func (b Batch) String() string {
	return fmt.Sprintf("batch #%d (%d updates)", b.Seq, len(b.Updates))
}

var batchCodec = codec.Must(codec.EncOptions(), codec.Strict())

// EncodeBatch encodes a batch to CBOR.
func EncodeBatch(b Batch) ([]byte, error) {
	return batchCodec.Marshal(b)
}

// DecodeBatch decodes one CBOR-encoded batch.
func DecodeBatch(data []byte) (Batch, error) {
	var b Batch
	if err := batchCodec.Unmarshal(data, &b); err != nil {
		return Batch{}, err
	}
	return b, nil
}
