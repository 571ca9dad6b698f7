package signal

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AtomKind is the numeric kind of a host atom.
type AtomKind uint8

const (
	AtomInt AtomKind = iota
	AtomFloat
)

// Atom is one numeric element of a host message.
type Atom struct {
	Kind  AtomKind
	Int   int64
	Float float64
}

// IntAtom returns an integer atom.
func IntAtom(v int64) Atom { return Atom{Kind: AtomInt, Int: v} }

// FloatAtom returns a floating-point atom.
func FloatAtom(v float64) Atom { return Atom{Kind: AtomFloat, Float: v} }

// String formats the atom the way a host console would.
func (a Atom) String() string {
	if a.Kind == AtomInt {
		return strconv.FormatInt(a.Int, 10)
	}
	return strconv.FormatFloat(a.Float, 'g', -1, 64)
}

// Values is one length-correct vector of a signal's element type. Exactly
// one of Int32 and Float32 is populated, according to Type.
type Values struct {
	Type    Type
	Int32   []int32
	Float32 []float32
}

// Int32s returns an int32 vector.
func Int32s(v ...int32) Values { return Values{Type: TypeInt32, Int32: v} }

// Float32s returns a float32 vector.
func Float32s(v ...float32) Values { return Values{Type: TypeFloat32, Float32: v} }

// Len returns the number of elements.
func (v Values) Len() int {
	if v.Type == TypeInt32 {
		return len(v.Int32)
	}
	return len(v.Float32)
}

// Float64s returns the elements widened to float64.
func (v Values) Float64s() []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		if v.Type == TypeInt32 {
			out[i] = float64(v.Int32[i])
		} else {
			out[i] = float64(v.Float32[i])
		}
	}
	return out
}

// Atoms returns the elements as host atoms of the matching kind.
func (v Values) Atoms() []Atom {
	out := make([]Atom, v.Len())
	for i := range out {
		if v.Type == TypeInt32 {
			out[i] = IntAtom(int64(v.Int32[i]))
		} else {
			out[i] = FloatAtom(float64(v.Float32[i]))
		}
	}
	return out
}

// Clone returns a deep copy.
func (v Values) Clone() Values {
	c := Values{Type: v.Type}
	if v.Int32 != nil {
		c.Int32 = append([]int32(nil), v.Int32...)
	}
	if v.Float32 != nil {
		c.Float32 = append([]float32(nil), v.Float32...)
	}
	return c
}

// String renders the vector as a space-separated list.
func (v Values) String() string {
	parts := make([]string, 0, v.Len())
	for _, a := range v.Atoms() {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, " ")
}

// Convert validates a host atom list against a signal's element type and
// vector length and returns one Values frame per length elements. The atom
// count must be a positive multiple of length.
//
// Float atoms truncate toward zero on int32 signals; int atoms are promoted
// on float32 signals. An atom that does not fit int32 (NaN, infinite or
// out of range) fails with ErrIllegalValueShape.
func Convert(typ Type, length int, atoms []Atom) ([]Values, error) {
	if length < 1 || len(atoms) == 0 || len(atoms)%length != 0 {
		return nil, fmt.Errorf("%w: %d values for vector length %d", ErrIllegalValueShape, len(atoms), length)
	}
	frames := make([]Values, 0, len(atoms)/length)
	for off := 0; off < len(atoms); off += length {
		v, err := convertFrame(typ, atoms[off:off+length])
		if err != nil {
			return nil, err
		}
		frames = append(frames, v)
	}
	return frames, nil
}

func convertFrame(typ Type, atoms []Atom) (Values, error) {
	switch typ {
	case TypeInt32:
		out := make([]int32, len(atoms))
		for i, a := range atoms {
			n, ok := a.int32()
			if !ok {
				return Values{}, fmt.Errorf("%w: %s does not fit int32", ErrIllegalValueShape, a)
			}
			out[i] = n
		}
		return Int32s(out...), nil
	default:
		out := make([]float32, len(atoms))
		for i, a := range atoms {
			if a.Kind == AtomInt {
				out[i] = float32(a.Int)
			} else {
				out[i] = float32(a.Float)
			}
		}
		return Float32s(out...), nil
	}
}

func (a Atom) int32() (int32, bool) {
	if a.Kind == AtomFloat {
		f := math.Trunc(a.Float)
		if math.IsNaN(f) || f < math.MinInt32 || f > math.MaxInt32 {
			return 0, false
		}
		return int32(f), true
	}
	if a.Int < math.MinInt32 || a.Int > math.MaxInt32 {
		return 0, false
	}
	return int32(a.Int), true
}

// CheckShape reports ErrIllegalValueShape unless v matches typ and length.
func CheckShape(typ Type, length int, v Values) error {
	if v.Type != typ || v.Len() != length {
		return fmt.Errorf("%w: got %s[%d], want %s[%d]", ErrIllegalValueShape, v.Type, v.Len(), typ, length)
	}
	return nil
}
