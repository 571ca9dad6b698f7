package signal

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr bool
	}{
		{"valid", Spec{Name: "x", Direction: DirectionInput, Type: TypeFloat32, Length: 1}, false},
		{"empty name", Spec{Direction: DirectionInput, Type: TypeFloat32, Length: 1}, true},
		{"zero length", Spec{Name: "x", Type: TypeFloat32}, true},
		{"bad type", Spec{Name: "x", Length: 1}, true},
		{"bad direction", Spec{Name: "x", Direction: 9, Type: TypeInt32, Length: 1}, true},
		{"negative instances", Spec{Name: "x", Type: TypeInt32, Length: 1, MaxInstances: -1}, true},
		{"bad steal", Spec{Name: "x", Type: TypeInt32, Length: 1, Steal: 7}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSpec)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSpecValidateDefaultsInstances(t *testing.T) {
	s := Spec{Name: "x", Type: TypeInt32, Length: 2, Ephemeral: true}
	require.NoError(t, s.Validate())
	assert.Equal(t, DefaultMaxInstances, s.MaxInstances)
}

func TestParseHelpers(t *testing.T) {
	d, err := ParseDirection("out")
	require.NoError(t, err)
	assert.Equal(t, DirectionOutput, d)

	typ, err := ParseType("f")
	require.NoError(t, err)
	assert.Equal(t, TypeFloat32, typ)

	p, err := ParseStealPolicy("")
	require.NoError(t, err)
	assert.Equal(t, StealNone, p)

	_, err = ParseStealPolicy("loudest")
	assert.ErrorIs(t, err, ErrInvalidSpec)
	_, err = ParseType("double")
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func TestHandleStateTransitions(t *testing.T) {
	h, err := NewHandle(Spec{Name: "pressure", Direction: DirectionOutput, Type: TypeFloat32, Length: 1})
	require.NoError(t, err)

	assert.Equal(t, StateUnbound, h.State())
	assert.False(t, h.Live())

	assert.True(t, h.Transition(StateUnbound, StateBound))
	assert.False(t, h.Transition(StateUnbound, StateBound))
	assert.True(t, h.Transition(StateBound, StateReady))
	assert.True(t, h.Live())

	assert.Equal(t, StateReady, h.Destroy())
	assert.Equal(t, StateDestroyed, h.State())
	assert.False(t, h.Transition(StateDestroyed, StateBound))
	assert.Equal(t, "pressure/output", h.String())
}

func TestHandleSeqUnique(t *testing.T) {
	spec := Spec{Name: "x", Type: TypeInt32, Length: 1}
	a, _ := NewHandle(spec)
	b, _ := NewHandle(spec)
	assert.NotEqual(t, a.Seq(), b.Seq())
}

func TestSlot(t *testing.T) {
	assert.True(t, Base().IsBase())
	assert.Equal(t, "base", Base().String())

	s := Instance(7)
	id, ok := s.ID()
	assert.True(t, ok)
	assert.Equal(t, InstanceID(7), id)
	assert.Equal(t, "7", s.String())

	// Instance 0 is distinct from the base slot.
	assert.NotEqual(t, Base(), Instance(0))
}

func TestConvertTruncatesFloatsOnIntSignals(t *testing.T) {
	frames, err := Convert(TypeInt32, 3, []Atom{FloatAtom(1.9), FloatAtom(-1.9), IntAtom(4)})
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, []int32{1, -1, 4}, frames[0].Int32)
}

func TestConvertPromotesIntsOnFloatSignals(t *testing.T) {
	frames, err := Convert(TypeFloat32, 2, []Atom{IntAtom(3), FloatAtom(0.5)})
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, []float32{3, 0.5}, frames[0].Float32)
}

func TestConvertSplitsFrames(t *testing.T) {
	frames, err := Convert(TypeInt32, 2, []Atom{IntAtom(1), IntAtom(2), IntAtom(3), IntAtom(4)})
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, []int32{1, 2}, frames[0].Int32)
	assert.Equal(t, []int32{3, 4}, frames[1].Int32)
}

func TestConvertRejectsIllegalShape(t *testing.T) {
	for _, n := range []int{0, 1, 5} {
		atoms := make([]Atom, n)
		_, err := Convert(TypeFloat32, 2, atoms)
		if !errors.Is(err, ErrIllegalValueShape) {
			t.Errorf("Convert(%d atoms) error = %v, want ErrIllegalValueShape", n, err)
		}
	}
}

func TestConvertRejectsOutOfRangeInt32(t *testing.T) {
	for _, a := range []Atom{
		FloatAtom(math.NaN()),
		FloatAtom(math.Inf(1)),
		FloatAtom(math.Inf(-1)),
		FloatAtom(3e9),
		IntAtom(math.MaxInt32 + 1),
		IntAtom(math.MinInt32 - 1),
	} {
		_, err := Convert(TypeInt32, 1, []Atom{a})
		assert.ErrorIs(t, err, ErrIllegalValueShape, "atom %s", a)
	}

	frames, err := Convert(TypeInt32, 2, []Atom{IntAtom(math.MaxInt32), FloatAtom(-2147483648.5)})
	require.NoError(t, err)
	assert.Equal(t, []int32{math.MaxInt32, math.MinInt32}, frames[0].Int32)
}

func TestCheckShape(t *testing.T) {
	assert.NoError(t, CheckShape(TypeFloat32, 2, Float32s(1, 2)))
	assert.ErrorIs(t, CheckShape(TypeFloat32, 2, Float32s(1)), ErrIllegalValueShape)
	assert.ErrorIs(t, CheckShape(TypeInt32, 1, Float32s(1)), ErrIllegalValueShape)
}

func TestValuesHelpers(t *testing.T) {
	v := Int32s(1, 2)
	assert.Equal(t, []float64{1, 2}, v.Float64s())
	assert.Equal(t, "1 2", v.String())

	c := v.Clone()
	c.Int32[0] = 9
	assert.Equal(t, int32(1), v.Int32[0])

	f := Float32s(0.5)
	assert.Equal(t, []Atom{FloatAtom(0.5)}, f.Atoms())
}
