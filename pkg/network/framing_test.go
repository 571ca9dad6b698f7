package network

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestBatchReaderErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{name: "empty frame", data: []byte{0, 0, 0, 0}, want: ErrFrameEmpty},
		{name: "truncated prefix", data: []byte{0, 0}, want: ErrFrameTruncated},
		{name: "truncated payload", data: []byte{0, 0, 0, 8, 1, 2}, want: ErrFrameTruncated},
		{name: "too large", data: []byte{0xFF, 0xFF, 0xFF, 0xFF}, want: ErrFrameTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBatchReader(bytes.NewReader(tt.data)).ReadBatch()
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBatchReaderRejectsGarbage(t *testing.T) {
	var buf bytes.Buffer
	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], 1)
	buf.Write(prefix[:])
	buf.WriteByte(0xFF)

	_, err := NewBatchReader(&buf).ReadBatch()
	require.Error(t, err)
}

func TestBatchWriterPropagatesErrors(t *testing.T) {
	err := NewBatchWriter(failWriter{}).WriteBatch(Batch{Seq: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "length prefix")
}

func TestUpdatePayloadKinds(t *testing.T) {
	u := Update{Kind: UpdateValue, Int32: []int32{1, 2}}
	assert.Equal(t, []int32{1, 2}, u.Values().Int32)
	assert.True(t, u.Slot().IsBase())
	assert.Equal(t, "value", u.Kind.String())
	assert.Equal(t, "release", UpdateRelease.String())
	assert.Equal(t, "unknown", UpdateKind(0).String())
}
