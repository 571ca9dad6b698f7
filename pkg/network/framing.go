package network

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Framing constants.
const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4

	// DefaultMaxFrameSize is the default maximum frame payload (64 KB).
	DefaultMaxFrameSize = 65536
)

// Framing errors.
var (
	ErrFrameTooLarge  = errors.New("frame too large")
	ErrFrameEmpty     = errors.New("frame is empty")
	ErrFrameTruncated = errors.New("frame truncated")
)

// BatchWriter writes batches as length-prefixed CBOR frames.
type BatchWriter struct {
	mu      sync.Mutex
	w       io.Writer
	maxSize uint32
}

// NewBatchWriter creates a batch writer on w.
func NewBatchWriter(w io.Writer) *BatchWriter {
	return &BatchWriter{w: w, maxSize: DefaultMaxFrameSize}
}

// WriteBatch encodes and writes one batch. Safe for concurrent use.
func (bw *BatchWriter) WriteBatch(b Batch) error {
	data, err := EncodeBatch(b)
	if err != nil {
		return fmt.Errorf("encode %s: %w", b, err)
	}
	if uint32(len(data)) > bw.maxSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(data), bw.maxSize)
	}

	bw.mu.Lock()
	defer bw.mu.Unlock()

	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(data)))
	if _, err := bw.w.Write(prefix[:]); err != nil {
		return fmt.Errorf("failed to write length prefix: %w", err)
	}
	if _, err := bw.w.Write(data); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	return nil
}

// BatchReader reads batches written by BatchWriter.
type BatchReader struct {
	r       io.Reader
	maxSize uint32
	prefix  [LengthPrefixSize]byte
}

// NewBatchReader creates a batch reader on r.
func NewBatchReader(r io.Reader) *BatchReader {
	return &BatchReader{r: r, maxSize: DefaultMaxFrameSize}
}

// ReadBatch reads the next batch. It returns io.EOF at a clean end of
// stream.
func (br *BatchReader) ReadBatch() (Batch, error) {
	if _, err := io.ReadFull(br.r, br.prefix[:]); err != nil {
		if err == io.EOF {
			return Batch{}, err
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Batch{}, ErrFrameTruncated
		}
		return Batch{}, fmt.Errorf("failed to read length prefix: %w", err)
	}

	length := binary.BigEndian.Uint32(br.prefix[:])
	if length == 0 {
		return Batch{}, ErrFrameEmpty
	}
	if length > br.maxSize {
		return Batch{}, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, br.maxSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(br.r, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
			return Batch{}, ErrFrameTruncated
		}
		return Batch{}, fmt.Errorf("failed to read payload: %w", err)
	}
	return DecodeBatch(payload)
}
