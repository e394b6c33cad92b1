package compression

import (
	"fmt"

	"github.com/golang/snappy"
)

// SnappyCompressor implements Compressor using the Snappy block format.
// Grid layers with large constant or NaN regions compress well with it.
type SnappyCompressor struct{}

// NewSnappyCompressor creates a new Snappy compressor
func NewSnappyCompressor() *SnappyCompressor {
	return &SnappyCompressor{}
}

// Compress compresses data using Snappy
func (s *SnappyCompressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	return snappy.Encode(make([]byte, snappy.MaxEncodedLen(len(data))), data), nil
}

// Decompress decompresses Snappy compressed data
func (s *SnappyCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	n, err := snappy.DecodedLen(data)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress failed: %w", err)
	}
	decompressed, err := snappy.Decode(make([]byte, n), data)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress failed: %w", err)
	}
	return decompressed, nil
}

// Algorithm returns Snappy
func (s *SnappyCompressor) Algorithm() Algorithm {
	return Snappy
}
