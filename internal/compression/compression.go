// Package compression compresses float32 grid layers held in memory.
package compression

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Algorithm defines compression types
type Algorithm uint8

const (
	None   Algorithm = 0
	Snappy Algorithm = 1
)

// ParseAlgorithm maps a config value ("none", "snappy") to an Algorithm
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return None, nil
	case "snappy":
		return Snappy, nil
	default:
		return None, fmt.Errorf("unsupported compression algorithm: %s", name)
	}
}

func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case Snappy:
		return "snappy"
	default:
		return fmt.Sprintf("algorithm(%d)", uint8(a))
	}
}

// Compressor interface for compression algorithms
type Compressor interface {
	// Compress compresses data
	Compress(data []byte) ([]byte, error)

	// Decompress decompresses data
	Decompress(data []byte) ([]byte, error)

	// Algorithm returns the compression algorithm type
	Algorithm() Algorithm
}

// GetCompressor returns a compressor for the given algorithm
func GetCompressor(algo Algorithm) (Compressor, error) {
	switch algo {
	case None:
		return &NoneCompressor{}, nil
	case Snappy:
		return NewSnappyCompressor(), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %d", algo)
	}
}

// NoneCompressor is a no-op compressor
type NoneCompressor struct{}

func (n *NoneCompressor) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (n *NoneCompressor) Decompress(data []byte) ([]byte, error) {
	return data, nil
}

func (n *NoneCompressor) Algorithm() Algorithm {
	return None
}

// EncodeFloat32 serialises values little-endian, 4 bytes per value
func EncodeFloat32(values []float32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// DecodeFloat32 reverses EncodeFloat32 into dst, which must hold len(data)/4 values
func DecodeFloat32(data []byte, dst []float32) error {
	if len(data) != 4*len(dst) {
		return fmt.Errorf("layer size mismatch: %d bytes for %d values", len(data), len(dst))
	}
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return nil
}

// CompressLayer encodes and compresses a float32 layer
func CompressLayer(c Compressor, values []float32) ([]byte, error) {
	return c.Compress(EncodeFloat32(values))
}

// DecompressLayer decompresses a layer produced by CompressLayer into dst
func DecompressLayer(c Compressor, data []byte, dst []float32) error {
	raw, err := c.Decompress(data)
	if err != nil {
		return err
	}
	return DecodeFloat32(raw, dst)
}
