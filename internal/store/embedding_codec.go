package store

import (
	"encoding/binary"
	"math"
)

// EncodeEmbedding serializes a float32 vector as little-endian bytes, the
// same wire format vec_compat's decodeFloat32 expects for a BLOB column.
func EncodeEmbedding(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeEmbedding parses a little-endian float32 BLOB back into a vector.
// A length not a multiple of 4 is truncated to the nearest whole float32.
func DecodeEmbedding(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
