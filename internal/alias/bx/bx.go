// Package bx holds the little-endian helpers the array codec is built on.
package bx

import (
	"encoding/binary"
	"math"
)

var LE = binary.LittleEndian

// --- LE: read ---
func U32(b []byte) uint32 { return LE.Uint32(b) }
func U64(b []byte) uint64 { return LE.Uint64(b) }

// --- LE: write ---
func PutU32(b []byte, v uint32) { LE.PutUint32(b, v) }
func PutU64(b []byte, v uint64) { LE.PutUint64(b, v) }

// --- LE: append (grows the buffer) ---
func AppendU32(b []byte, v uint32) []byte { return LE.AppendUint32(b, v) }
func AppendU64(b []byte, v uint64) []byte { return LE.AppendUint64(b, v) }

// AppendF64 appends the IEEE 754 bits of f.
func AppendF64(b []byte, f float64) []byte { return AppendU64(b, math.Float64bits(f)) }

// AppendStr appends a u32 length prefix and the bytes of s.
func AppendStr(b []byte, s string) []byte {
	b = AppendU32(b, uint32(len(s)))
	return append(b, s...)
}

// --- LE: At (offset) ---
func U32At(b []byte, off int) uint32  { return U32(b[off:]) }
func U64At(b []byte, off int) uint64  { return U64(b[off:]) }
func F64At(b []byte, off int) float64 { return math.Float64frombits(U64At(b, off)) }
