package digest

import (
	"encoding/binary"
	"math"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func BoolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func writeU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func writeI64(h hashWriter, tmp *[8]byte, v int64) {
	writeU64(h, tmp, uint64(v))
}

func writeF64(h hashWriter, tmp *[8]byte, v float64) {
	writeU64(h, tmp, math.Float64bits(v))
}

// writeString is length-prefixed so adjacent fields cannot collide.
func writeString(h hashWriter, tmp *[8]byte, s string) {
	writeU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}
