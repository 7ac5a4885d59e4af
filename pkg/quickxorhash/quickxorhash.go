// Package quickxorhash implements the QuickXorHash algorithm OneDrive
// reports for file content.
//
// Each input byte is XORed into a 160-bit circular buffer at an insertion
// point that advances 11 bits per byte. The digest mixes in the total length.
//
// Reference: https://learn.microsoft.com/en-us/onedrive/developer/code-snippets/quickxorhash
package quickxorhash

import (
	"encoding/binary"
	"hash"
)

const (
	// Size is the length, in bytes, of a QuickXorHash digest.
	Size = 20

	// BlockSize is the preferred input block size for the hash, in bytes.
	BlockSize = 64

	widthInBits = 160
	shift       = 11
	cellBits    = 64
	// The third cell only holds the remaining 32 bits of the buffer.
	lastCellBits = widthInBits - 2*cellBits
	cells        = 3
)

type digest struct {
	cell   [cells]uint64
	pos    int // insertion point, in bits
	length uint64
}

// New returns a new hash.Hash computing the QuickXorHash checksum.
func New() hash.Hash {
	return &digest{}
}

func widthOf(i int) int {
	if i == cells-1 {
		return lastCellBits
	}

	return cellBits
}

// Write never fails.
func (d *digest) Write(p []byte) (int, error) {
	for _, b := range p {
		i := d.pos / cellBits
		off := d.pos % cellBits
		w := widthOf(i)

		d.cell[i] ^= uint64(b) << off

		// A byte that crosses the end of a cell wraps into the next one.
		if off > w-8 {
			d.cell[(i+1)%cells] ^= uint64(b) >> (w - off)
		}

		d.pos = (d.pos + shift) % widthInBits
	}

	d.length += uint64(len(p))

	return len(p), nil
}

// Sum appends the digest to b without changing the hash state.
func (d *digest) Sum(b []byte) []byte {
	var out [Size]byte

	binary.LittleEndian.PutUint64(out[0:8], d.cell[0])
	binary.LittleEndian.PutUint64(out[8:16], d.cell[1])
	binary.LittleEndian.PutUint32(out[16:Size], uint32(d.cell[2])) //nolint:gosec // only the low 32 bits are part of the buffer

	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], d.length)

	for i, v := range n {
		out[Size-len(n)+i] ^= v
	}

	return append(b, out[:]...)
}

func (d *digest) Reset() { *d = digest{} }

func (d *digest) Size() int { return Size }

func (d *digest) BlockSize() int { return BlockSize }
