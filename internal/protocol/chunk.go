package protocol

import "fmt"

// SectionWidth is the edge length of a chunk section in blocks.
const SectionWidth = 16

// SectionVolume is the number of blocks in one chunk section.
const SectionVolume = SectionWidth * SectionWidth * SectionWidth

// ChunkSection is one 16x16x16 column slice of chunk data. Block ids are
// packed on the wire into a VarInt-prefixed array of 64-bit words at
// BitsPerBlock bits per entry, index order Y-Z-X.
type ChunkSection struct {
	BitsPerBlock uint8
	BlockIDs     []int32
}

func (s *ChunkSection) encode(w *Writer) {
	w.WriteUByte(s.BitsPerBlock)
	longs := packBlockIDs(s.BlockIDs, uint(s.BitsPerBlock))
	w.WriteVarInt(int32(len(longs)))
	for _, l := range longs {
		w.WriteULong(l)
	}
}

func (s *ChunkSection) decode(r *Reader) error {
	bits, err := r.ReadUByte()
	if err != nil {
		return err
	}
	count, err := r.ReadVarInt()
	if err != nil {
		return err
	}
	if count < 0 {
		return fmt.Errorf("negative section long count %d", count)
	}
	// Bound the allocation by what the frame can actually carry.
	if int(count) > r.Remaining()/8 {
		return ErrTruncated
	}
	longs := make([]uint64, count)
	for i := range longs {
		if longs[i], err = r.ReadULong(); err != nil {
			return err
		}
	}
	s.BitsPerBlock = bits
	s.BlockIDs = unpackBlockIDs(longs, uint(bits))
	return nil
}

// EncodedLen returns the serialized size of the section in bytes.
func (s *ChunkSection) EncodedLen() int {
	longs := longsFor(len(s.BlockIDs), uint(s.BitsPerBlock))
	return 1 + VarIntLen(int32(longs)) + 8*longs
}

func longsFor(entries int, bits uint) int {
	if bits == 0 {
		return 0
	}
	return (entries*int(bits) + 63) / 64
}

// packBlockIDs packs ids into 64-bit words, each entry occupying bits bits
// starting at the low end of the array, entries allowed to span word
// boundaries.
func packBlockIDs(ids []int32, bits uint) []uint64 {
	longs := make([]uint64, longsFor(len(ids), bits))
	mask := uint64(1)<<bits - 1
	for i, id := range ids {
		bitPos := uint(i) * bits
		word := bitPos / 64
		offset := bitPos % 64
		longs[word] |= (uint64(id) & mask) << offset
		if offset+bits > 64 {
			longs[word+1] |= (uint64(id) & mask) >> (64 - offset)
		}
	}
	return longs
}

func unpackBlockIDs(longs []uint64, bits uint) []int32 {
	if bits == 0 || len(longs) == 0 {
		return nil
	}
	entries := len(longs) * 64 / int(bits)
	if entries > SectionVolume {
		entries = SectionVolume
	}
	mask := uint64(1)<<bits - 1
	ids := make([]int32, entries)
	for i := range ids {
		bitPos := uint(i) * bits
		word := bitPos / 64
		offset := bitPos % 64
		v := longs[word] >> offset
		if offset+bits > 64 {
			v |= longs[word+1] << (64 - offset)
		}
		ids[i] = int32(v & mask)
	}
	return ids
}
