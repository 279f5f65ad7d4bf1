package gzindex

import (
	"encoding/binary"
	"errors"
	"io"
)

var indexMagic = [4]byte{'G', 'Z', 'X', '1'}

const indexVersion = 1

// ErrBadIndexFile reports that a byte stream handed to ReadIndex is not a
// gzindex-encoded Index, or was produced by an incompatible version.
var ErrBadIndexFile = errors.New("gzindex: not a valid index file")

// WriteTo encodes idx in the gzindex binary wire format (see SPEC_FULL.md):
// a 4-byte magic, a version, a count, then one fixed-width record per point.
// The uncompressed history is deliberately not part of this format; it is
// cheaper to reproduce on demand than to store.
func (idx Index) WriteTo(w io.Writer) (int64, error) {
	var written int64

	if err := binary.Write(w, binary.LittleEndian, indexMagic); err != nil {
		return written, err
	}
	written += int64(len(indexMagic))

	if err := binary.Write(w, binary.LittleEndian, uint32(indexVersion)); err != nil {
		return written, err
	}
	written += 4

	if err := binary.Write(w, binary.LittleEndian, uint32(len(idx))); err != nil {
		return written, err
	}
	written += 4

	for _, p := range idx {
		rec := encodedPoint{
			Head:   p.Head,
			Start:  p.Start,
			Offset: p.Offset,
			Last:   boolToByte(p.Last),
		}
		if err := binary.Write(w, binary.LittleEndian, rec); err != nil {
			return written, err
		}
		written += int64(binary.Size(rec))
	}
	return written, nil
}

// ReadIndex decodes an Index previously written by Index.WriteTo.
func ReadIndex(r io.Reader) (Index, error) {
	var magic [4]byte
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, err
	}
	if magic != indexMagic {
		return nil, ErrBadIndexFile
	}

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version != indexVersion {
		return nil, ErrBadIndexFile
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}

	idx := make(Index, count)
	for i := range idx {
		var rec encodedPoint
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return nil, err
		}
		idx[i] = Point{
			Head:   rec.Head,
			Start:  rec.Start,
			Offset: rec.Offset,
			Last:   rec.Last != 0,
		}
	}
	return idx, nil
}

// encodedPoint is the fixed-width on-disk form of a Point.
type encodedPoint struct {
	Head   int64
	Start  int64
	Offset uint32
	Last   uint8
}

func boolToByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
