package gzindex

import (
	"io"

	"github.com/coreos/gzindex/flate"
)

// prepareEntry positions a fresh *flate.Decompressor so that, combined with
// reading forward from r's current position, decoding continues exactly as
// if it had run from the start of the stream. It mirrors gzindex.c's
// inflate_entry.
func prepareEntry(r io.ReadSeeker, baseOffset int64, idx Index, entry int, history []byte, chunkSize int) (*flate.Decompressor, error) {
	point := idx[entry]
	log.Debugf("resuming at entry %d: head=%d start=%d offset=%d last=%t", entry, point.Head, point.Start, point.Offset, point.Last)

	edge := int64(chunkSize) * int64(entry)
	if point.Head != -1 {
		edge -= int64(point.Offset)
	}
	dictLen := edge
	if dictLen > flate.MaxHist {
		dictLen = flate.MaxHist
	}
	if dictLen < 0 {
		dictLen = 0
	}

	dec := flate.NewDecompressor()
	dec.SetDictionary(history[edge-dictLen : edge])

	switch {
	case point.Head == -1 && point.Offset == 0:
		// Entry sits exactly at the start of a deflate block.
		if err := seekBit(r, baseOffset, point.Start); err != nil {
			return nil, err
		}
		if err := primeFromByte(r, dec, point.Start); err != nil {
			return nil, err
		}

	case point.Head == -1:
		// Entry sits inside a stored block: synthesize a stored-block
		// header that tells the decoder exactly how many bytes remain,
		// then resume reading real file bytes right after it.
		last := byte(0)
		if point.Last {
			last = 1
		}
		off := point.Offset
		hdr := []byte{last, byte(off), byte(off >> 8), byte(^off), byte(^off >> 8)}
		if _, _, err := dec.Decode(flate.ModeTrees, hdr, 0); err != nil {
			return nil, ErrDataCorrupt
		}
		if err := seekBit(r, baseOffset, point.Start); err != nil {
			return nil, err
		}

	default:
		// Entry sits inside a coded (Huffman) block's symbol stream:
		// replay the block's header from Head so the decoder has the
		// right Huffman tables, then reposition to Start and discard
		// whatever pre-roll bytes the in-flight code produces before
		// reaching the entry point.
		if err := seekBit(r, baseOffset, point.Head); err != nil {
			return nil, err
		}
		buf := make([]byte, flate.MaxHeaderBytes)
		n, err := io.ReadFull(r, buf)
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, err
		}
		if n == 0 {
			return nil, ErrShortEntry
		}
		if err := primeBits(dec, point.Head, buf[0]); err != nil {
			return nil, err
		}
		_, ev, err := dec.Decode(flate.ModeTrees, buf[1:n], 0)
		if err != nil {
			return nil, ErrDataCorrupt
		}
		if !ev.AtBoundary {
			return nil, ErrShortEntry
		}
		log.Debugf("entry %d: replayed header at bit %d, trees boundary at %d", entry, point.Head, dec.BitPos())
		if err := dec.Prime(-1, 0); err != nil {
			return nil, err
		}

		if err := seekBit(r, baseOffset, point.Start); err != nil {
			return nil, err
		}
		if err := primeFromByte(r, dec, point.Start); err != nil {
			return nil, err
		}

		if point.Offset > 0 {
			pre := make([]byte, 6)
			n, err := io.ReadFull(r, pre)
			if err != nil && err != io.ErrUnexpectedEOF {
				return nil, err
			}
			pre = pre[:n]
			consumed, ev, err := dec.Decode(flate.ModeNoFlush, pre, int(point.Offset))
			if err != nil {
				return nil, ErrDataCorrupt
			}
			if ev.Produced != int(point.Offset) {
				return nil, ErrDataCorrupt
			}
			// Move the file pointer back to the first byte the
			// decoder did not actually consume.
			if _, err := r.Seek(-int64(len(pre)-consumed), io.SeekCurrent); err != nil {
				return nil, err
			}
		}
	}

	return dec, nil
}

func seekBit(r io.ReadSeeker, baseOffset, bitPos int64) error {
	_, err := r.Seek(baseOffset+bitPos>>3, io.SeekStart)
	return err
}

// primeFromByte reads one real byte from r (the partial byte straddling
// bitPos) and primes the decoder with whatever bits of it are still ahead.
func primeFromByte(r io.Reader, dec *flate.Decompressor, bitPos int64) error {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return ErrShortEntry
	}
	return primeBits(dec, bitPos, b[0])
}

func primeBits(dec *flate.Decompressor, bitPos int64, b byte) error {
	shift := uint(bitPos & 7)
	return dec.Prime(8-int(shift), uint32(b)>>shift)
}

// Extract decodes length bytes of uncompressed output starting at offset,
// repositioning at the nearest index entry at or before offset instead of
// decompressing from the beginning of the stream.
func Extract(r io.ReadSeeker, baseOffset int64, idx Index, history []byte, chunkSize int, offset, length int64) ([]byte, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if offset < 0 || length < 0 {
		return nil, ErrDataCorrupt
	}

	entry := int(offset / int64(chunkSize))
	if entry >= len(idx) {
		entry = len(idx) - 1
	}

	dec, err := prepareEntry(r, baseOffset, idx, entry, history, chunkSize)
	if err != nil {
		return nil, err
	}

	skip := int64(len(dec.Bytes())) + offset - int64(entry)*int64(chunkSize)
	want := skip + length

	in := newFeeder(r)
	for int64(len(dec.Bytes())) < want {
		need := flate.MinSymbolLookahead
		if dec.AtBlockStart() {
			need = flate.MaxHeaderBytes
		}
		if err := in.fill(need); err != nil {
			return nil, err
		}
		if len(in.pending) == 0 {
			break
		}
		budget := int(want - int64(len(dec.Bytes())))
		consumed, ev, err := dec.Decode(flate.ModeNoFlush, in.pending, budget)
		in.consume(consumed)
		if err != nil {
			return nil, ErrDataCorrupt
		}
		if ev.StreamEnd {
			break
		}
	}

	out := dec.Bytes()
	if int64(len(out)) < skip {
		return nil, io.ErrUnexpectedEOF
	}
	end := int64(len(out))
	if end > want {
		end = want
	}
	result := make([]byte, end-skip)
	copy(result, out[skip:end])
	return result, nil
}
