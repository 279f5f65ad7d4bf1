// Package gzindex builds and uses a random-access index over a raw DEFLATE
// stream, so that decompression can resume at an arbitrary chunk boundary
// instead of always starting from the beginning. It is a Go-native
// reimplementation of the index/entry algorithm from Mark Adler's
// gzindex.c, riding on the flate package's codec adapter instead of zlib.
package gzindex

import (
	"errors"

	"github.com/coreos/gzindex/capnslog"
)

var log = capnslog.NewPackageLogger("github.com/coreos/gzindex", "gzindex")

// DefaultChunkSize is the number of uncompressed bytes between consecutive
// index entries when the caller does not specify one.
const DefaultChunkSize = 1024

// ErrDataCorrupt reports that the compressed stream could not be decoded:
// either the codec rejected it outright, or input ran out before a block
// that was promised more data (gzip never signals end of stream mid-block,
// so starvation there is a corruption, not a clean EOF).
var ErrDataCorrupt = errors.New("gzindex: compressed data is corrupt")

// ErrShortEntry reports that repositioning at an index entry ran out of
// input before the header or pre-roll bytes it needed could be read. This
// means the index and the file it was built from have gone out of sync.
var ErrShortEntry = errors.New("gzindex: short read locating entry point")

// Point is one random-access entry. It records enough state to reposition a
// fresh flate.Decompressor so it resumes exactly where the entry was taken,
// given the uncompressed bytes preceding it as a dictionary.
type Point struct {
	// Head is the bit offset, within the compressed stream, of the
	// 3-bit type header of the coded (fixed or dynamic Huffman) block
	// this entry sits inside, or -1 if the entry is not inside a coded
	// block's symbol stream (it sits exactly at a block boundary, or
	// inside a stored block's literal body).
	Head int64

	// Start is the bit offset at which decoding should resume: for a
	// coded entry, this is where the in-flight symbol's bits began (it
	// may produce output bytes before the entry point, which must be
	// decoded and discarded); for a boundary or stored entry, it is the
	// entry point itself.
	Start int64

	// Offset is the number of output bytes to discard after resuming
	// decode at Start (for a coded entry), or the number of bytes still
	// remaining in a stored block (when Head == -1 and Offset != 0), or
	// zero for an entry sitting exactly at a block boundary.
	Offset uint32

	// Last is true if the block this entry sits inside is the stream's
	// final block. It is needed to synthesize a correct stored-block
	// header when resuming inside one.
	Last bool
}

// Index is an ordered list of random-access entries, one per chunk of
// uncompressed output, starting with an entry at offset zero.
type Index []Point
