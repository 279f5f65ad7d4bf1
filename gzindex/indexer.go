package gzindex

import (
	"io"

	"github.com/coreos/gzindex/flate"
)

// largeStride is the normal refill size: generous enough that a dynamic
// block header (bounded by flate.MaxHeaderBytes) is always available in one
// read. smallStride is used right after a block boundary while the cursor
// sits at a non-byte-aligned bit position, matching gzindex.c's own refill
// discipline (see DESIGN.md).
const (
	largeStride = 16384
	smallStride = 1
)

// feeder buffers unconsumed compressed bytes for the decoder, growing the
// buffer only as far as needed for the decoder to make progress on its
// current step.
type feeder struct {
	r       io.Reader
	pending []byte
	eof     bool
	stride  int
}

func newFeeder(r io.Reader) *feeder {
	return &feeder{r: r, stride: largeStride}
}

// fill ensures at least n bytes are buffered, or that EOF has been reached.
// It reads in units of f.stride so that the stride heuristic governs how
// often (and how generously) the underlying file is touched.
func (f *feeder) fill(n int) error {
	for len(f.pending) < n && !f.eof {
		buf := make([]byte, f.stride)
		m, err := f.r.Read(buf)
		if m > 0 {
			f.pending = append(f.pending, buf[:m]...)
		}
		if err != nil {
			if err == io.EOF {
				f.eof = true
				break
			}
			return err
		}
		if m == 0 {
			f.eof = true
		}
	}
	return nil
}

func (f *feeder) consume(n int) {
	f.pending = f.pending[n:]
}

// BuildIndex streams a raw DEFLATE stream exactly once, starting at
// baseOffset in r, and returns an Index plus the full uncompressed output.
// An entry is recorded after every chunkSize bytes of output until the codec
// reports the end of the stream, including entries inside the final block.
func BuildIndex(r io.ReadSeeker, baseOffset int64, chunkSize int) (Index, []byte, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if _, err := r.Seek(baseOffset, io.SeekStart); err != nil {
		return nil, nil, err
	}

	dec := flate.NewDecompressor()
	idx := Index{{Head: -1, Start: 0, Offset: 0, Last: false}}
	in := newFeeder(r)

	var head int64
	for {
		produced := 0

		for produced < chunkSize {
			need := flate.MinSymbolLookahead
			if dec.AtBlockStart() {
				need = flate.MaxHeaderBytes
			}
			if err := in.fill(need); err != nil {
				return nil, nil, err
			}
			if len(in.pending) == 0 {
				// Input ran out mid-stream: a well-formed gzip
				// stream never ends silently inside a block.
				return nil, nil, ErrDataCorrupt
			}

			consumed, ev, err := dec.Decode(flate.ModeBlock, in.pending, chunkSize-produced)
			in.consume(consumed)
			if err != nil {
				return nil, nil, ErrDataCorrupt
			}
			produced += ev.Produced

			if ev.AtBoundary {
				if dec.BitPos()%8 != 0 {
					in.stride = smallStride
				} else {
					in.stride = largeStride
				}
				head = ev.HeaderBit
			}
			if ev.StreamEnd {
				log.Infof("built %d entries over %d uncompressed bytes", len(idx), len(dec.Bytes()))
				return idx, dec.Bytes(), nil
			}
		}

		here := dec.BitPos()
		mark := dec.Mark()
		var p Point
		if mark.Sentinel {
			p = Point{Head: -1, Start: here, Offset: uint32(mark.Offset), Last: mark.Last}
		} else {
			p = Point{Head: head, Start: here - mark.Back, Offset: uint32(mark.Offset), Last: mark.Last}
		}
		idx = append(idx, p)
		log.Debugf("entry %d: head=%d start=%d offset=%d last=%t", len(idx)-1, p.Head, p.Start, p.Offset, p.Last)
	}
}

// drainToEnd decodes the remainder of the stream with no boundary tracking
// and without recording index entries.
func drainToEnd(dec *flate.Decompressor, in *feeder) error {
	in.stride = largeStride
	for {
		if err := in.fill(flate.MinSymbolLookahead); err != nil {
			return err
		}
		if len(in.pending) == 0 {
			return ErrDataCorrupt
		}
		consumed, ev, err := dec.Decode(flate.ModeNoFlush, in.pending, 1<<20)
		in.consume(consumed)
		if err != nil {
			return ErrDataCorrupt
		}
		if ev.StreamEnd {
			return nil
		}
	}
}
