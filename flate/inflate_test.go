package flate

import (
	"bytes"
	stdflate "compress/flate"
	"io"
	"testing"
)

// rawDeflate compresses data with the standard library into a raw DEFLATE
// stream, giving these tests real fixed/dynamic/stored blocks to decode
// without hand-assembling bit patterns.
func rawDeflate(t *testing.T, data []byte, level int) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := stdflate.NewWriter(&buf, level)
	if err != nil {
		t.Fatalf("stdflate.NewWriter: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func decodeAll(t *testing.T, compressed []byte) []byte {
	t.Helper()
	dec := NewDecompressor()
	in := compressed
	for {
		consumed, ev, err := dec.Decode(ModeNoFlush, in, 1<<20)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		in = in[consumed:]
		if ev.StreamEnd {
			break
		}
		if ev.NeedInput && len(in) == 0 {
			t.Fatalf("ran out of input before stream end")
		}
	}
	return dec.Bytes()
}

func TestDecodeFixedHuffmanBlock(t *testing.T) {
	data := []byte("abcabcabcabcabcabcabcabcabcabcabcabc")
	compressed := rawDeflate(t, data, stdflate.BestCompression)
	got := decodeAll(t, compressed)
	if !bytes.Equal(got, data) {
		t.Fatalf("got %q, want %q", got, data)
	}
}

func TestDecodeDynamicHuffmanBlock(t *testing.T) {
	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 200)
	compressed := rawDeflate(t, data, stdflate.BestCompression)
	got := decodeAll(t, compressed)
	if !bytes.Equal(got, data) {
		t.Fatalf("mismatch: got %d bytes, want %d", len(got), len(data))
	}
}

func TestDecodeStoredBlock(t *testing.T) {
	data := []byte("stored block payload, no compression applied here")
	compressed := rawDeflate(t, data, stdflate.NoCompression)
	got := decodeAll(t, compressed)
	if !bytes.Equal(got, data) {
		t.Fatalf("got %q, want %q", got, data)
	}
}

func TestDecodeEmptyStream(t *testing.T) {
	compressed := rawDeflate(t, nil, stdflate.DefaultCompression)
	got := decodeAll(t, compressed)
	if len(got) != 0 {
		t.Fatalf("got %d bytes, want 0", len(got))
	}
}

func TestModeBlockStopsAtBoundaries(t *testing.T) {
	data := bytes.Repeat([]byte("boundary test data, repeated many times. "), 300)
	compressed := rawDeflate(t, data, stdflate.BestCompression)

	dec := NewDecompressor()
	in := compressed
	var boundaries int
	for {
		need := MinSymbolLookahead
		if dec.AtBlockStart() {
			need = MaxHeaderBytes
		}
		_ = need
		consumed, ev, err := dec.Decode(ModeBlock, in, 1<<20)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		in = in[consumed:]
		if ev.AtBoundary {
			boundaries++
			if !dec.AtBlockStart() && !ev.Last {
				// after a fixed/stored boundary, decoder may already be in
				// a coded block: that's fine, only dynamic blocks pause
				// mid-header.
			}
		}
		if ev.StreamEnd {
			break
		}
		if len(in) == 0 && ev.NeedInput {
			t.Fatalf("ran out of input before stream end")
		}
	}
	if boundaries == 0 {
		t.Fatalf("expected at least one block boundary")
	}
	if !bytes.Equal(dec.Bytes(), data) {
		t.Fatalf("ModeBlock decode mismatch: got %d bytes, want %d", len(dec.Bytes()), len(data))
	}
}

func TestModeTreesStopsAfterHeaderParsing(t *testing.T) {
	data := bytes.Repeat([]byte("tree boundary test data, repeated. "), 300)
	compressed := rawDeflate(t, data, stdflate.BestCompression)

	dec := NewDecompressor()
	in := compressed
	sawTreesBoundary := false
	for {
		consumed, ev, err := dec.Decode(ModeTrees, in, 1<<20)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		in = in[consumed:]
		if ev.AtBoundary {
			sawTreesBoundary = true
			if dec.AtBlockStart() {
				t.Fatalf("ModeTrees boundary should leave the decoder mid-block, not at a new block start")
			}
		}
		if ev.StreamEnd {
			break
		}
		if len(in) == 0 && ev.NeedInput {
			t.Fatalf("ran out of input before stream end")
		}
	}
	if !sawTreesBoundary {
		t.Fatalf("expected at least one trees boundary")
	}
	if !bytes.Equal(dec.Bytes(), data) {
		t.Fatalf("ModeTrees decode mismatch")
	}
}

func TestSetDictionaryAllowsBackReferenceIntoSeed(t *testing.T) {
	dict := []byte("shared history that the match should reach back into. ")
	data := []byte("shared history that the match should reach back into. ")
	var buf bytes.Buffer
	w, err := stdflate.NewWriterDict(&buf, stdflate.BestCompression, dict)
	if err != nil {
		t.Fatalf("stdflate.NewWriterDict: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	compressed := buf.Bytes()

	dec := NewDecompressor()
	dec.SetDictionary(dict)
	// The writer was seeded with the same dictionary, so the stream encodes
	// data as a match reaching back into dict instead of as literals; the
	// output comes out right only if the seed is used.
	in := compressed
	for {
		consumed, ev, err := dec.Decode(ModeNoFlush, in, 1<<20)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		in = in[consumed:]
		if ev.StreamEnd {
			break
		}
	}
	if !bytes.Equal(dec.Bytes(), data) {
		t.Fatalf("decode with dictionary set mismatch")
	}
}

func TestPrimeReproducesByteAlignedResume(t *testing.T) {
	data := bytes.Repeat([]byte("resume test payload. "), 500)
	compressed := rawDeflate(t, data, stdflate.BestCompression)

	whole := decodeAll(t, compressed)
	if !bytes.Equal(whole, data) {
		t.Fatalf("baseline decode mismatch")
	}

	// Prime(8, b) with the first byte reproduces a plain decode of the
	// remaining bytes, exercising the same priming path the resumer uses
	// for a boundary entry at Offset() == 0.
	dec := NewDecompressor()
	if err := dec.Prime(8, uint32(compressed[0])); err != nil {
		t.Fatalf("Prime: %v", err)
	}
	in := compressed[1:]
	for {
		consumed, ev, err := dec.Decode(ModeNoFlush, in, 1<<20)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		in = in[consumed:]
		if ev.StreamEnd {
			break
		}
		if len(in) == 0 && ev.NeedInput {
			t.Fatalf("ran out of input before stream end")
		}
	}
	if !bytes.Equal(dec.Bytes(), data) {
		t.Fatalf("primed decode mismatch: got %d bytes, want %d", len(dec.Bytes()), len(data))
	}
}

func TestMarkAtBlockStartIsSentinel(t *testing.T) {
	data := bytes.Repeat([]byte("mark test. "), 50)
	compressed := rawDeflate(t, data, stdflate.BestCompression)

	dec := NewDecompressor()
	m := dec.Mark()
	if !m.Sentinel {
		t.Fatalf("expected sentinel mark before any input is decoded")
	}
	_, _, err := dec.Decode(ModeBlock, compressed, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	m = dec.Mark()
	if !m.Sentinel {
		t.Fatalf("expected sentinel mark after a zero-budget Decode, which leaves the decoder at the block start")
	}
}

func TestBytesReturnsNilSliceAfterReset(t *testing.T) {
	dec := NewDecompressor()
	dec.Reset()
	if len(dec.Bytes()) != 0 {
		t.Fatalf("expected no output immediately after Reset")
	}
}

func TestCorruptInputIsReported(t *testing.T) {
	junk := bytes.Repeat([]byte{0xff}, 64)
	dec := NewDecompressor()
	_, _, err := dec.Decode(ModeNoFlush, junk, 1<<20)
	if err == nil {
		t.Fatalf("expected an error decoding random junk")
	}
	if _, ok := err.(CorruptInputError); !ok {
		if _, ok := err.(InternalError); !ok {
			t.Fatalf("got %T, want CorruptInputError or InternalError", err)
		}
	}
}

func TestDecodeLargeRepeatedInput(t *testing.T) {
	data := bytes.Repeat([]byte("A long, highly repetitive payload to exercise back-references. "), 2000)
	compressed := rawDeflate(t, data, stdflate.BestCompression)
	got := decodeAll(t, compressed)
	if !bytes.Equal(got, data) {
		t.Fatalf("large repeated input mismatch: got %d bytes, want %d", len(got), len(data))
	}
}

func TestDecodeMatchesStdlibReader(t *testing.T) {
	data := bytes.Repeat([]byte("cross-check against compress/flate. "), 800)
	compressed := rawDeflate(t, data, stdflate.BestCompression)

	want, err := io.ReadAll(stdflate.NewReader(bytes.NewReader(compressed)))
	if err != nil {
		t.Fatalf("stdlib decode: %v", err)
	}
	got := decodeAll(t, compressed)
	if !bytes.Equal(got, want) {
		t.Fatalf("decoder disagrees with standard library")
	}
}
