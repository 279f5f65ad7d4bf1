// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flate is a codec adapter over raw DEFLATE (RFC 1951) decoding. It
// started life as a fork of the standard library's compress/flate decoder,
// generalized with the bit-level hooks a random-access index needs: priming
// residual bits, seeding a dictionary, stepping only to the next block or
// tree boundary, and marking how far behind the current position the
// in-flight code started.
package flate

import "strconv"

// MaxHist is the largest distance (in bytes) a DEFLATE length/distance pair
// may reference (RFC 1951 §3.2.1).
const MaxHist = 32768

// MaxHeaderBytes bounds the length, in bytes, of the longest possible
// dynamic Huffman block header (3 header bits, HLIT/HDIST/HCLEN counts, the
// code-length alphabet, and up to MaxLit+MaxDist repeated-length codes).
// Callers that need to guarantee a header parses without hitting NeedInput
// should have at least this many bytes buffered before calling Decode with
// AtBlockStart true.
const MaxHeaderBytes = 289

// MinSymbolLookahead bounds the number of input bytes a single Huffman
// symbol (code plus extra length/distance bits) can consume. Callers feeding
// input a byte at a time (see the indexer's refill-stride discipline) should
// keep at least this much buffered whenever the decoder is mid-block.
const MinSymbolLookahead = 8

const (
	// The next three numbers come from RFC 1951 §3.2.7.
	MaxLit   = 286
	MaxDist  = 32
	NumCodes = 19 // number of codes in the Huffman meta-code
)

// A CorruptInputError reports the presence of corrupt input at a given bit
// offset.
type CorruptInputError int64

func (e CorruptInputError) Error() string {
	return "flate: corrupt input before bit offset " + strconv.FormatInt(int64(e), 10)
}

// An InternalError reports an error in the flate code itself.
type InternalError string

func (e InternalError) Error() string { return "flate: internal error: " + string(e) }

// errNeedInput is returned internally by a step when it cannot make
// progress with the bytes it was given. It never escapes Decode: the caller
// sees it folded into Event.NeedInput instead.
type needInputError struct{}

func (needInputError) Error() string { return "flate: need more input" }

var errNeedInput error = needInputError{}

// Mode selects how far Decode advances before returning, mirroring the
// codec capability contract's step modes.
type Mode int

const (
	// ModeNoFlush decodes until the output budget is exhausted or the
	// stream ends.
	ModeNoFlush Mode = iota
	// ModeBlock decodes until the output budget is exhausted, the stream
	// ends, or the next block boundary is reached, whichever comes
	// first.
	ModeBlock
	// ModeTrees decodes only until the current block's header (and, for
	// a dynamic block, its Huffman tables) has been fully parsed.
	ModeTrees
)

// Event reports what happened during one Decode call.
type Event struct {
	Produced   int  // output bytes appended to Bytes() during this call
	AtBoundary bool // ModeBlock/ModeTrees: stopped at a block/tree boundary
	Last       bool // valid when AtBoundary: the block just entered is the final block
	StreamEnd  bool // the codec reported end of stream
	NeedInput  bool // the call ran out of in before finishing its mode

	// HeaderBit is the absolute bit position of the start of the 3-bit
	// type+final field of the block just entered. Valid when AtBoundary is
	// true for ModeBlock; it precedes BitPos() by exactly 3 bits and is the
	// value a caller must record to resume decoding at this block later.
	HeaderBit int64
}

// MarkResult is the unpacked equivalent of zlib's inflateMark: how far
// behind the current bit position the in-flight code started, and how many
// output bytes it has already produced.
type MarkResult struct {
	// Sentinel is true when there is no Huffman code in flight: either
	// the decoder sits exactly at a block boundary (Offset == 0), or it
	// is copying the literal body of a stored block (Offset == bytes
	// remaining in that block).
	Sentinel bool
	Offset   int   // bytes a coded match has already produced, or bytes left in a stored block
	Back     int64 // bits behind the current position the in-flight code started (meaningless if Sentinel)
	Last     bool  // true if the enclosing block is the final block
}

type stateKind int

const (
	stNewBlock stateKind = iota
	stDynamicTrees
	stHuffSym
	stCopy
	stStoredHeader
	stStoredCopy
)

// Decompressor is a raw (headerless) DEFLATE decoder. The zero value, after
// a call to Reset, is ready to use.
type Decompressor struct {
	state stateKind

	// Input bits, in the low bits of b.
	b  uint32
	nb uint

	// Cumulative bytes consumed from all `in` slices ever passed to
	// Decode, since the last Reset. BitPos derives the absolute bit
	// cursor from this and nb.
	roffset int64

	// The input for the Decode call currently in progress.
	in    []byte
	inPos int

	// Huffman decoders for literal/length and distance alphabets.
	h1, h2   HuffmanDecoder
	hl, hd   *HuffmanDecoder
	bits     [MaxLit + MaxDist]int
	codebits [NumCodes]int

	// dict is the read-only, caller-supplied sliding-window seed. out is
	// this session's produced bytes. A distance of d counts backward
	// from len(dict)+len(out) through the concatenation of the two.
	dict []byte
	out  []byte

	final       bool // the block currently being processed is the final block
	blockIsLast bool // snapshot of final, latched when a header completes

	// typeBoundary fires the instant the 3-bit type+final header has
	// been consumed (ModeBlock's stopping point; zlib's Z_BLOCK/bit 128).
	// treesBoundary fires once the block is fully ready to emit symbols:
	// immediately for a stored or fixed block, but only after the
	// Huffman tables are parsed for a dynamic block (ModeTrees's
	// stopping point; zlib's Z_TREES/bit 256). For fixed and stored
	// blocks the two coincide; for dynamic blocks they do not.
	typeBoundary  bool
	treesBoundary bool

	copyLen, copyDist int // in-flight length/distance match
	copyTotal         int // full length of the in-flight match
	storedRemaining   int // bytes left in the stored block being copied

	symStartBit int64 // bit position where the in-flight symbol began

	// headerStartBit is the bit position of the 3-bit type+final field of
	// the block currently (or most recently) entered, captured before
	// nextBlock consumes those bits.
	headerStartBit int64

	stepBudget int // output bytes the current step call may still append

	err error // sticky fatal error (including errStreamEnd for a clean end of stream)
}

// NewDecompressor returns a Decompressor ready to decode a raw DEFLATE
// stream from the beginning.
func NewDecompressor() *Decompressor {
	f := &Decompressor{}
	f.Reset()
	return f
}

// Reset clears all decoding state, as if the Decompressor had just been
// constructed. This also drops any dictionary set by SetDictionary; call
// SetDictionary again after Reset if one is needed.
func (f *Decompressor) Reset() {
	out := f.out[:0]
	*f = Decompressor{state: stNewBlock, out: out}
}

// SetDictionary preloads up to the last 32 KiB of dict as sliding-window
// history. It must be called before the first Decode after Reset.
func (f *Decompressor) SetDictionary(dict []byte) {
	if len(dict) > MaxHist {
		dict = dict[len(dict)-MaxHist:]
	}
	f.dict = dict
}

// Prime injects the low bits bits of value as pending input, ahead of
// whatever Decode is given next. bits must be between 0 and 8. Prime(-1, 0)
// discards any currently buffered bits instead, realigning to the next
// input byte.
func (f *Decompressor) Prime(bits int, value uint32) error {
	if bits < 0 {
		f.b, f.nb = 0, 0
		return nil
	}
	if bits > 8 {
		return InternalError("prime: bits out of range")
	}
	mask := uint32(1)<<uint(bits) - 1
	f.b |= (value & mask) << f.nb
	f.nb += uint(bits)
	return nil
}

// BitPos returns the absolute bit offset of the decoder's cursor in the
// compressed stream: the number of bits consumed out of the bytes handed to
// Decode so far, less whatever is still sitting unused in the bit buffer.
func (f *Decompressor) BitPos() int64 {
	return f.roffset*8 - int64(f.nb)
}

// Bytes returns the output produced by this decoding session so far. The
// slice is owned by the Decompressor and is invalidated by Reset.
func (f *Decompressor) Bytes() []byte { return f.out }

// AtBlockStart reports whether the decoder still has a block header to parse:
// it is positioned where a new block's 3-bit header begins, or just past a
// dynamic block's 3-bit header with its Huffman tables not yet read. Callers
// performing their own input buffering use this to decide how much
// lookahead to guarantee before the next Decode call.
func (f *Decompressor) AtBlockStart() bool {
	return f.state == stNewBlock || f.state == stDynamicTrees
}

// LastBlock reports whether the block most recently entered carries the
// final-block flag.
func (f *Decompressor) LastBlock() bool { return f.blockIsLast }

// Mark reports how the current position relates to the in-flight Huffman
// code or stored-block copy, per the codec capability contract (spec.md
// §4.1's "mark").
func (f *Decompressor) Mark() MarkResult {
	switch f.state {
	case stNewBlock:
		return MarkResult{Sentinel: true, Last: f.blockIsLast}
	case stDynamicTrees:
		return MarkResult{Sentinel: true, Last: f.blockIsLast}
	case stStoredHeader, stStoredCopy:
		return MarkResult{Sentinel: true, Offset: f.storedRemaining, Last: f.blockIsLast}
	case stCopy:
		return MarkResult{Offset: f.copyTotal - f.copyLen, Back: f.BitPos() - f.symStartBit, Last: f.blockIsLast}
	default: // stHuffSym: between symbols, so the next code starts right here
		return MarkResult{Offset: 0, Back: 0, Last: f.blockIsLast}
	}
}

// Decode advances the decoder according to mode, consuming bytes from in
// and appending up to outBudget new bytes to Bytes(). It returns how many
// bytes of in were consumed.
func (f *Decompressor) Decode(mode Mode, in []byte, outBudget int) (consumed int, ev Event, err error) {
	if f.err != nil {
		if f.err == errStreamEnd {
			return 0, Event{StreamEnd: true}, nil
		}
		return 0, Event{}, f.err
	}

	f.in = in
	f.inPos = 0
	start := len(f.out)

	for steps := 0; ; steps++ {
		if mode != ModeTrees && len(f.out)-start >= outBudget {
			break
		}
		f.stepBudget = outBudget - (len(f.out) - start)
		if f.stepBudget <= 0 {
			f.stepBudget = 1
		}
		f.typeBoundary = false
		f.treesBoundary = false

		inPos, roffset, b, nb := f.inPos, f.roffset, f.b, f.nb
		stepErr := f.runStep()
		if stepErr == errNeedInput {
			// A step after the first ran short on what was left of in:
			// undo its partial reads so it is retried whole once the
			// caller has refilled.
			if steps > 0 {
				f.inPos, f.roffset, f.b, f.nb = inPos, roffset, b, nb
			}
			return f.inPos, Event{Produced: len(f.out) - start, NeedInput: true}, nil
		}
		if stepErr != nil {
			if stepErr == errStreamEnd {
				f.err = errStreamEnd
				return f.inPos, Event{Produced: len(f.out) - start, StreamEnd: true}, nil
			}
			f.err = stepErr
			return f.inPos, Event{}, stepErr
		}
		switch mode {
		case ModeBlock:
			if f.typeBoundary {
				return f.inPos, Event{Produced: len(f.out) - start, AtBoundary: true, Last: f.blockIsLast, HeaderBit: f.headerStartBit}, nil
			}
		case ModeTrees:
			if f.treesBoundary {
				return f.inPos, Event{Produced: len(f.out) - start, AtBoundary: true, Last: f.blockIsLast}, nil
			}
		}
	}
	return f.inPos, Event{Produced: len(f.out) - start}, nil
}

func (f *Decompressor) runStep() error {
	switch f.state {
	case stNewBlock:
		return f.nextBlock()
	case stDynamicTrees:
		return f.dynamicTreesStep()
	case stHuffSym:
		return f.huffmanSymbol()
	case stCopy:
		return f.copyStep()
	case stStoredHeader:
		return f.dataBlockHeader()
	case stStoredCopy:
		return f.storedCopyStep()
	}
	return InternalError("unknown decoder state")
}

// errStreamEnd is the sentinel stored in f.err once the final block has
// been fully decoded. It is distinct from io.EOF: the decoder never reads
// past the logical end of the DEFLATE stream, so there is no "read" to
// report EOF from.
var errStreamEnd = InternalError("stream end")

func (f *Decompressor) moreBits() error {
	if f.inPos >= len(f.in) {
		return errNeedInput
	}
	c := f.in[f.inPos]
	f.inPos++
	f.roffset++
	f.b |= uint32(c) << f.nb
	f.nb += 8
	return nil
}

// readRaw copies exactly len(buf) bytes from the unconsumed input into buf,
// byte-aligned (the bit buffer must already be empty). It is all-or-nothing:
// on insufficient input it consumes nothing and returns errNeedInput.
func (f *Decompressor) readRaw(buf []byte) error {
	if len(f.in)-f.inPos < len(buf) {
		return errNeedInput
	}
	copy(buf, f.in[f.inPos:])
	f.inPos += len(buf)
	f.roffset += int64(len(buf))
	return nil
}

func (f *Decompressor) nextBlock() error {
	for f.nb < 3 {
		if err := f.moreBits(); err != nil {
			return err
		}
	}
	f.headerStartBit = f.BitPos()
	f.final = f.b&1 == 1
	f.b >>= 1
	typ := f.b & 3
	f.b >>= 2
	f.nb -= 3

	f.blockIsLast = f.final
	f.typeBoundary = true

	switch typ {
	case 0:
		f.state = stStoredHeader
		return nil
	case 1:
		f.hl = &fixedHuffmanDecoder
		f.hd = nil
		f.enterCodedBlock()
		return nil
	case 2:
		f.state = stDynamicTrees
		return nil
	default:
		return CorruptInputError(f.BitPos())
	}
}

// dynamicTreesStep parses a dynamic block's Huffman tables. It runs as its
// own step (rather than inline in nextBlock) so that a ModeBlock caller sees
// the type boundary before the tables are parsed, matching the codec
// capability contract's distinction between a block-type boundary and a
// tree boundary.
func (f *Decompressor) dynamicTreesStep() error {
	if err := f.readHuffman(); err != nil {
		return err
	}
	f.hl = &f.h1
	f.hd = &f.h2
	f.enterCodedBlock()
	return nil
}

func (f *Decompressor) enterCodedBlock() {
	f.treesBoundary = true
	f.symStartBit = f.BitPos()
	f.state = stHuffSym
}

// dataBlockHeader reads the 4-byte stored-block length/~length pair. It is
// also the resume point used to re-enter a synthesized stored header (see
// the resumer), so it tolerates being invoked with f.state already
// stStoredHeader.
func (f *Decompressor) dataBlockHeader() error {
	f.b, f.nb = 0, 0 // discard to the next byte boundary

	var buf [4]byte
	if err := f.readRaw(buf[:]); err != nil {
		return err
	}
	length := int(buf[0]) | int(buf[1])<<8
	nlength := int(buf[2]) | int(buf[3])<<8
	if uint16(nlength) != uint16(^length) {
		return CorruptInputError(f.BitPos())
	}
	f.treesBoundary = true

	if length == 0 {
		// A zero-length stored block is a sync marker: no data follows.
		if f.final {
			return errStreamEnd
		}
		f.state = stNewBlock
		return nil
	}
	f.storedRemaining = length
	f.state = stStoredCopy
	return nil
}

func (f *Decompressor) storedCopyStep() error {
	n := f.storedRemaining
	if n > f.stepBudget {
		n = f.stepBudget
	}
	if avail := len(f.in) - f.inPos; avail < n {
		n = avail
	}
	if n == 0 {
		return errNeedInput
	}
	f.out = append(f.out, f.in[f.inPos:f.inPos+n]...)
	f.inPos += n
	f.roffset += int64(n)
	f.storedRemaining -= n
	if f.storedRemaining == 0 {
		if f.final {
			return errStreamEnd
		}
		f.state = stNewBlock
	}
	return nil
}

// RFC 1951 §3.2.7: compression with dynamic Huffman codes.
var codeOrder = [...]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

func (f *Decompressor) readHuffman() error {
	for f.nb < 5+5+4 {
		if err := f.moreBits(); err != nil {
			return err
		}
	}
	nlit := int(f.b&0x1F) + 257
	if nlit > MaxLit {
		return CorruptInputError(f.BitPos())
	}
	f.b >>= 5
	ndist := int(f.b&0x1F) + 1
	f.b >>= 5
	nclen := int(f.b&0xF) + 4
	f.b >>= 4
	f.nb -= 5 + 5 + 4

	for i := 0; i < nclen; i++ {
		for f.nb < 3 {
			if err := f.moreBits(); err != nil {
				return err
			}
		}
		f.codebits[codeOrder[i]] = int(f.b & 0x7)
		f.b >>= 3
		f.nb -= 3
	}
	for i := nclen; i < len(codeOrder); i++ {
		f.codebits[codeOrder[i]] = 0
	}
	if !f.h1.init(f.codebits[0:]) {
		return CorruptInputError(f.BitPos())
	}

	for i, n := 0, nlit+ndist; i < n; {
		x, err := f.huffSym(&f.h1)
		if err != nil {
			return err
		}
		if x < 16 {
			f.bits[i] = x
			i++
			continue
		}
		var rep int
		var nb uint
		var b int
		switch x {
		default:
			return InternalError("unexpected length code")
		case 16:
			rep, nb = 3, 2
			if i == 0 {
				return CorruptInputError(f.BitPos())
			}
			b = f.bits[i-1]
		case 17:
			rep, nb = 3, 3
		case 18:
			rep, nb = 11, 7
		}
		for f.nb < nb {
			if err := f.moreBits(); err != nil {
				return err
			}
		}
		rep += int(f.b & uint32(1<<nb-1))
		f.b >>= nb
		f.nb -= nb
		if i+rep > n {
			return CorruptInputError(f.BitPos())
		}
		for j := 0; j < rep; j++ {
			f.bits[i] = b
			i++
		}
	}

	if !f.h1.init(f.bits[0:nlit]) || !f.h2.init(f.bits[nlit:nlit+ndist]) {
		return CorruptInputError(f.BitPos())
	}
	return nil
}

// huffSym decodes a single symbol from the Huffman code h.
func (f *Decompressor) huffSym(h *HuffmanDecoder) (int, error) {
	n := uint(h.Min)
	for {
		for f.nb < n {
			if err := f.moreBits(); err != nil {
				return 0, err
			}
		}
		chunk := h.Chunks[f.b&(huffmanNumChunks-1)]
		n = uint(chunk & huffmanCountMask)
		if n > huffmanChunkBits {
			chunk = h.Links[chunk>>huffmanValueShift][(f.b>>huffmanChunkBits)&h.LinkMask]
			n = uint(chunk & huffmanCountMask)
			if n == 0 {
				return 0, CorruptInputError(f.BitPos())
			}
		}
		if n <= f.nb {
			f.b >>= n
			f.nb -= n
			return int(chunk >> huffmanValueShift), nil
		}
	}
}

// huffmanSymbol decodes exactly one literal/length (and, for a match, its
// distance) symbol, advancing to a copy step or back to a new block.
func (f *Decompressor) huffmanSymbol() error {
	f.symStartBit = f.BitPos()
	v, err := f.huffSym(f.hl)
	if err != nil {
		return err
	}

	if v < 256 {
		f.out = append(f.out, byte(v))
		return nil
	}
	if v == 256 {
		if f.final {
			return errStreamEnd
		}
		f.state = stNewBlock
		return nil
	}

	length, err := f.matchLength(v)
	if err != nil {
		return err
	}
	dist, err := f.matchDistance()
	if err != nil {
		return err
	}
	if dist > len(f.dict)+len(f.out) {
		return CorruptInputError(f.BitPos())
	}
	f.copyLen, f.copyDist = length, dist
	f.copyTotal = length
	f.state = stCopy
	return nil
}

func (f *Decompressor) matchLength(v int) (int, error) {
	var n uint
	var length int
	switch {
	case v < 265:
		length, n = v-(257-3), 0
	case v < 269:
		length, n = v*2-(265*2-11), 1
	case v < 273:
		length, n = v*4-(269*4-19), 2
	case v < 277:
		length, n = v*8-(273*8-35), 3
	case v < 281:
		length, n = v*16-(277*16-67), 4
	case v < 285:
		length, n = v*32-(281*32-131), 5
	default:
		length, n = 258, 0
	}
	if n > 0 {
		for f.nb < n {
			if err := f.moreBits(); err != nil {
				return 0, err
			}
		}
		length += int(f.b & uint32(1<<n-1))
		f.b >>= n
		f.nb -= n
	}
	return length, nil
}

func (f *Decompressor) matchDistance() (int, error) {
	var dist int
	if f.hd == nil {
		for f.nb < 5 {
			if err := f.moreBits(); err != nil {
				return 0, err
			}
		}
		dist = int(reverseByte[(f.b&0x1F)<<3])
		f.b >>= 5
		f.nb -= 5
	} else {
		d, err := f.huffSym(f.hd)
		if err != nil {
			return 0, err
		}
		dist = d
	}

	switch {
	case dist < 4:
		dist++
	case dist >= 30:
		return 0, CorruptInputError(f.BitPos())
	default:
		nb := uint(dist-2) >> 1
		extra := (dist & 1) << nb
		for f.nb < nb {
			if err := f.moreBits(); err != nil {
				return 0, err
			}
		}
		extra |= int(f.b & uint32(1<<nb-1))
		f.b >>= nb
		f.nb -= nb
		dist = 1<<(nb+1) + 1 + extra
	}
	return dist, nil
}

// copyStep appends up to stepBudget bytes of the in-flight length/distance
// match to out. Matches never consume input.
func (f *Decompressor) copyStep() error {
	n := f.copyLen
	if n > f.stepBudget {
		n = f.stepBudget
	}
	if f.copyDist > len(f.dict)+len(f.out) {
		return InternalError("bad history distance")
	}
	f.copyMatch(n)
	f.copyLen -= n
	if f.copyLen == 0 {
		f.state = stHuffSym
	}
	return nil
}

// copyMatch appends n bytes from copyDist bytes behind the current output
// position, one at a time, since DEFLATE matches may overlap themselves
// (distance < length).
func (f *Decompressor) copyMatch(n int) {
	for i := 0; i < n; i++ {
		idx := len(f.dict) + len(f.out) - f.copyDist
		var b byte
		if idx < len(f.dict) {
			b = f.dict[idx]
		} else {
			b = f.out[idx-len(f.dict)]
		}
		f.out = append(f.out, b)
	}
}
