package gzindex

import (
	"bytes"
	"testing"
)

func TestIndexWriteToReadIndexRoundTrip(t *testing.T) {
	idx := Index{
		{Head: -1, Start: 0, Offset: 0, Last: false},
		{Head: 17, Start: 4096, Offset: 12, Last: false},
		{Head: -1, Start: 9000, Offset: 33, Last: true},
	}

	var buf bytes.Buffer
	n, err := idx.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if n != int64(buf.Len()) {
		t.Fatalf("WriteTo returned %d, buffer has %d bytes", n, buf.Len())
	}

	got, err := ReadIndex(&buf)
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	if len(got) != len(idx) {
		t.Fatalf("got %d points, want %d", len(got), len(idx))
	}
	for i := range idx {
		if got[i] != idx[i] {
			t.Errorf("point %d: got %+v, want %+v", i, got[i], idx[i])
		}
	}
}

func TestReadIndexRejectsBadMagic(t *testing.T) {
	buf := bytes.NewBufferString("nope")
	if _, err := ReadIndex(buf); err != ErrBadIndexFile {
		t.Fatalf("err = %v, want ErrBadIndexFile", err)
	}
}

func TestReadIndexRejectsUnknownVersion(t *testing.T) {
	var buf bytes.Buffer
	idx := Index{{Head: -1, Start: 0, Offset: 0, Last: false}}
	if _, err := idx.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	encoded := buf.Bytes()
	// Version is the 4 bytes right after the magic.
	corrupted := append([]byte(nil), encoded...)
	corrupted[4] = 0xff
	if _, err := ReadIndex(bytes.NewReader(corrupted)); err != ErrBadIndexFile {
		t.Fatalf("err = %v, want ErrBadIndexFile", err)
	}
}

func TestIndexWriteToEmpty(t *testing.T) {
	var buf bytes.Buffer
	idx := Index{}
	if _, err := idx.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	got, err := ReadIndex(&buf)
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d points, want 0", len(got))
	}
}
