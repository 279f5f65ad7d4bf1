// Command gzindex builds, verifies, and reads from a random-access index
// over a gzip file, mirroring the self-test harness in Mark Adler's
// gzindex.c as a small multi-subcommand CLI.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/coreos/gzindex/capnslog"
	"github.com/coreos/gzindex/flagutil"
	"github.com/coreos/gzindex/gzheader"
	"github.com/coreos/gzindex/gzindex"
	"github.com/coreos/gzindex/yamlutil"

	"golang.org/x/crypto/blake2b"
)

var log = capnslog.NewPackageLogger("github.com/coreos/gzindex", "cmd")

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	capnslog.SetFormatter(capnslog.NewStringFormatter(os.Stderr))
	maybeMirrorToJournal()

	var err error
	switch os.Args[1] {
	case "build":
		err = runBuild(os.Args[2:])
	case "verify":
		err = runVerify(os.Args[2:])
	case "extract":
		err = runExtract(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: gzindex <build|verify|extract> [flags]")
}

// maybeMirrorToJournal switches the default StringFormatter for a
// JournaldFormatter when stderr isn't a terminal and the journal is
// reachable, so a systemd-managed run gets structured log entries instead
// of a flat stream nobody reads.
func maybeMirrorToJournal() {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return
	}
	if fi.Mode()&os.ModeCharDevice != 0 {
		return
	}
	if os.Getenv("NOTIFY_SOCKET") == "" {
		return
	}
	capnslog.SetFormatter(capnslog.NewJournaldFormatter("gzindex"))
}

func setLogLevel(s string) {
	if s == "" {
		return
	}
	lvl, err := capnslog.ParseLevel(s)
	if err != nil {
		log.Warningf("invalid -log-level %q: %v", s, err)
		return
	}
	capnslog.MustRepoLogger("github.com/coreos/gzindex").SetGlobalLogLevel(lvl)
}

// openMember seeks past a gzip member's header and returns the file, the
// raw-DEFLATE base offset, and the parsed header for display.
func openMember(path string) (*os.File, int64, gzheader.Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, gzheader.Header{}, err
	}
	base, hdr, err := gzheader.Locate(f)
	if err != nil {
		f.Close()
		return nil, 0, gzheader.Header{}, err
	}
	return f, base, hdr, nil
}

func runBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	var chunk flagutil.ByteSizeFlag
	fs.Var(&chunk, "chunk", "uncompressed bytes between index entries")
	out := fs.String("out", "", "write the built index to this file")
	cfgPath := fs.String("config", "", "YAML file of flag defaults")
	logLevel := fs.String("log-level", "INFO", "capnslog log level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := applyConfig(fs, *cfgPath); err != nil {
		return err
	}
	setLogLevel(*logLevel)
	if fs.NArg() < 1 {
		return fmt.Errorf("build: missing <file.gz>")
	}
	path := fs.Arg(0)

	chunkSize := int(chunk.Int64())
	if chunkSize == 0 {
		chunkSize = gzindex.DefaultChunkSize
	}

	f, base, hdr, err := openMember(path)
	if err != nil {
		return err
	}
	defer f.Close()
	log.Infof("indexing %s (member %q, chunk=%d)", path, hdr.Name, chunkSize)

	idx, history, err := gzindex.BuildIndex(f, base, chunkSize)
	if err != nil {
		return err
	}
	log.Infof("built %d entries over %d uncompressed bytes", len(idx), len(history))

	if *out != "" {
		of, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer of.Close()
		if _, err := idx.WriteTo(of); err != nil {
			return err
		}
		log.Infof("wrote index to %s", *out)
	}
	return nil
}

func runVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	var chunk flagutil.ByteSizeFlag
	fs.Var(&chunk, "chunk", "uncompressed bytes between index entries")
	indexPath := fs.String("index", "", "load a previously built index instead of rebuilding it")
	logLevel := fs.String("log-level", "INFO", "capnslog log level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setLogLevel(*logLevel)
	if fs.NArg() < 1 {
		return fmt.Errorf("verify: missing <file.gz>")
	}
	path := fs.Arg(0)

	chunkSize := int(chunk.Int64())
	if chunkSize == 0 {
		chunkSize = gzindex.DefaultChunkSize
	}

	f, base, _, err := openMember(path)
	if err != nil {
		return err
	}
	defer f.Close()

	idx, history, err := gzindex.BuildIndex(f, base, chunkSize)
	if err != nil {
		return err
	}

	if *indexPath != "" {
		loaded, err := loadIndex(*indexPath)
		if err != nil {
			return err
		}
		idx = loaded
		log.Infof("verifying against loaded index (%d entries)", len(idx))
	}

	// Walk entries in reverse, extracting one chunk's worth from each and
	// comparing it against the retained history, matching gzindex.c's own
	// reverse self-test.
	for n := len(idx) - 1; n >= 0; n-- {
		offset := int64(n) * int64(chunkSize)
		length := int64(chunkSize)
		if offset+length > int64(len(history)) {
			length = int64(len(history)) - offset
		}
		if length <= 0 {
			continue
		}
		got, err := gzindex.Extract(f, base, idx, history, chunkSize, offset, length)
		if err != nil {
			return fmt.Errorf("entry %d: %w", n, err)
		}
		want := history[offset : offset+length]
		if !bytes.Equal(got, want) {
			return fmt.Errorf("entry %d: mismatch at offset %d, length %d", n, offset, length)
		}
		log.Debugf("entry %d ok (offset=%d length=%d)", n, offset, length)
	}

	sum := blake2b.Sum256(history)
	fmt.Printf("ok: %d entries verified, blake2b-256=%x\n", len(idx), sum)
	return nil
}

func runExtract(args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	var chunk flagutil.ByteSizeFlag
	fs.Var(&chunk, "chunk", "uncompressed bytes between index entries")
	indexPath := fs.String("index", "", "index file built by 'gzindex build -out'")
	offset := fs.Int64("offset", 0, "uncompressed byte offset to start at")
	length := fs.Int64("length", 0, "number of uncompressed bytes to extract")
	logLevel := fs.String("log-level", "INFO", "capnslog log level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setLogLevel(*logLevel)
	if fs.NArg() < 1 {
		return fmt.Errorf("extract: missing <file.gz>")
	}
	if *indexPath == "" {
		return fmt.Errorf("extract: -index is required")
	}
	path := fs.Arg(0)

	chunkSize := int(chunk.Int64())
	if chunkSize == 0 {
		chunkSize = gzindex.DefaultChunkSize
	}

	idx, err := loadIndex(*indexPath)
	if err != nil {
		return err
	}

	f, base, _, err := openMember(path)
	if err != nil {
		return err
	}
	defer f.Close()

	// The on-disk index never carries the uncompressed history (see
	// DESIGN.md), so a cold extract rebuilds it by decoding the whole
	// stream once: simpler than a second, bounded decode path, at the
	// cost of CPU rather than correctness.
	history, err := coldHistory(f, base, chunkSize)
	if err != nil {
		return err
	}

	out, err := gzindex.Extract(f, base, idx, history, chunkSize, *offset, *length)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

// coldHistory rebuilds the uncompressed history for a file whose index was
// loaded from disk rather than just produced by BuildIndex in this process.
func coldHistory(f *os.File, base int64, chunkSize int) ([]byte, error) {
	_, history, err := gzindex.BuildIndex(f, base, chunkSize)
	if err != nil {
		return nil, err
	}
	return history, nil
}

func loadIndex(path string) (gzindex.Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return gzindex.ReadIndex(f)
}

func applyConfig(fs *flag.FlagSet, path string) error {
	if path == "" {
		return nil
	}
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	return yamlutil.SetFlagsFromYaml(fs, raw)
}
