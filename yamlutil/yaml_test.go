package yamlutil

import (
	"flag"
	"testing"
)

func TestSetFlagsFromYaml(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	chunk := fs.String("chunk-size", "", "")
	out := fs.String("out", "default.bin", "")

	raw := []byte("CHUNK_SIZE: 4Ki\nOUT: built.bin\n")
	if err := SetFlagsFromYaml(fs, raw); err != nil {
		t.Fatalf("SetFlagsFromYaml: %v", err)
	}
	if *chunk != "4Ki" {
		t.Errorf("chunk-size = %q, want 4Ki", *chunk)
	}
	if *out != "built.bin" {
		t.Errorf("out = %q, want built.bin", *out)
	}
}

func TestSetFlagsFromYamlDoesNotOverrideExplicitFlags(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	chunk := fs.String("chunk-size", "", "")
	if err := fs.Parse([]string{"-chunk-size=explicit"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	raw := []byte("CHUNK_SIZE: fromyaml\n")
	if err := SetFlagsFromYaml(fs, raw); err != nil {
		t.Fatalf("SetFlagsFromYaml: %v", err)
	}
	if *chunk != "explicit" {
		t.Errorf("chunk-size = %q, want explicit (already set, must not be overridden)", *chunk)
	}
}
