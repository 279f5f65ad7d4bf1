package flagutil

import "testing"

func TestIPv4FlagSetInvalidArgument(t *testing.T) {
	tests := []string{
		"",
		"foo",
		"::",
		"127.0.0.1:4328",
	}

	for i, tt := range tests {
		var f IPv4Flag
		if err := f.Set(tt); err == nil {
			t.Errorf("case %d: expected non-nil error", i)
		}
	}
}

func TestIPv4FlagSetValidArgument(t *testing.T) {
	tests := []string{
		"127.0.0.1",
		"0.0.0.0",
	}

	for i, tt := range tests {
		var f IPv4Flag
		if err := f.Set(tt); err != nil {
			t.Errorf("case %d: err=%v", i, err)
		}
	}
}

func TestByteSizeFlagSetValidArgument(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"1024", 1024},
		{"64Ki", 64 * 1024},
		{"1Mi", 1 << 20},
		{"2Gi", 2 << 30},
		{"1KiB", 1 << 10},
	}
	for _, tt := range tests {
		var f ByteSizeFlag
		if err := f.Set(tt.in); err != nil {
			t.Errorf("Set(%q): %v", tt.in, err)
			continue
		}
		if f.Int64() != tt.want {
			t.Errorf("Set(%q) = %d, want %d", tt.in, f.Int64(), tt.want)
		}
	}
}

func TestByteSizeFlagSetInvalidArgument(t *testing.T) {
	tests := []string{"", "abc", "-5", "5Xi"}
	for _, tt := range tests {
		var f ByteSizeFlag
		if err := f.Set(tt); err == nil {
			t.Errorf("Set(%q): expected non-nil error", tt)
		}
	}
}
