package flagutil

import (
	"errors"
	"net"
	"strconv"
	"strings"
)

// IPv4Flag parses a string into a net.IP after asserting that it
// is an IPv4 address. This type implements the flag.Value interface.
type IPv4Flag struct {
	val net.IP
}

func (f *IPv4Flag) IP() net.IP {
	return f.val
}

func (f *IPv4Flag) Set(v string) error {
	ip := net.ParseIP(v)
	if ip == nil || ip.To4() == nil {
		return errors.New("not an IPv4 address")
	}
	f.val = ip
	return nil
}

func (f *IPv4Flag) String() string {
	return f.val.String()
}

// byteSizeSuffixes maps the binary-unit suffixes ByteSizeFlag accepts to
// their multiplier. Longer suffixes are checked first so "Ki" isn't
// swallowed by a prefix match against "K".
var byteSizeSuffixes = []struct {
	suffix string
	mult   int64
}{
	{"TiB", 1 << 40}, {"GiB", 1 << 30}, {"MiB", 1 << 20}, {"KiB", 1 << 10},
	{"Ti", 1 << 40}, {"Gi", 1 << 30}, {"Mi", 1 << 20}, {"Ki", 1 << 10},
	{"T", 1 << 40}, {"G", 1 << 30}, {"M", 1 << 20}, {"K", 1 << 10},
}

// ByteSizeFlag parses a plain byte count or a size with a binary-unit
// suffix ("64Ki", "1Mi", "512") into an int64. It implements the
// flag.Value interface, generalized from IPv4Flag's pattern for a
// domain-specific scalar type.
type ByteSizeFlag struct {
	val int64
	set bool
}

// Int64 returns the parsed size in bytes.
func (f *ByteSizeFlag) Int64() int64 {
	return f.val
}

func (f *ByteSizeFlag) Set(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return errors.New("empty byte size")
	}
	mult := int64(1)
	num := v
	for _, s := range byteSizeSuffixes {
		if strings.HasSuffix(v, s.suffix) {
			mult = s.mult
			num = strings.TrimSuffix(v, s.suffix)
			break
		}
	}
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return errors.New("invalid byte size: " + v)
	}
	if n < 0 {
		return errors.New("byte size must not be negative")
	}
	f.val = n * mult
	f.set = true
	return nil
}

func (f *ByteSizeFlag) String() string {
	if !f.set {
		return ""
	}
	return strconv.FormatInt(f.val, 10)
}
