package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

// Duration is a time.Duration written as a Go duration string.
type Duration time.Duration

// UnmarshalText parses values such as "1h" and "250ms".
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText writes the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ByteSize is a byte count written as an integer or a humanized string.
type ByteSize int64

// UnmarshalText parses values such as "2147483648", "2GiB" and "500 MB".
func (b *ByteSize) UnmarshalText(text []byte) error {
	if n, err := strconv.ParseInt(string(text), 10, 64); err == nil {
		*b = ByteSize(n)
		return nil
	}
	n, err := humanize.ParseBytes(string(text))
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", text, err)
	}
	if n > 1<<62 {
		return fmt.Errorf("size %q is too large", text)
	}
	*b = ByteSize(n)
	return nil
}

// MarshalText writes the size in IEC units.
func (b ByteSize) MarshalText() ([]byte, error) {
	if b < 0 {
		return []byte(strconv.FormatInt(int64(b), 10)), nil
	}
	return []byte(humanize.IBytes(uint64(b))), nil
}

func (b ByteSize) String() string {
	text, _ := b.MarshalText()
	return string(text)
}
