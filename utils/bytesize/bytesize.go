// Package bytesize is a byte count that reads and prints in human units
// ("4MiB", "64 KB") in config files and command line flags.
package bytesize

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

type ByteSize uint64

func (s ByteSize) Int() int {
	if uint64(s) > math.MaxInt {
		return math.MaxInt
	}
	return int(s)
}

func (s ByteSize) String() string { return humanize.IBytes(uint64(s)) }

func Parse(s string) (ByteSize, error) {
	v, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("parse byte size %q: %w", s, err)
	}
	return ByteSize(v), nil
}

func (s *ByteSize) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s ByteSize) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: byte size must be a scalar", value.Line)
	}
	return s.UnmarshalText([]byte(value.Value))
}
