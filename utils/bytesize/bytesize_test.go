package bytesize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"

	"github.com/ozontech/h2duplex/utils/bytesize"
)

func TestUnmarshal(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	var s bytesize.ByteSize
	a.NoError(s.UnmarshalText([]byte("4MiB")))
	a.Equal(4<<20, s.Int())
	a.NoError(s.UnmarshalText([]byte("65535")))
	a.Equal(65535, s.Int())
	a.Error(s.UnmarshalText([]byte("lots")))

	var conf struct {
		Window bytesize.ByteSize `yaml:"window"`
	}
	a.NoError(yaml.Unmarshal([]byte("window: 64 KiB\n"), &conf))
	a.Equal(bytesize.ByteSize(64<<10), conf.Window)
	a.Error(yaml.Unmarshal([]byte("window: [1, 2]\n"), &conf))

	a.Equal("4.0 MiB", bytesize.ByteSize(4<<20).String())
}
