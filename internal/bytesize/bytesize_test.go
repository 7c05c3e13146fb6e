package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    ByteSize
		wantErr bool
	}{
		{"65536", 65536, false},
		{"1024B", 1024, false},
		{"64Ki", 64 * KiB, false},
		{"64KiB", 64 * KiB, false},
		{"16mib", 16 * MiB, false},
		{"1 Gi", GiB, false},
		{"128KB", 128 * KB, false},
		{"1.5Mi", ByteSize(1.5 * float64(MiB)), false},
		{"  4K  ", 4 * KB, false},
		{"", 0, true},
		{"Ki", 0, true},
		{"12XB", 0, true},
		{"-1", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMarshalTextRoundTrip(t *testing.T) {
	for _, v := range []ByteSize{0, 1000, 64 * KiB, 16 * MiB, 2 * GiB, 1536} {
		text, err := v.MarshalText()
		require.NoError(t, err)

		var back ByteSize
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, v, back, "value %d rendered as %q", v, text)
	}
	assert.Equal(t, "64Ki", (64 * KiB).String())
	assert.Equal(t, "1000", ByteSize(1000).String())
}

func TestInt(t *testing.T) {
	assert.Equal(t, 4096, ByteSize(4096).Int())
	assert.Greater(t, ByteSize(^uint64(0)).Int(), 0)
}
