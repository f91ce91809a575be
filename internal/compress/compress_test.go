package compress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenericRoundTrip(t *testing.T) {
	for _, kind := range []Kind{Zstd, Deflate} {
		t.Run(kind.String(), func(t *testing.T) {
			o := Options{Kind: kind, Width: 32, Height: 16}
			enc, err := NewEncoder(o)
			require.NoError(t, err)
			defer enc.Close()
			dec, err := NewDecoder(o)
			require.NoError(t, err)
			defer dec.Close()

			// A mostly-zero diff, as produced by XOR of similar frames.
			frame := make([]byte, o.FrameSize())
			frame[10], frame[700], frame[1535] = 0x18, 0x80, 0x01

			for i := 0; i < 3; i++ {
				pkts, err := enc.Encode(frame)
				require.NoError(t, err)
				require.Len(t, pkts, 1)
				assert.Less(t, len(pkts[0]), len(frame)/4, "zero-heavy diff should compress")

				out, err := dec.Decode(pkts[0])
				require.NoError(t, err)
				assert.Equal(t, frame, out)
				frame[i*100]++
			}
		})
	}
}

func TestDecodeRejectsWrongSize(t *testing.T) {
	for _, kind := range []Kind{Zstd, Deflate} {
		t.Run(kind.String(), func(t *testing.T) {
			small := Options{Kind: kind, Width: 4, Height: 4}
			big := Options{Kind: kind, Width: 8, Height: 4}

			enc, err := NewEncoder(big)
			require.NoError(t, err)
			pkts, err := enc.Encode(make([]byte, big.FrameSize()))
			require.NoError(t, err)

			dec, err := NewDecoder(small)
			require.NoError(t, err)
			_, err = dec.Decode(pkts[0])
			assert.Error(t, err)
		})
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, kind := range []Kind{Zstd, Deflate} {
		dec, err := NewDecoder(Options{Kind: kind, Width: 4, Height: 4})
		require.NoError(t, err)
		_, err = dec.Decode([]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x11})
		assert.Error(t, err, kind.String())
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"zstd", Zstd},
		{"", Zstd},
		{"Deflate", Deflate},
		{"vp8", VP8},
	}
	for _, tc := range tests {
		got, err := ParseKind(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
	_, err := ParseKind("h264")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestFrameSize(t *testing.T) {
	assert.Equal(t, 4*4*3, Options{Kind: Zstd, Width: 4, Height: 4}.FrameSize())
	assert.Equal(t, 5*3+2*3*2, Options{Kind: VP8, Width: 5, Height: 3}.FrameSize())
	assert.True(t, Zstd.Differential())
	assert.False(t, VP8.Differential())
}
