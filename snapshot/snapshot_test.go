package snapshot

import (
	"bytes"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame() *Frame {
	f := &Frame{Name: "rings", Kind: 4, Tick: 1234}
	for i := 0; i < 400; i++ {
		a := 2 * math.Pi * float64(i%40) / 40
		f.Particles = append(f.Particles, Particle{X: math.Cos(a), Y: math.Sin(a), Z: float64(i / 40)})
	}
	f.Particles[7].Flags = 1 << 10
	for s := 0; s < 10; s++ {
		seg := Segment{Circulation: 0.5 * float64(s+1)}
		for k := 0; k < 40; k++ {
			seg.Indices = append(seg.Indices, uint32(40*s+k))
		}
		f.Segments = append(f.Segments, seg)
	}
	return f
}

func TestSaveLoadCodecs(t *testing.T) {
	sizes := map[Codec]int{}
	for _, c := range []Codec{CodecNone, CodecLZ4, CodecZstd} {
		t.Run(c.String(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Save(&buf, testFrame(), c))
			sizes[c] = buf.Len()

			got, err := Load(&buf)
			require.NoError(t, err)
			assert.Equal(t, testFrame(), got)
			assert.Equal(t, 0, buf.Len(), "reader consumed exactly one snapshot")
		})
	}
	assert.Less(t, sizes[CodecZstd], sizes[CodecNone])
	assert.Less(t, sizes[CodecLZ4], sizes[CodecNone])
}

func TestLoadRejectsGarbage(t *testing.T) {
	_, err := Load(bytes.NewReader([]byte("NOPE0000")))
	assert.ErrorIs(t, err, ErrBadMagic)

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, testFrame(), CodecNone))
	raw := buf.Bytes()

	bumped := bytes.Clone(raw)
	bumped[4] = 9
	_, err = Load(bytes.NewReader(bumped))
	assert.ErrorIs(t, err, ErrVersion)

	_, err = Load(bytes.NewReader(raw[:len(raw)-10]))
	assert.ErrorIs(t, err, ErrCorrupt)
}

// header builds a snapshot header and block header with the given sizes.
func header(c Codec, size, csize uint32) []byte {
	b := make([]byte, 8+blockHeaderSize)
	copy(b, magic)
	binary.LittleEndian.PutUint16(b[4:], version)
	b[6] = byte(c)
	binary.LittleEndian.PutUint32(b[8:], size)
	binary.LittleEndian.PutUint32(b[12:], csize)
	return b
}

func TestLoadRejectsOversizedBlocks(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"raw block past limit", header(CodecNone, MaxBlockSize+1, 0)},
		{"raw block short file", append(header(CodecNone, math.MaxUint32>>3, 0), 1, 2, 3)},
		{"compressed size not below size", append(header(CodecZstd, 4, 4), 1, 2, 3, 4)},
		{"compressed block short file", append(header(CodecZstd, MaxBlockSize, 1<<29), 1, 2, 3)},
		{"lz4 expansion", append(header(CodecLZ4, 1<<20, 4), 1, 2, 3, 4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(bytes.NewReader(tt.data))
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.vfil")
	require.NoError(t, SaveFile(path, testFrame(), CodecZstd))

	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "rings", got.Name)
	assert.Len(t, got.Particles, 400)
	assert.Len(t, got.Segments, 10)
}

func TestParseCodec(t *testing.T) {
	tests := []struct {
		in   string
		want Codec
		err  bool
	}{
		{"", CodecNone, false},
		{"none", CodecNone, false},
		{"LZ4", CodecLZ4, false},
		{" zstd ", CodecZstd, false},
		{"gzip", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseCodec(tt.in)
		if tt.err {
			assert.ErrorIs(t, err, ErrUnknownCodec)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
