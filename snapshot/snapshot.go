// Package snapshot writes and reads sequential binary dumps of particle
// systems.
//
// A file is a fixed header followed by one block:
//
//	magic "VFIL" | version uint16 | codec uint8 | reserved uint8
//	uncompressed size uint32 | compressed size uint32 | body
//
// The body holds the system name, kind and tick, then every particle
// (position and flags) and every segment (circulation, flags, indices), all
// little endian.
package snapshot

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

const (
	magic   = "VFIL"
	version = 1
)

var (
	// ErrBadMagic is returned when the input is not a snapshot.
	ErrBadMagic = errors.New("not a snapshot file")
	// ErrVersion is returned for snapshots written by a newer format.
	ErrVersion = errors.New("unsupported snapshot version")
	// ErrCorrupt is returned for truncated or inconsistent data.
	ErrCorrupt = errors.New("corrupt snapshot")
)

// Particle is one stored particle record.
type Particle struct {
	X     float64 `csv:"x"`
	Y     float64 `csv:"y"`
	Z     float64 `csv:"z"`
	Flags uint32  `csv:"flags"`
}

// Segment is one stored connectivity record.
type Segment struct {
	Circulation float64
	Flags       uint32
	Indices     []uint32
}

// Frame is the content of one snapshot.
type Frame struct {
	Name      string
	Kind      uint8
	Tick      uint64
	Particles []Particle
	Segments  []Segment
}

// Save encodes f to w with codec c.
func Save(w io.Writer, f *Frame, c Codec) error {
	body, err := encodeBody(f)
	if err != nil {
		return err
	}
	block, err := compressBlock(body, c)
	if err != nil {
		return fmt.Errorf("compress snapshot: %w", err)
	}

	var hdr [8]byte
	copy(hdr[:4], magic)
	binary.LittleEndian.PutUint16(hdr[4:], version)
	hdr[6] = byte(c)
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write snapshot header: %w", err)
	}
	if _, err := w.Write(block); err != nil {
		return fmt.Errorf("write snapshot body: %w", err)
	}
	return nil
}

// Load decodes one snapshot from r.
func Load(r io.Reader) (*Frame, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("read snapshot header: %w", err)
	}
	if string(hdr[:4]) != magic {
		return nil, ErrBadMagic
	}
	if v := binary.LittleEndian.Uint16(hdr[4:]); v != version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, v)
	}
	c := Codec(hdr[6])
	if c > CodecZstd {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, hdr[6])
	}

	var bh [blockHeaderSize]byte
	if _, err := io.ReadFull(r, bh[:]); err != nil {
		return nil, fmt.Errorf("read block header: %w", err)
	}
	if err := checkBlockHeader(bh); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(bh[4:])
	if n == 0 {
		n = binary.LittleEndian.Uint32(bh[0:])
	}
	// the payload grows with the bytes actually present, so a short file
	// fails before a large claimed size is allocated
	payload, err := io.ReadAll(io.LimitReader(r, int64(n)))
	if err != nil {
		return nil, fmt.Errorf("read block: %w: %w", ErrCorrupt, err)
	}
	if len(payload) != int(n) {
		return nil, fmt.Errorf("%w: block holds %d of %d bytes", ErrCorrupt, len(payload), n)
	}
	body, err := decompressBlock(bh, payload, c)
	if err != nil {
		return nil, err
	}
	return decodeBody(body)
}

// SaveFile writes f to path, replacing any existing file.
func SaveFile(path string, f *Frame, c Codec) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	bw := bufio.NewWriter(file)
	if err := Save(bw, f, c); err != nil {
		file.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("flush snapshot: %w", err)
	}
	return file.Close()
}

// LoadFile reads the snapshot at path.
func LoadFile(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer file.Close()
	return Load(bufio.NewReader(file))
}

func encodeBody(f *Frame) ([]byte, error) {
	if len(f.Name) > math.MaxUint16 {
		return nil, fmt.Errorf("snapshot name too long: %d bytes", len(f.Name))
	}
	var buf bytes.Buffer
	le := binary.LittleEndian
	var scratch [8]byte

	put16 := func(v uint16) { le.PutUint16(scratch[:2], v); buf.Write(scratch[:2]) }
	put32 := func(v uint32) { le.PutUint32(scratch[:4], v); buf.Write(scratch[:4]) }
	put64 := func(v uint64) { le.PutUint64(scratch[:8], v); buf.Write(scratch[:8]) }
	putF := func(v float64) { put64(math.Float64bits(v)) }

	put16(uint16(len(f.Name)))
	buf.WriteString(f.Name)
	buf.WriteByte(f.Kind)
	put64(f.Tick)

	put32(uint32(len(f.Particles)))
	for _, p := range f.Particles {
		putF(p.X)
		putF(p.Y)
		putF(p.Z)
		put32(p.Flags)
	}

	put32(uint32(len(f.Segments)))
	for _, s := range f.Segments {
		putF(s.Circulation)
		put32(s.Flags)
		put32(uint32(len(s.Indices)))
		for _, i := range s.Indices {
			put32(i)
		}
	}
	return buf.Bytes(), nil
}

// reader decodes little endian values and remembers the first short read.
type reader struct {
	b   []byte
	err error
}

func (r *reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.b) < n {
		r.err = fmt.Errorf("%w: unexpected end of body", ErrCorrupt)
		return nil
	}
	out := r.b[:n]
	r.b = r.b[n:]
	return out
}

func (r *reader) u8() uint8 {
	if b := r.next(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.next(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.next(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if b := r.next(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *reader) f64() float64 { return math.Float64frombits(r.u64()) }

// count reads a record count and checks it against the remaining bytes.
func (r *reader) count(minSize int) int {
	n := int(r.u32())
	if r.err == nil && n*minSize > len(r.b) {
		r.err = fmt.Errorf("%w: %d records do not fit in %d bytes", ErrCorrupt, n, len(r.b))
		return 0
	}
	return n
}

func decodeBody(b []byte) (*Frame, error) {
	r := &reader{b: b}
	f := &Frame{}
	f.Name = string(r.next(int(r.u16())))
	f.Kind = r.u8()
	f.Tick = r.u64()

	np := r.count(28)
	f.Particles = make([]Particle, np)
	for i := range f.Particles {
		f.Particles[i] = Particle{X: r.f64(), Y: r.f64(), Z: r.f64(), Flags: r.u32()}
	}

	ns := r.count(16)
	f.Segments = make([]Segment, ns)
	for i := range f.Segments {
		s := &f.Segments[i]
		s.Circulation = r.f64()
		s.Flags = r.u32()
		s.Indices = make([]uint32, r.count(4))
		for k := range s.Indices {
			s.Indices[k] = r.u32()
		}
	}

	if r.err != nil {
		return nil, r.err
	}
	if len(r.b) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(r.b))
	}
	return f, nil
}
