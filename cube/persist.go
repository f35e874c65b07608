package cube

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	fileMagic   = "RISKCUBE"
	fileVersion = uint16(1)
)

// Header limits for Load. A file claiming more than these is rejected before
// anything is allocated for it.
const (
	MaxFileIDs    = 1 << 20
	MaxFileIDLen  = 1 << 10
	MaxFileDates  = 1 << 16
	MaxFileDepth  = 1 << 8
	MaxFileValues = 1 << 31
)

var ErrBadFormat = errors.New("cube: bad file format")

// Save writes c to w as a gzip-framed little-endian binary stream. Values are
// stored at the cube's own precision, so Load reproduces them exactly.
func Save(w io.Writer, c NPVCube) error {
	zw := gzip.NewWriter(w)
	bw := bufio.NewWriter(zw)

	if err := writeHeader(bw, c); err != nil {
		return fmt.Errorf("cube: write header: %w", err)
	}
	if err := writeValues(bw, c); err != nil {
		return fmt.Errorf("cube: write values: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("cube: flush: %w", err)
	}
	return zw.Close()
}

// Load reads a cube written by Save. The returned cube has the precision it
// was saved with.
func Load(r io.Reader) (NPVCube, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	defer zr.Close()
	br := bufio.NewReader(zr)

	h, err := readHeader(br)
	if err != nil {
		return nil, err
	}

	switch h.precision {
	case Single:
		c, err := NewSinglePrecision(h.asof, h.ids, h.dates, h.samples, h.depth)
		if err != nil {
			return nil, err
		}
		if err := readSlices(br, c.t0, c.data); err != nil {
			return nil, err
		}
		return c, nil
	case Double:
		c, err := NewDoublePrecision(h.asof, h.ids, h.dates, h.samples, h.depth)
		if err != nil {
			return nil, err
		}
		if err := readSlices(br, c.t0, c.data); err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("%w: unknown precision %d", ErrBadFormat, h.precision)
}

func SaveFile(path string, c NPVCube) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cube: create %s: %w", path, err)
	}
	if err := Save(f, c); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func LoadFile(path string) (NPVCube, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cube: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

type header struct {
	precision Precision
	asof      time.Time
	ids       []string
	dates     []time.Time
	samples   int
	depth     int
}

func writeHeader(w io.Writer, c NPVCube) error {
	if _, err := io.WriteString(w, fileMagic); err != nil {
		return err
	}
	fields := []any{fileVersion, uint8(c.Precision()), c.Asof().Unix(), uint32(c.NumIDs())}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	for _, id := range c.IDs() {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(id))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, id); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(c.NumDates())); err != nil {
		return err
	}
	for _, d := range c.Dates() {
		if err := binary.Write(w, binary.LittleEndian, d.Unix()); err != nil {
			return err
		}
	}
	return binary.Write(w, binary.LittleEndian, [2]uint32{uint32(c.Samples()), uint32(c.Depth())})
}

func readHeader(r io.Reader) (header, error) {
	var h header

	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != fileMagic {
		return h, fmt.Errorf("%w: missing magic", ErrBadFormat)
	}

	var (
		version   uint16
		precision uint8
		asof      int64
		numIDs    uint32
	)
	for _, f := range []any{&version, &precision, &asof, &numIDs} {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return h, fmt.Errorf("%w: %v", ErrBadFormat, err)
		}
	}
	if version != fileVersion {
		return h, fmt.Errorf("%w: unsupported version %d", ErrBadFormat, version)
	}
	h.precision = Precision(precision)
	h.asof = time.Unix(asof, 0).UTC()
	if numIDs > MaxFileIDs {
		return h, fmt.Errorf("%w: %d ids exceeds %d", ErrBadFormat, numIDs, MaxFileIDs)
	}

	h.ids = make([]string, numIDs)
	for i := range h.ids {
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return h, fmt.Errorf("%w: %v", ErrBadFormat, err)
		}
		if n > MaxFileIDLen {
			return h, fmt.Errorf("%w: id %d is %d bytes, limit %d", ErrBadFormat, i, n, MaxFileIDLen)
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return h, fmt.Errorf("%w: %v", ErrBadFormat, err)
		}
		h.ids[i] = string(buf)
	}

	var numDates uint32
	if err := binary.Read(r, binary.LittleEndian, &numDates); err != nil {
		return h, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	if numDates > MaxFileDates {
		return h, fmt.Errorf("%w: %d dates exceeds %d", ErrBadFormat, numDates, MaxFileDates)
	}
	h.dates = make([]time.Time, numDates)
	for i := range h.dates {
		var d int64
		if err := binary.Read(r, binary.LittleEndian, &d); err != nil {
			return h, fmt.Errorf("%w: %v", ErrBadFormat, err)
		}
		h.dates[i] = time.Unix(d, 0).UTC()
	}

	var dims [2]uint32
	if err := binary.Read(r, binary.LittleEndian, &dims); err != nil {
		return h, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	if dims[1] > MaxFileDepth {
		return h, fmt.Errorf("%w: depth %d exceeds %d", ErrBadFormat, dims[1], MaxFileDepth)
	}
	if cells := uint64(numIDs) * uint64(numDates) * uint64(dims[0]) * uint64(dims[1]); cells > MaxFileValues {
		return h, fmt.Errorf("%w: %d values exceeds %d", ErrBadFormat, cells, uint64(MaxFileValues))
	}
	h.samples, h.depth = int(dims[0]), int(dims[1])
	return h, nil
}

func writeValues(w io.Writer, c NPVCube) error {
	switch mc := c.(type) {
	case *InMemoryCube[float32]:
		if err := binary.Write(w, binary.LittleEndian, mc.t0); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, mc.data)
	case *InMemoryCube[float64]:
		if err := binary.Write(w, binary.LittleEndian, mc.t0); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, mc.data)
	}

	// other implementations go through the interface in storage order
	put := func(v float64) error {
		if c.Precision() == Single {
			return binary.Write(w, binary.LittleEndian, float32(v))
		}
		return binary.Write(w, binary.LittleEndian, v)
	}
	for i := range c.NumIDs() {
		for d := range c.Depth() {
			v, err := c.GetT0(i, d)
			if err != nil {
				return err
			}
			if err := put(v); err != nil {
				return err
			}
		}
	}
	for i := range c.NumIDs() {
		for j := range c.NumDates() {
			for k := range c.Samples() {
				for d := range c.Depth() {
					v, err := c.Get(i, j, k, d)
					if err != nil {
						return err
					}
					if err := put(v); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func readSlices[T value](r io.Reader, t0, data []T) error {
	if err := binary.Read(r, binary.LittleEndian, t0); err != nil {
		return fmt.Errorf("%w: t0 values: %v", ErrBadFormat, err)
	}
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return fmt.Errorf("%w: cube values: %v", ErrBadFormat, err)
	}
	return nil
}
