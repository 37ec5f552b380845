package store

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/meshgo/geometry"
)

// Compression selects the fragment-file compression algorithm.
type Compression uint8

const (
	// CompressionNone stores fragment files as plain text.
	CompressionNone Compression = iota
	// CompressionLZ4 trades a little CPU for smaller files; good for
	// live capture.
	CompressionLZ4
	// CompressionZSTD compresses harder; good for long scans that are
	// mostly read back once at export time.
	CompressionZSTD
)

// Ext returns the blob name suffix for fragment files written with this
// compression.
func (c Compression) Ext() string {
	switch c {
	case CompressionLZ4:
		return ".frag.lz4"
	case CompressionZSTD:
		return ".frag.zst"
	default:
		return ".frag"
	}
}

// codec encodes one fragment mesh per blob as line-oriented text:
// `v x y z` vertex lines followed by `f a b c` face lines with 1-based
// fragment-local indices, optionally wrapped in a compression stream.
// The text form is what the merge engine re-reads and re-offsets.
type codec struct {
	compression Compression
}

func (c codec) Encode(w io.Writer, m *geometry.Mesh) error {
	switch c.compression {
	case CompressionLZ4:
		lw := lz4.NewWriter(w)
		if err := writeFragment(lw, m); err != nil {
			return err
		}
		return lw.Close()
	case CompressionZSTD:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return err
		}
		if err := writeFragment(zw, m); err != nil {
			return err
		}
		return zw.Close()
	default:
		return writeFragment(w, m)
	}
}

func (c codec) Decode(r io.Reader) (*geometry.Mesh, error) {
	switch c.compression {
	case CompressionLZ4:
		return readFragment(lz4.NewReader(r))
	case CompressionZSTD:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return readFragment(zr)
	default:
		return readFragment(r)
	}
}

func writeFragment(w io.Writer, m *geometry.Mesh) error {
	bw := bufio.NewWriter(w)
	for _, v := range m.Vertices {
		if _, err := fmt.Fprintf(bw, "v %g %g %g\n", v.X, v.Y, v.Z); err != nil {
			return err
		}
	}
	for _, face := range m.Faces {
		if _, err := bw.WriteString("f"); err != nil {
			return err
		}
		for _, idx := range face {
			if _, err := fmt.Fprintf(bw, " %d", idx+1); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func readFragment(r io.Reader) (*geometry.Mesh, error) {
	m := &geometry.Mesh{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) != 4 {
				return nil, fmt.Errorf("malformed vertex line %q", sc.Text())
			}
			var v geometry.Vector3
			for i, dst := range []*float32{&v.X, &v.Y, &v.Z} {
				f, err := strconv.ParseFloat(fields[i+1], 32)
				if err != nil {
					return nil, fmt.Errorf("malformed vertex line %q: %w", sc.Text(), err)
				}
				*dst = float32(f)
			}
			m.Vertices = append(m.Vertices, v)
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("malformed face line %q", sc.Text())
			}
			face := make(geometry.Face, 0, len(fields)-1)
			for _, field := range fields[1:] {
				n, err := strconv.ParseUint(field, 10, 32)
				if err != nil || n == 0 || int(n) > len(m.Vertices) {
					return nil, fmt.Errorf("malformed face line %q", sc.Text())
				}
				face = append(face, uint32(n-1))
			}
			m.Faces = append(m.Faces, face)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return m, nil
}
