package export

import (
	"bufio"
	"fmt"
	"io"

	"github.com/hupe1980/meshgo/geometry"
)

// WriteOBJ serializes a single in-memory mesh as OBJ text: header
// comment lines, vertices, normals when present and count-consistent,
// then faces with 1-based indices. With normals the face encoding is
// `f i//i j//j k//k` (normal index equals vertex index); without, plain
// `f i j k`.
func WriteOBJ(w io.Writer, m *geometry.Mesh, header []string) (vertices, faces int, err error) {
	if m == nil || m.VertexCount() == 0 {
		return 0, 0, ErrNoData
	}

	bw := bufio.NewWriter(w)
	for _, line := range header {
		if _, err := fmt.Fprintf(bw, "# %s\n", line); err != nil {
			return 0, 0, err
		}
	}
	if _, err := fmt.Fprintln(bw); err != nil {
		return 0, 0, err
	}

	for _, v := range m.Vertices {
		if _, err := fmt.Fprintf(bw, "v %g %g %g\n", v.X, v.Y, v.Z); err != nil {
			return 0, 0, err
		}
	}
	vertices = m.VertexCount()

	withNormals := m.HasNormals()
	if withNormals {
		for _, n := range m.Normals {
			if _, err := fmt.Fprintf(bw, "vn %g %g %g\n", n.X, n.Y, n.Z); err != nil {
				return 0, 0, err
			}
		}
	}

	for _, face := range m.Faces {
		if len(face) < 3 {
			continue
		}
		inRange := true
		for _, idx := range face {
			if int(idx) >= vertices {
				inRange = false
				break
			}
		}
		if !inRange {
			continue
		}
		if _, err := bw.WriteString("f"); err != nil {
			return 0, 0, err
		}
		for _, idx := range face {
			if withNormals {
				_, err = fmt.Fprintf(bw, " %d//%d", idx+1, idx+1)
			} else {
				_, err = fmt.Fprintf(bw, " %d", idx+1)
			}
			if err != nil {
				return 0, 0, err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return 0, 0, err
		}
		faces++
	}

	return vertices, faces, bw.Flush()
}
