// Package export merges independent fragment meshes into one indexed
// mesh and serializes it as Wavefront OBJ text.
package export

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/meshgo/geometry"
)

// ErrNoData is returned when a merge is requested over zero fragments.
var ErrNoData = errors.New("no mesh data")

// Fragment is one independently stored mesh patch. Mesh may be called
// more than once: the merge makes two passes over the fragment list and
// decodes each fragment once per pass to keep memory bounded by the
// largest single fragment.
type Fragment interface {
	// Name identifies the fragment; merge order is the order of the
	// slice handed to Merge, which callers derive from these names.
	Name() string
	// Mesh decodes the fragment's geometry.
	Mesh(ctx context.Context) (*geometry.Mesh, error)
}

// MeshFragment adapts an in-memory mesh (a live, not-yet-durable
// fragment) to the Fragment interface.
type MeshFragment struct {
	ID   string
	Data *geometry.Mesh
}

// Name implements Fragment.
func (f *MeshFragment) Name() string { return f.ID }

// Mesh implements Fragment.
func (f *MeshFragment) Mesh(context.Context) (*geometry.Mesh, error) { return f.Data, nil }

// Merge writes all fragments to w as one OBJ mesh: header comments,
// then every vertex in fragment order, then every face in the same
// order with indices shifted by the running global vertex offset and
// serialized 1-based.
//
// The two-pass structure is load-bearing: OBJ face lines must not
// interleave with vertex lines, and a fragment's offset is only known
// once every earlier fragment has contributed its vertex count.
//
// A fragment that fails to decode on either pass is skipped on both: a
// fragment is frequently re-observed, so a transient read failure only
// delays it. A face whose index falls outside the vertex range recorded
// in the first pass is dropped rather than emitted out of range.
func Merge(ctx context.Context, w io.Writer, frags []Fragment, header []string) (vertices, faces int, err error) {
	if len(frags) == 0 {
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

	// Pass 1: vertices. Record each fragment's vertex count; a count of
	// -1 marks a fragment that failed to decode and is excluded from
	// pass 2 as well.
	counts := make([]int, len(frags))
	offsets := make([]int, len(frags))
	for i, frag := range frags {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		m, err := frag.Mesh(ctx)
		if err != nil {
			counts[i] = -1
			continue
		}
		offsets[i] = vertices
		counts[i] = m.VertexCount()
		for _, v := range m.Vertices {
			if _, err := fmt.Fprintf(bw, "v %g %g %g\n", v.X, v.Y, v.Z); err != nil {
				return 0, 0, err
			}
		}
		vertices += m.VertexCount()
	}
	if vertices == 0 {
		return 0, 0, ErrNoData
	}

	// Pass 2: faces, shifted by the offsets computed above.
	for i, frag := range frags {
		if counts[i] <= 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		m, err := frag.Mesh(ctx)
		if err != nil {
			continue
		}
		for _, face := range m.Faces {
			n, err := writeFace(bw, face, offsets[i], counts[i])
			if err != nil {
				return 0, 0, err
			}
			faces += n
		}
	}

	return vertices, faces, bw.Flush()
}

// writeFace emits one face line with 1-based global indices, or nothing
// when any index falls outside the vertex range the first pass recorded
// for this fragment. Returns the number of faces written (0 or 1).
func writeFace(bw *bufio.Writer, face geometry.Face, offset, count int) (int, error) {
	if len(face) < 3 {
		return 0, nil
	}
	for _, idx := range face {
		if int(idx) >= count {
			return 0, nil
		}
	}
	if _, err := bw.WriteString("f"); err != nil {
		return 0, err
	}
	for _, idx := range face {
		if _, err := fmt.Fprintf(bw, " %d", offset+int(idx)+1); err != nil {
			return 0, err
		}
	}
	if err := bw.WriteByte('\n'); err != nil {
		return 0, err
	}
	return 1, nil
}

// Collect merges fragments into a single in-memory mesh using the same
// running-offset discipline as Merge. When vertexCap is positive,
// fragments are admitted in slice order until the next one would push
// the total past the cap; callers wanting best spatial coverage under
// the cap pass fragments sorted by ascending vertex count.
func Collect(ctx context.Context, frags []Fragment, vertexCap int) (*geometry.Mesh, error) {
	if len(frags) == 0 {
		return nil, ErrNoData
	}

	out := &geometry.Mesh{}
	for _, frag := range frags {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := frag.Mesh(ctx)
		if err != nil {
			continue
		}
		if vertexCap > 0 && len(out.Vertices)+m.VertexCount() > vertexCap {
			break
		}
		offset := uint32(len(out.Vertices))
		out.Vertices = append(out.Vertices, m.Vertices...)
		for _, face := range m.Faces {
			shifted := make(geometry.Face, len(face))
			for j, idx := range face {
				shifted[j] = idx + offset
			}
			out.Faces = append(out.Faces, shifted)
		}
	}
	if len(out.Vertices) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}
