package geometry

// Transform is a 4x4 row-major world transform:
// m00,m01,m02,m03, m10,...
type Transform [16]float32

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Apply transforms the point v into world space.
func (t Transform) Apply(v Vector3) Vector3 {
	return Vector3{
		X: t[0]*v.X + t[1]*v.Y + t[2]*v.Z + t[3],
		Y: t[4]*v.X + t[5]*v.Y + t[6]*v.Z + t[7],
		Z: t[8]*v.X + t[9]*v.Y + t[10]*v.Z + t[11],
	}
}

// Translation returns a transform that offsets points by (x, y, z).
func Translation(x, y, z float32) Transform {
	t := Identity()
	t[3], t[7], t[11] = x, y, z
	return t
}
