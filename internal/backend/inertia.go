package backend

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	jacobiMaxSweeps = 32
	jacobiTolerance = 1e-18
)

// Diagonalize splits a symmetric inertia matrix into its principal moments
// and the rotation of the principal axes: m = R * diag(tensor) * R^T.
//
// Uses cyclic Jacobi rotations in float64. The asymmetric part of m, if any,
// is discarded.
func Diagonalize(m mgl32.Mat3) (mgl32.Vec3, mgl32.Quat) {
	var a, v [3][3]float64
	for i := 0; i < 3; i++ {
		v[i][i] = 1
		for j := 0; j < 3; j++ {
			a[i][j] = 0.5 * (float64(m.At(i, j)) + float64(m.At(j, i)))
		}
	}

	for sweep := 0; sweep < jacobiMaxSweeps; sweep++ {
		off := a[0][1]*a[0][1] + a[0][2]*a[0][2] + a[1][2]*a[1][2]
		if off < jacobiTolerance {
			break
		}
		for p := 0; p < 2; p++ {
			for q := p + 1; q < 3; q++ {
				if a[p][q] == 0 {
					continue
				}
				theta := (a[q][q] - a[p][p]) / (2 * a[p][q])
				t := 1 / (math.Abs(theta) + math.Sqrt(theta*theta+1))
				if theta < 0 {
					t = -t
				}
				c := 1 / math.Sqrt(t*t+1)
				s := t * c

				for k := 0; k < 3; k++ {
					kp, kq := a[k][p], a[k][q]
					a[k][p] = c*kp - s*kq
					a[k][q] = s*kp + c*kq
				}
				for k := 0; k < 3; k++ {
					pk, qk := a[p][k], a[q][k]
					a[p][k] = c*pk - s*qk
					a[q][k] = s*pk + c*qk
				}
				for k := 0; k < 3; k++ {
					kp, kq := v[k][p], v[k][q]
					v[k][p] = c*kp - s*kq
					v[k][q] = s*kp + c*kq
				}
			}
		}
	}

	col := func(i int) mgl32.Vec3 {
		return mgl32.Vec3{float32(v[0][i]), float32(v[1][i]), float32(v[2][i])}
	}
	c0, c1, c2 := col(0), col(1), col(2)
	// Keep the frame right-handed so it is a rotation.
	if c0.Cross(c1).Dot(c2) < 0 {
		c2 = c2.Mul(-1)
	}
	rot := mgl32.Mat4ToQuat(mgl32.Mat3FromCols(c0, c1, c2).Mat4()).Normalize()
	tensor := mgl32.Vec3{float32(a[0][0]), float32(a[1][1]), float32(a[2][2])}
	return tensor, rot
}
