// Package decode implements the pure, stateless per-family transforms from
// wire-format AR frames to typed records ready for column emission: YUV
// normalization, transform pose reconstruction, and plane boundary
// projection. Every function here is side-effect free; skip decisions are
// reported via the returned bool rather than an error, since a single bad
// frame must not abort an otherwise-good batch.
package decode

import (
	"math"

	"github.com/cake-lab/arflow-go/internal/arframe"
)

// I420FromAndroidYUV420 normalizes a three-plane Android YUV_420_888 image
// into a contiguous I420 buffer: Y followed by downsampled U then V, each
// stride-free. Returns ok=false if the image does not carry exactly three
// planes, signaling the frame should be skipped rather than erroring the
// batch.
func I420FromAndroidYUV420(img arframe.XRCpuImage) (data []byte, ok bool) {
	if len(img.Planes) != 3 {
		return nil, false
	}

	width, height := img.Width, img.Height
	uvWidth, uvHeight := width/2, height/2

	y := img.Planes[0]
	u := img.Planes[1]
	v := img.Planes[2]

	yData := extractPlaneRows(y.Data, y.RowStride, width, height, 1, width)
	uData := extractPlaneRows(padOneByte(u.Data), u.RowStride, uvWidth, uvHeight, u.PixelStride, uvWidth*u.PixelStride)
	vData := extractPlaneRows(padOneByte(v.Data), v.RowStride, uvWidth, uvHeight, v.PixelStride, uvWidth*v.PixelStride)

	out := make([]byte, 0, len(yData)+len(uData)+len(vData))
	out = append(out, yData...)
	out = append(out, uData...)
	out = append(out, vData...)
	return out, true
}

// padOneByte appends one trailing zero byte, matching the capture-format
// workaround the Android image APIs require before reshaping chroma planes
// (see the original implementation's citation of the YUV_420_888 byte
// layout discussion).
func padOneByte(data []byte) []byte {
	padded := make([]byte, len(data)+1)
	copy(padded, data)
	return padded
}

// extractPlaneRows reshapes data into rows of rowStride bytes, takes the
// first outCols columns of each row sampled every pixelStride bytes, and
// flattens the result. sliceLen is outCols*pixelStride, the column bound
// before striding.
func extractPlaneRows(data []byte, rowStride, outCols, rows, pixelStride, sliceLen int) []byte {
	out := make([]byte, 0, outCols*rows)
	for row := 0; row < rows; row++ {
		rowStart := row * rowStride
		rowEnd := rowStart + sliceLen
		if rowEnd > len(data) {
			rowEnd = len(data)
		}
		for col := rowStart; col < rowEnd; col += pixelStride {
			out = append(out, data[col])
		}
	}
	return out
}

// Pose4x4 is a row-major 4x4 transform matrix.
type Pose4x4 [16]float32

// yDownToYUp converts the client's Y-down frame to the recorder's Y-up
// frame: diag(1,-1,1,1).
var yDownToYUp = Pose4x4{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

// PoseFromTransform builds the 4x4 pose matrix from the wire's 12
// little-endian floats (row-major 3x4), left-multiplied by the fixed
// Y-flip matrix.
func PoseFromTransform(values [12]float32) Pose4x4 {
	m := Pose4x4{
		values[0], values[1], values[2], values[3],
		values[4], values[5], values[6], values[7],
		values[8], values[9], values[10], values[11],
		0, 0, 0, 1,
	}
	return multiply4x4(yDownToYUp, m)
}

func multiply4x4(a, b Pose4x4) Pose4x4 {
	var out Pose4x4
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += a[row*4+k] * b[k*4+col]
			}
			out[row*4+col] = sum
		}
	}
	return out
}

// Rotation3x3 extracts the top-left 3x3 rotation block.
func (p Pose4x4) Rotation3x3() [9]float32 {
	return [9]float32{
		p[0], p[1], p[2],
		p[4], p[5], p[6],
		p[8], p[9], p[10],
	}
}

// Translation3 extracts column 3 (the translation).
func (p Pose4x4) Translation3() arframe.Vector3 {
	return arframe.Vector3{X: p[3], Y: p[7], Z: p[11]}
}

// PlaneBoundaryTo3D projects a plane-local 2D boundary polygon into 3D using
// the plane's normal and center, closing the loop by repeating the first
// point. Returns an empty slice if boundary is empty (nothing to log).
func PlaneBoundaryTo3D(boundary []arframe.Vector2, normal, center arframe.Vector3) []arframe.Vector3 {
	if len(boundary) == 0 {
		return nil
	}

	n := normalize(normal)
	arbitrary := arframe.Vector3{X: 1, Y: 0, Z: 0}
	if closeTo(n, arbitrary) {
		arbitrary = arframe.Vector3{X: 0, Y: 1, Z: 0}
	}
	u := normalize(cross(n, arbitrary))
	v := cross(n, u)

	out := make([]arframe.Vector3, 0, len(boundary)+1)
	for _, p := range boundary {
		out = append(out, addScaled(center, u, v, p))
	}
	out = append(out, addScaled(center, u, v, boundary[0]))
	return out
}

func addScaled(center, u, v arframe.Vector3, p arframe.Vector2) arframe.Vector3 {
	return arframe.Vector3{
		X: center.X + p.X*u.X + p.Y*v.X,
		Y: center.Y + p.X*u.Y + p.Y*v.Y,
		Z: center.Z + p.X*u.Z + p.Y*v.Z,
	}
}

func cross(a, b arframe.Vector3) arframe.Vector3 {
	return arframe.Vector3{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}

func normalize(v arframe.Vector3) arframe.Vector3 {
	length := float32(math.Sqrt(float64(v.X*v.X + v.Y*v.Y + v.Z*v.Z)))
	if length == 0 {
		return v
	}
	return arframe.Vector3{X: v.X / length, Y: v.Y / length, Z: v.Z / length}
}

func closeTo(a, b arframe.Vector3) bool {
	const eps = 1e-6
	return math.Abs(float64(a.X-b.X)) < eps &&
		math.Abs(float64(a.Y-b.Y)) < eps &&
		math.Abs(float64(a.Z-b.Z)) < eps
}
