package decode_test

import (
	"testing"

	"github.com/cake-lab/arflow-go/internal/arframe"
	"github.com/cake-lab/arflow-go/internal/decode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestI420FromAndroidYUV420NormalizesStrides covers S3 and P7: output
// length equals w*h + 2*(w/2)*(h/2) regardless of input strides, and the Y
// plane passes through verbatim.
func TestI420FromAndroidYUV420NormalizesStrides(t *testing.T) {
	width, height := 4, 4
	yData := []byte{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	}
	uData := []byte{21, 22, 23, 24}
	vData := []byte{31, 32, 33, 34}

	img := arframe.XRCpuImage{
		Width: width, Height: height,
		Format: arframe.FormatAndroidYUV420_888,
		Planes: []arframe.Plane{
			{Data: yData, RowStride: 4, PixelStride: 1},
			{Data: uData, RowStride: 2, PixelStride: 1},
			{Data: vData, RowStride: 2, PixelStride: 1},
		},
	}

	out, ok := decode.I420FromAndroidYUV420(img)
	require.True(t, ok)
	assert.Equal(t, width*height+2*(width/2)*(height/2), len(out))
	assert.Equal(t, yData, out[:16])
	assert.Equal(t, uData, out[16:20])
	assert.Equal(t, vData, out[20:24])
}

func TestI420FromAndroidYUV420SkipsWrongPlaneCount(t *testing.T) {
	img := arframe.XRCpuImage{Width: 4, Height: 4, Planes: []arframe.Plane{{Data: []byte{1}}}}
	_, ok := decode.I420FromAndroidYUV420(img)
	assert.False(t, ok)
}

// TestPoseFromTransformDoubleFlipIsIdentity covers R1.
func TestPoseFromTransformDoubleFlipIsIdentity(t *testing.T) {
	values := [12]float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	}
	once := decode.PoseFromTransform(values)

	var flipped [12]float32
	copy(flipped[:], once[:12])
	twice := decode.PoseFromTransform(flipped)

	assert.InDeltaSlice(t, values[:], twice[:12], 1e-6)
}

func TestPoseFromTransformTranslation(t *testing.T) {
	values := [12]float32{
		1, 0, 0, 10,
		0, 1, 0, 20,
		0, 0, 1, 30,
	}
	pose := decode.PoseFromTransform(values)
	tr := pose.Translation3()
	assert.Equal(t, float32(10), tr.X)
	assert.Equal(t, float32(-20), tr.Y)
	assert.Equal(t, float32(30), tr.Z)
}

// TestPlaneBoundaryTo3DClosesLoop covers P8.
func TestPlaneBoundaryTo3DClosesLoop(t *testing.T) {
	boundary := []arframe.Vector2{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}
	normal := arframe.Vector3{X: 0, Y: 0, Z: 1}
	center := arframe.Vector3{X: 0, Y: 0, Z: 0}

	out := decode.PlaneBoundaryTo3D(boundary, normal, center)
	require.Len(t, out, len(boundary)+1)
	assert.Equal(t, out[0], out[len(out)-1])
}

func TestPlaneBoundaryTo3DEmptyInput(t *testing.T) {
	out := decode.PlaneBoundaryTo3D(nil, arframe.Vector3{X: 0, Y: 0, Z: 1}, arframe.Vector3{})
	assert.Empty(t, out)
}

func TestDefaultMeshDecoderRoundTrip(t *testing.T) {
	// Construct a minimal payload: 1 vertex, 0 indices, no normals/texcoords.
	payload := []byte{
		1, 0, 0, 0, // vertexCount = 1
		0, 0, 0, 0, // indexCount = 0
		0, 0, 0, 0, // hasNormals = false
		0, 0, 0, 0, // hasTexCoords = false
		0, 0, 128, 63, // 1.0 as float32 LE
		0, 0, 0, 0, // 0.0
		0, 0, 0, 0, // 0.0
	}
	mesh, err := decode.DefaultMeshDecoder{}.Decode(payload)
	require.NoError(t, err)
	require.Len(t, mesh.Vertices, 3)
	assert.Equal(t, float32(1.0), mesh.Vertices[0])
}

func TestDefaultMeshDecoderRejectsShortPayload(t *testing.T) {
	_, err := decode.DefaultMeshDecoder{}.Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}
