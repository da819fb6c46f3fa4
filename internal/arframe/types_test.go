package arframe_test

import (
	"testing"

	"github.com/cake-lab/arflow-go/internal/arframe"
	"github.com/stretchr/testify/assert"
)

func TestDeviceEqual(t *testing.T) {
	a := arframe.Device{Model: "m", Name: "n", Type: arframe.DeviceHandheld, UID: "a"}
	b := arframe.Device{Model: "m", Name: "n", Type: arframe.DeviceHandheld, UID: "a"}
	c := arframe.Device{Model: "m", Name: "n", Type: arframe.DeviceHandheld, UID: "b"}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestSessionHasDevice(t *testing.T) {
	a := arframe.Device{Model: "m", Name: "n", Type: arframe.DeviceHandheld, UID: "a"}
	b := arframe.Device{Model: "m", Name: "n", Type: arframe.DeviceHandheld, UID: "b"}
	session := &arframe.Session{ID: "s1", Devices: []arframe.Device{a}}

	assert.True(t, session.HasDevice(a))
	assert.False(t, session.HasDevice(b))
}

func TestTrackableIDString(t *testing.T) {
	id := arframe.TrackableID{Sub1: "123", Sub2: "456"}
	assert.Equal(t, "123_456", id.String())
}

func TestFrameKindDiscriminators(t *testing.T) {
	cases := []struct {
		frame arframe.ARFrame
		kind  arframe.Kind
	}{
		{arframe.NewTransformFrame(1.0, [12]float32{}), arframe.KindTransform},
		{arframe.NewColorFrame(1.0, arframe.XRCpuImage{}, arframe.Intrinsics{}), arframe.KindColor},
		{arframe.NewDepthFrame(1.0, arframe.XRCpuImage{}, true), arframe.KindDepth},
		{arframe.NewGyroscopeFrame(1.0, arframe.Quaternion{}, arframe.Vector3{}, arframe.Vector3{}, arframe.Vector3{}), arframe.KindGyroscope},
		{arframe.NewAudioFrame(1.0, []float32{0.1}), arframe.KindAudio},
		{arframe.NewPlaneDetectionFrame(1.0, arframe.ChangeAdded, arframe.ARPlane{}), arframe.KindPlaneDetection},
		{arframe.NewPointCloudDetectionFrame(1.0, arframe.ChangeAdded, arframe.TrackableID{}, arframe.TrackingStateTracking, nil, nil, nil), arframe.KindPointCloud},
		{arframe.NewMeshDetectionFrame(1.0, arframe.ChangeAdded, arframe.TrackableID{}, nil), arframe.KindMeshDetection},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.kind, tc.frame.Kind())
		assert.Equal(t, 1.0, tc.frame.Timestamp())
	}
}
