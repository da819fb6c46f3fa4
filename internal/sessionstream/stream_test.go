package sessionstream_test

import (
	"context"
	"testing"

	"github.com/cake-lab/arflow-go/internal/arframe"
	"github.com/cake-lab/arflow-go/internal/recorder"
	"github.com/cake-lab/arflow-go/internal/sessionstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	op         string
	entityPath string
	timelines  []recorder.TimeColumn
	components []recorder.ColumnBatch
}

type fakeAdapter struct {
	calls []call
}

func (f *fakeAdapter) NewStream(ctx context.Context, appID, sessionID string, spawnViewer bool) (recorder.Handle, error) {
	return "handle", nil
}
func (f *fakeAdapter) DirectToFile(handle recorder.Handle, path string) error { return nil }
func (f *fakeAdapter) LogStatic(handle recorder.Handle, entityPath string, props ...interface{}) error {
	f.calls = append(f.calls, call{op: "log_static", entityPath: entityPath})
	return nil
}
func (f *fakeAdapter) SendColumns(handle recorder.Handle, entityPath string, timelines []recorder.TimeColumn, components ...recorder.ColumnBatch) error {
	f.calls = append(f.calls, call{op: "send_columns", entityPath: entityPath, timelines: timelines, components: components})
	return nil
}
func (f *fakeAdapter) SetTime(handle recorder.Handle, timeline string, seconds float64) {}
func (f *fakeAdapter) Log(handle recorder.Handle, entityPath string, primitive interface{}) error {
	f.calls = append(f.calls, call{op: "log", entityPath: entityPath})
	return nil
}
func (f *fakeAdapter) Clear(handle recorder.Handle, entityPath string, recursive bool) error {
	f.calls = append(f.calls, call{op: "clear", entityPath: entityPath})
	return nil
}
func (f *fakeAdapter) Disconnect(handle recorder.Handle) error {
	f.calls = append(f.calls, call{op: "disconnect"})
	return nil
}

func (f *fakeAdapter) countOps(op string) int {
	n := 0
	for _, c := range f.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

func newTestSession() *arframe.Session {
	return &arframe.Session{ID: "sess-1", Metadata: arframe.SessionMetadata{Name: "mysession"}}
}

func newTestDevice() arframe.Device {
	return arframe.Device{Model: "pixel", Name: "phone", Type: arframe.DeviceHandheld, UID: "dev-1"}
}

func TestSaveTransformFramesEmitsOneColumnCall(t *testing.T) {
	adapter := &fakeAdapter{}
	stream := sessionstream.New(newTestSession(), adapter, "handle", nil, nil)

	frames := []arframe.TransformFrame{
		arframe.NewTransformFrame(0, [12]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0}),
		arframe.NewTransformFrame(1, [12]float32{1, 0, 0, 5, 0, 1, 0, 6, 0, 0, 1, 7}),
	}
	err := stream.SaveTransformFrames(newTestDevice(), frames)
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.countOps("send_columns"))
	assert.Equal(t, 2, len(adapter.calls[0].timelines[0].Seconds))
}

func TestSaveTransformFramesShortCircuitsOnEmpty(t *testing.T) {
	adapter := &fakeAdapter{}
	stream := sessionstream.New(newTestSession(), adapter, "handle", nil, nil)
	err := stream.SaveTransformFrames(newTestDevice(), nil)
	require.NoError(t, err)
	assert.Empty(t, adapter.calls)
}

func TestSaveColorFramesGroupsByFormatAndDimensions(t *testing.T) {
	adapter := &fakeAdapter{}
	stream := sessionstream.New(newTestSession(), adapter, "handle", nil, nil)

	mkFrame := func(ts float64, w, h int) arframe.ColorFrame {
		return arframe.NewColorFrame(ts, arframe.XRCpuImage{
			Width: w, Height: h, Format: arframe.FormatIOSNV12FullRange,
			Planes: []arframe.Plane{{Data: make([]byte, w*h*3/2)}},
		}, arframe.Intrinsics{})
	}

	frames := []arframe.ColorFrame{
		mkFrame(0, 4, 4),
		mkFrame(1, 4, 4),
		mkFrame(2, 8, 8),
	}
	err := stream.SaveColorFrames(newTestDevice(), frames)
	require.NoError(t, err)

	// 2 groups x (log_static + intrinsics send_columns + image send_columns) = 2 log_static + 4 send_columns
	assert.Equal(t, 2, adapter.countOps("log_static"))
	assert.Equal(t, 4, adapter.countOps("send_columns"))
}

func TestSaveGyroscopeFramesEmitsFourEntities(t *testing.T) {
	adapter := &fakeAdapter{}
	stream := sessionstream.New(newTestSession(), adapter, "handle", nil, nil)

	frames := []arframe.GyroscopeFrame{
		arframe.NewGyroscopeFrame(0, arframe.Quaternion{W: 1}, arframe.Vector3{}, arframe.Vector3{}, arframe.Vector3{}),
	}
	err := stream.SaveGyroscopeFrames(newTestDevice(), frames)
	require.NoError(t, err)
	assert.Equal(t, 4, adapter.countOps("log_static"))
	assert.Equal(t, 4, adapter.countOps("send_columns"))
}

func TestSaveAudioFramesPartitionsBySampleCount(t *testing.T) {
	adapter := &fakeAdapter{}
	stream := sessionstream.New(newTestSession(), adapter, "handle", nil, nil)

	frames := []arframe.AudioFrame{
		arframe.NewAudioFrame(0, []float32{1, 2}),
		arframe.NewAudioFrame(1, []float32{3, 4}),
		arframe.NewAudioFrame(2, []float32{5, 6, 7}),
	}
	err := stream.SaveAudioFrames(newTestDevice(), frames)
	require.NoError(t, err)
	assert.Equal(t, 2, adapter.countOps("send_columns"))
}

func TestSavePlaneDetectionFramesAppliesOpenQuestionAFilter(t *testing.T) {
	adapter := &fakeAdapter{}
	stream := sessionstream.New(newTestSession(), adapter, "handle", nil, nil)

	positiveWithBoundary := arframe.NewPlaneDetectionFrame(0, arframe.ChangeUpdated, arframe.ARPlane{
		Boundary:      []arframe.Vector2{{X: 0, Y: 0}, {X: 1, Y: 0}},
		Normal:        arframe.Vector3{Z: 1},
		TrackableID:   arframe.TrackableID{Sub1: "a", Sub2: "1"},
		TrackingState: arframe.TrackingStateTracking,
	})
	updatedEmptyBoundary := arframe.NewPlaneDetectionFrame(1, arframe.ChangeUpdated, arframe.ARPlane{
		TrackableID: arframe.TrackableID{Sub1: "b", Sub2: "2"},
	})
	removed := arframe.NewPlaneDetectionFrame(2, arframe.ChangeRemoved, arframe.ARPlane{
		TrackableID: arframe.TrackableID{Sub1: "c", Sub2: "3"},
	})

	err := stream.SavePlaneDetectionFrames(newTestDevice(), []arframe.PlaneDetectionFrame{positiveWithBoundary, updatedEmptyBoundary, removed})
	require.NoError(t, err)

	assert.Equal(t, 1, adapter.countOps("log")) // only the positive frame logs a boundary
	assert.Equal(t, 1, adapter.countOps("clear"))
}

func TestSavePointCloudDetectionFramesEmitsCloudAndPointColumns(t *testing.T) {
	adapter := &fakeAdapter{}
	stream := sessionstream.New(newTestSession(), adapter, "handle", nil, nil)

	frame := arframe.NewPointCloudDetectionFrame(0, arframe.ChangeAdded,
		arframe.TrackableID{Sub1: "a", Sub2: "1"}, arframe.TrackingStateTracking,
		[]int64{1, 2}, []arframe.Vector3{{X: 1}, {X: 2}}, []float32{0.9, 0.8})

	err := stream.SavePointCloudDetectionFrames(newTestDevice(), []arframe.PointCloudDetectionFrame{frame})
	require.NoError(t, err)

	// 1 aggregate cloud-level call + 2 per-point calls = 3
	assert.Equal(t, 3, adapter.countOps("send_columns"))
}

func TestSaveMeshDetectionFramesDecodesPositivesAndClearsNegatives(t *testing.T) {
	adapter := &fakeAdapter{}
	stream := sessionstream.New(newTestSession(), adapter, "handle", nil, nil)

	payload := []byte{
		1, 0, 0, 0,
		0, 0, 0, 0,
		0, 0, 0, 0,
		0, 0, 0, 0,
		0, 0, 128, 63, 0, 0, 0, 0, 0, 0, 0, 0,
	}
	added := arframe.NewMeshDetectionFrame(0, arframe.ChangeAdded, arframe.TrackableID{Sub1: "a", Sub2: "1"}, []arframe.SubMesh{{Data: payload}})
	removed := arframe.NewMeshDetectionFrame(1, arframe.ChangeRemoved, arframe.TrackableID{Sub1: "b", Sub2: "2"}, nil)

	err := stream.SaveMeshDetectionFrames(newTestDevice(), []arframe.MeshDetectionFrame{added, removed})
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.countOps("log"))
	assert.Equal(t, 1, adapter.countOps("clear"))
}

func TestDisconnect(t *testing.T) {
	adapter := &fakeAdapter{}
	stream := sessionstream.New(newTestSession(), adapter, "handle", nil, nil)
	require.NoError(t, stream.Disconnect())
	assert.Equal(t, 1, adapter.countOps("disconnect"))
}
