package rpcserver_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cake-lab/arflow-go/internal/arerrors"
	"github.com/cake-lab/arflow-go/internal/arframe"
	"github.com/cake-lab/arflow-go/internal/recorder"
	"github.com/cake-lab/arflow-go/internal/registry"
	"github.com/cake-lab/arflow-go/internal/rpcserver"
)

func registryCreateRequest(device arframe.Device) registry.CreateRequest {
	return registry.CreateRequest{Device: device}
}

type fakeAdapter struct {
	mu sync.Mutex
}

func (a *fakeAdapter) NewStream(ctx context.Context, appID, sessionID string, spawnViewer bool) (recorder.Handle, error) {
	return sessionID, nil
}
func (a *fakeAdapter) DirectToFile(handle recorder.Handle, path string) error { return nil }
func (a *fakeAdapter) LogStatic(handle recorder.Handle, entityPath string, props ...interface{}) error {
	return nil
}
func (a *fakeAdapter) SendColumns(handle recorder.Handle, entityPath string, timelines []recorder.TimeColumn, components ...recorder.ColumnBatch) error {
	return nil
}
func (a *fakeAdapter) SetTime(handle recorder.Handle, timeline string, seconds float64) {}
func (a *fakeAdapter) Log(handle recorder.Handle, entityPath string, primitive interface{}) error {
	return nil
}
func (a *fakeAdapter) Clear(handle recorder.Handle, entityPath string, recursive bool) error {
	return nil
}
func (a *fakeAdapter) Disconnect(handle recorder.Handle) error { return nil }

func deviceA() arframe.Device {
	return arframe.Device{Model: "m", Name: "n", Type: arframe.DeviceHandheld, UID: "a"}
}
func deviceB() arframe.Device {
	return arframe.Device{Model: "m", Name: "n", Type: arframe.DeviceHandheld, UID: "b"}
}

func newLiveServicer(t *testing.T, hooks rpcserver.Hooks) *rpcserver.Servicer {
	t.Helper()
	svc, err := rpcserver.New(rpcserver.Config{
		Adapter:       &fakeAdapter{},
		ApplicationID: "arflow-test",
		SpawnViewer:   true,
		Hooks:         hooks,
	})
	require.NoError(t, err)
	return svc
}

// TestConstructionRejectsConflictingMode covers P5/S4.
func TestConstructionRejectsConflictingMode(t *testing.T) {
	_, err := rpcserver.New(rpcserver.Config{
		Adapter:     &fakeAdapter{},
		SpawnViewer: true,
		SaveDir:     "/tmp/x",
	})
	require.Error(t, err)
	assert.True(t, arerrors.Is(err, arerrors.InvalidArgument))

	_, err = rpcserver.New(rpcserver.Config{
		Adapter:     &fakeAdapter{},
		SpawnViewer: false,
		SaveDir:     "",
	})
	require.Error(t, err)
	assert.True(t, arerrors.Is(err, arerrors.InvalidArgument))
}

func TestConstructionAcceptsLiveAndArchivalModes(t *testing.T) {
	_, err := rpcserver.New(rpcserver.Config{Adapter: &fakeAdapter{}, SpawnViewer: true})
	require.NoError(t, err)

	_, err = rpcserver.New(rpcserver.Config{Adapter: &fakeAdapter{}, SpawnViewer: false, SaveDir: "/tmp/arflow"})
	require.NoError(t, err)
}

// TestCreateJoinLeaveDelete covers S1.
func TestCreateJoinLeaveDelete(t *testing.T) {
	svc := newLiveServicer(t, rpcserver.Hooks{})
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, registryCreateRequest(deviceA()))
	require.NoError(t, err)

	_, err = svc.JoinSession(ctx, session.ID, deviceB())
	require.NoError(t, err)

	all := svc.ListSessions(ctx)
	require.Len(t, all, 1)
	assert.Len(t, all[0].Devices, 2)

	require.NoError(t, svc.LeaveSession(ctx, session.ID, deviceA()))
	got, err := svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, got.Devices, 1)
	assert.Equal(t, deviceB(), got.Devices[0])

	require.NoError(t, svc.DeleteSession(ctx, session.ID))
	_, err = svc.GetSession(ctx, session.ID)
	assert.True(t, arerrors.Is(err, arerrors.NotFound))
}

// TestSaveARFramesDispatchesHeterogeneousBatch covers S2/P6.
func TestSaveARFramesDispatchesHeterogeneousBatch(t *testing.T) {
	var mu sync.Mutex
	var transformCalls, colorCalls, depthCalls, gyroCalls int
	var genericCalls int
	var genericLen int

	hooks := rpcserver.Hooks{
		OnSaveTransformFrames: func(session arframe.Session, device arframe.Device, frames []arframe.TransformFrame) {
			mu.Lock()
			defer mu.Unlock()
			transformCalls++
			assert.Len(t, frames, 2)
		},
		OnSaveColorFrames: func(session arframe.Session, device arframe.Device, frames []arframe.ColorFrame) {
			mu.Lock()
			defer mu.Unlock()
			colorCalls++
			assert.Len(t, frames, 1)
		},
		OnSaveDepthFrames: func(session arframe.Session, device arframe.Device, frames []arframe.DepthFrame) {
			mu.Lock()
			defer mu.Unlock()
			depthCalls++
			assert.Len(t, frames, 1)
		},
		OnSaveGyroscopeFrames: func(session arframe.Session, device arframe.Device, frames []arframe.GyroscopeFrame) {
			mu.Lock()
			defer mu.Unlock()
			gyroCalls++
			assert.Len(t, frames, 1)
		},
		OnSaveARFrames: func(session arframe.Session, device arframe.Device, frames []arframe.ARFrame) {
			mu.Lock()
			defer mu.Unlock()
			genericCalls++
			genericLen = len(frames)
		},
	}

	svc := newLiveServicer(t, hooks)
	ctx := context.Background()
	session, err := svc.CreateSession(ctx, registryCreateRequest(deviceA()))
	require.NoError(t, err)

	frames := []arframe.ARFrame{
		arframe.NewTransformFrame(0, [12]float32{}),
		arframe.NewColorFrame(0, arframe.XRCpuImage{Width: 2, Height: 2, Format: arframe.FormatIOSNV12FullRange, Planes: []arframe.Plane{{Data: make([]byte, 6)}}}, arframe.Intrinsics{}),
		arframe.NewDepthFrame(0, arframe.XRCpuImage{Width: 2, Height: 2, Format: arframe.FormatDepthFloat32, Planes: []arframe.Plane{{Data: make([]byte, 16)}}}, false),
		arframe.NewGyroscopeFrame(0, arframe.Quaternion{W: 1}, arframe.Vector3{}, arframe.Vector3{}, arframe.Vector3{}),
		arframe.NewTransformFrame(1, [12]float32{}),
	}

	require.NoError(t, svc.SaveARFrames(ctx, session.ID, deviceA(), frames))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, transformCalls)
	assert.Equal(t, 1, colorCalls)
	assert.Equal(t, 1, depthCalls)
	assert.Equal(t, 1, gyroCalls)
	assert.Equal(t, 1, genericCalls)
	assert.Equal(t, 5, genericLen)
}

func TestSaveARFramesRejectsEmptyBatch(t *testing.T) {
	svc := newLiveServicer(t, rpcserver.Hooks{})
	ctx := context.Background()
	session, err := svc.CreateSession(ctx, registryCreateRequest(deviceA()))
	require.NoError(t, err)

	err = svc.SaveARFrames(ctx, session.ID, deviceA(), nil)
	assert.True(t, arerrors.Is(err, arerrors.InvalidArgument))
}

func TestSaveARFramesRejectsNonMemberDevice(t *testing.T) {
	svc := newLiveServicer(t, rpcserver.Hooks{})
	ctx := context.Background()
	session, err := svc.CreateSession(ctx, registryCreateRequest(deviceA()))
	require.NoError(t, err)

	err = svc.SaveARFrames(ctx, session.ID, deviceB(), []arframe.ARFrame{arframe.NewTransformFrame(0, [12]float32{})})
	assert.True(t, arerrors.Is(err, arerrors.InvalidArgument))
}

func TestSaveSynchronizedARFrameExpandsAllFamilies(t *testing.T) {
	var genericLen int
	hooks := rpcserver.Hooks{
		OnSaveARFrames: func(session arframe.Session, device arframe.Device, frames []arframe.ARFrame) {
			genericLen = len(frames)
		},
	}
	svc := newLiveServicer(t, hooks)
	ctx := context.Background()
	session, err := svc.CreateSession(ctx, registryCreateRequest(deviceA()))
	require.NoError(t, err)

	transform := arframe.NewTransformFrame(0, [12]float32{})
	gyro := arframe.NewGyroscopeFrame(0, arframe.Quaternion{W: 1}, arframe.Vector3{}, arframe.Vector3{}, arframe.Vector3{})

	err = svc.SaveSynchronizedARFrame(ctx, session.ID, deviceA(), rpcserver.SynchronizedFrame{
		Transform: &transform,
		Gyroscope: &gyro,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, genericLen)
}

func TestSaveARFramesSurfacesPanickingHookAsInternal(t *testing.T) {
	hooks := rpcserver.Hooks{
		OnSaveTransformFrames: func(session arframe.Session, device arframe.Device, frames []arframe.TransformFrame) {
			panic("boom")
		},
	}
	svc := newLiveServicer(t, hooks)
	ctx := context.Background()
	session, err := svc.CreateSession(ctx, registryCreateRequest(deviceA()))
	require.NoError(t, err)

	err = svc.SaveARFrames(ctx, session.ID, deviceA(), []arframe.ARFrame{arframe.NewTransformFrame(0, [12]float32{})})
	require.Error(t, err)
	assert.True(t, arerrors.Is(err, arerrors.Internal))
}
