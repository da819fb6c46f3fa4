package registry_test

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
)

type fakeAdapter struct {
	mu          sync.Mutex
	disconnects int
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
func (a *fakeAdapter) Disconnect(handle recorder.Handle) error {
	a.mu.Lock()
	a.disconnects++
	a.mu.Unlock()
	return nil
}

type fakeStream struct {
	adapter *fakeAdapter
	handle  recorder.Handle
}

func (s *fakeStream) Disconnect() error { return s.adapter.Disconnect(s.handle) }

func newStreamFactory(adapter *fakeAdapter) func(session *arframe.Session, handle recorder.Handle) registry.StreamOwner {
	return func(session *arframe.Session, handle recorder.Handle) registry.StreamOwner {
		return &fakeStream{adapter: adapter, handle: handle}
	}
}

func deviceA() arframe.Device {
	return arframe.Device{Model: "m", Name: "n", Type: arframe.DeviceHandheld, UID: "a"}
}
func deviceB() arframe.Device {
	return arframe.Device{Model: "m", Name: "n", Type: arframe.DeviceHandheld, UID: "b"}
}

func TestCreateGetListDelete(t *testing.T) {
	adapter := &fakeAdapter{}
	reg := registry.New(registry.Config{Adapter: adapter, SaveDir: "", NewStream: newStreamFactory(adapter)})

	session, err := reg.Create(context.Background(), registry.CreateRequest{Device: deviceA()})
	require.NoError(t, err)
	assert.Len(t, session.Devices, 1)

	got, err := reg.Get(session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)

	all := reg.List()
	assert.Len(t, all, 1)

	require.NoError(t, reg.Delete(session.ID))
	_, err = reg.Get(session.ID)
	assert.True(t, arerrors.Is(err, arerrors.NotFound))
	assert.Equal(t, 1, adapter.disconnects)
}

func TestDeleteNonexistentIsNotFound(t *testing.T) {
	adapter := &fakeAdapter{}
	reg := registry.New(registry.Config{Adapter: adapter, NewStream: newStreamFactory(adapter)})
	err := reg.Delete("does-not-exist")
	assert.True(t, arerrors.Is(err, arerrors.NotFound))
}

// TestJoinThenLeaveRestoresDeviceList covers R3.
func TestJoinThenLeaveRestoresDeviceList(t *testing.T) {
	adapter := &fakeAdapter{}
	reg := registry.New(registry.Config{Adapter: adapter, NewStream: newStreamFactory(adapter)})
	session, err := reg.Create(context.Background(), registry.CreateRequest{Device: deviceA()})
	require.NoError(t, err)

	before := len(session.Devices)

	_, err = reg.Join(session.ID, deviceB())
	require.NoError(t, err)

	err = reg.Leave(session.ID, deviceB())
	require.NoError(t, err)

	after, err := reg.Get(session.ID)
	require.NoError(t, err)
	assert.Len(t, after.Devices, before)
}

func TestCreateSurfacesPanickingHookAsInternalButKeepsSession(t *testing.T) {
	adapter := &fakeAdapter{}
	reg := registry.New(registry.Config{
		Adapter:   adapter,
		NewStream: newStreamFactory(adapter),
		Hooks: registry.Hooks{
			OnCreateSession: func(session arframe.Session) { panic("boom") },
		},
	})

	_, err := reg.Create(context.Background(), registry.CreateRequest{Device: deviceA()})
	require.Error(t, err)
	assert.True(t, arerrors.Is(err, arerrors.Internal))

	all := reg.List()
	assert.Len(t, all, 1, "the session must still be created even though its hook panicked")
}

func TestJoinRejectsDuplicateDevice(t *testing.T) {
	adapter := &fakeAdapter{}
	reg := registry.New(registry.Config{Adapter: adapter, NewStream: newStreamFactory(adapter)})
	session, err := reg.Create(context.Background(), registry.CreateRequest{Device: deviceA()})
	require.NoError(t, err)

	_, err = reg.Join(session.ID, deviceA())
	assert.True(t, arerrors.Is(err, arerrors.InvalidArgument))
}

func TestLeaveUnknownDeviceIsNotFound(t *testing.T) {
	adapter := &fakeAdapter{}
	reg := registry.New(registry.Config{Adapter: adapter, NewStream: newStreamFactory(adapter)})
	session, err := reg.Create(context.Background(), registry.CreateRequest{Device: deviceA()})
	require.NoError(t, err)

	err = reg.Leave(session.ID, deviceB())
	assert.True(t, arerrors.Is(err, arerrors.NotFound))
}

// TestConcurrentJoinsProduceNoDuplicates covers S5's no-duplicate guarantee:
// 100 concurrent joins drawn from 26 distinct devices. It does not check the
// final device count.
func TestConcurrentJoinsProduceNoDuplicates(t *testing.T) {
	adapter := &fakeAdapter{}
	reg := registry.New(registry.Config{Adapter: adapter, NewStream: newStreamFactory(adapter)})
	session, err := reg.Create(context.Background(), registry.CreateRequest{Device: deviceA()})
	require.NoError(t, err)

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			d := arframe.Device{Model: "m", Name: "n", Type: arframe.DeviceHandheld, UID: string(rune('A' + i%26))}
			_, _ = reg.Join(session.ID, d)
		}(i)
	}
	wg.Wait()

	final, err := reg.Get(session.ID)
	require.NoError(t, err)
	seen := make(map[arframe.Device]bool)
	for _, d := range final.Devices {
		assert.False(t, seen[d], "duplicate device in list: %+v", d)
		seen[d] = true
	}
}

// TestGetAfterDeleteIsNotFound covers R4.
func TestGetAfterDeleteIsNotFound(t *testing.T) {
	adapter := &fakeAdapter{}
	reg := registry.New(registry.Config{Adapter: adapter, NewStream: newStreamFactory(adapter)})
	session, err := reg.Create(context.Background(), registry.CreateRequest{Device: deviceA()})
	require.NoError(t, err)

	require.NoError(t, reg.Delete(session.ID))
	_, err = reg.Get(session.ID)
	assert.True(t, arerrors.Is(err, arerrors.NotFound))
}
