package recorder_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cake-lab/arflow-go/internal/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileAdapterJournalsRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.rrd")

	a := recorder.NewFileAdapter(nil)
	ctx := context.Background()
	h, err := a.NewStream(ctx, "arflow", "session-1", false)
	require.NoError(t, err)

	require.NoError(t, a.DirectToFile(h, path))
	require.NoError(t, a.LogStatic(h, "entity/one", "static-prop"))
	a.SetTime(h, recorder.TimelineDevice, 1.5)
	require.NoError(t, a.Log(h, "entity/one", map[string]int{"x": 1}))
	require.NoError(t, a.Clear(h, "entity/one", true))
	require.NoError(t, a.Disconnect(h))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Contains(t, string(data), "log_static")
	assert.Contains(t, string(data), "\"clear\"")
}

func TestFileAdapterSendColumnsRejectsMismatchedLength(t *testing.T) {
	a := recorder.NewFileAdapter(nil)
	h, err := a.NewStream(context.Background(), "arflow", "session-2", false)
	require.NoError(t, err)

	timelines := []recorder.TimeColumn{{Timeline: recorder.TimelineDevice, Seconds: []float64{0, 1, 2}}}
	bad := recorder.ColumnBatch{Name: "Translation3D", Values: []interface{}{1, 2}}

	err = a.SendColumns(h, "entity/one", timelines, bad)
	assert.Error(t, err)
}

func TestFileAdapterRejectsForeignHandle(t *testing.T) {
	a := recorder.NewFileAdapter(nil)
	err := a.DirectToFile("not-a-handle", "/tmp/whatever")
	assert.Error(t, err)
}

type fakeColorPrimitive struct{}

func (fakeColorPrimitive) ColorPreview() (int, int, []byte) {
	return 2, 2, make([]byte, 2*2*3)
}

func TestFileAdapterSnapshotPreviewWritesPNG(t *testing.T) {
	dir := t.TempDir()
	a := recorder.NewFileAdapter(nil)
	h, err := a.NewStream(context.Background(), "arflow", "session-3", false)
	require.NoError(t, err)

	require.NoError(t, a.Log(h, "entity/color", fakeColorPrimitive{}))

	out := filepath.Join(dir, "preview.png")
	require.NoError(t, a.SnapshotPreview(h, "entity/color", out))

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestFileAdapterSnapshotPreviewErrorsWithoutFrame(t *testing.T) {
	a := recorder.NewFileAdapter(nil)
	h, err := a.NewStream(context.Background(), "arflow", "session-4", false)
	require.NoError(t, err)

	err = a.SnapshotPreview(h, "entity/none", filepath.Join(t.TempDir(), "out.png"))
	assert.Error(t, err)
}
