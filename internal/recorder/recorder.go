// Package recorder defines the capability contract the core needs from a
// visualization/recording backend (§4.2/§6.2), and ships one reference
// implementation, FileAdapter. Any backend implementing Adapter may be
// substituted; the core never assumes a specific recording format.
package recorder

import "context"

// Handle is an opaque recording stream handle returned by NewStream. The
// core treats it as a capability token: operations on distinct handles are
// independent, and the adapter alone is responsible for the thread-safety
// of a single handle's own bookkeeping. The core serializes writes per
// stream by construction (see sessionstream.Stream).
type Handle interface{}

// ImageFormatKind distinguishes the pixel layouts a static ImageFormat
// property can describe.
type ImageFormatKind string

const (
	ImageFormatNV12       ImageFormatKind = "nv12"
	ImageFormatYUV420     ImageFormatKind = "y_u_v12_limited_range"
	ImageFormatDepthF32   ImageFormatKind = "depth_f32"
	ImageFormatDepthU16   ImageFormatKind = "depth_u16"
)

// StaticImageFormat is logged once per homogeneous group before columns of
// image bytes are emitted along timelines.
type StaticImageFormat struct {
	Width, Height int
	Kind          ImageFormatKind
}

// TimeColumn names one timeline and the float-seconds values a column batch
// is indexed by. All component batches sharing a send_columns call must
// have a length matching the sum of the named timelines' lengths.
type TimeColumn struct {
	Timeline string
	Seconds  []float64
}

// Well-known timeline names (§3 Timelines).
const (
	TimelineDevice = "device_timestamp"
	TimelineImage  = "image_timestamp"
)

// Adapter is the capability set the core depends on. Implementations are
// external collaborators (§1); the core ships FileAdapter as its one
// reference implementation.
type Adapter interface {
	// NewStream returns a handle for a fresh recording stream, independent
	// of the global recording. appID and sessionID scope the stream for
	// backends that multiplex multiple sessions into one process.
	NewStream(ctx context.Context, appID, sessionID string, spawnViewer bool) (Handle, error)

	// DirectToFile additionally persists all subsequent writes on handle to
	// path. Must coexist with a live viewer if one was requested.
	DirectToFile(handle Handle, path string) error

	// LogStatic writes time-independent properties to entityPath: an image
	// format, an indicator primitive, a half-size, a fixed color, and so
	// on. props is backend-specific; the core passes named, typed values.
	LogStatic(handle Handle, entityPath string, props ...interface{}) error

	// SendColumns bulk-appends component batches along one or more named
	// time columns. Every entry in components must have a length equal to
	// the sum of the timelines' lengths.
	SendColumns(handle Handle, entityPath string, timelines []TimeColumn, components ...ColumnBatch) error

	// SetTime sets the current time cursor for subsequent Log calls on
	// handle.
	SetTime(handle Handle, timeline string, seconds float64)

	// Log performs a single time-stamped write at the current cursor.
	Log(handle Handle, entityPath string, primitive interface{}) error

	// Clear recursively clears entityPath, used when a trackable is
	// removed.
	Clear(handle Handle, entityPath string, recursive bool) error

	// Disconnect flushes and releases handle. A nil handle releases the
	// global recording.
	Disconnect(handle Handle) error
}

// ColumnBatch is one named component's batch of values in a SendColumns
// call. Name identifies the recorder component kind (e.g. "Translation3D",
// "Position3D"); Values holds one entry per row.
type ColumnBatch struct {
	Name   string
	Values []interface{}
}
