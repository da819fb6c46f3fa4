// Package sessionstream binds one Session descriptor to a recorder stream
// and implements the per-frame-family save operations (§4.3): the grouping
// of heterogeneous batches into format-homogeneous sub-batches, the
// entity-path convention, and the dual-timeline column emission discipline.
package sessionstream

import (
	"fmt"
	"sync"

	"github.com/cake-lab/arflow-go/internal/arframe"
	"github.com/cake-lab/arflow-go/internal/decode"
	"github.com/cake-lab/arflow-go/internal/logging"
	"github.com/cake-lab/arflow-go/internal/recorder"
)

// Stream is the exclusive owner of one recorder stream handle for the
// lifetime of its Session. Every save_* operation locks writeMu for its
// duration, so no two saves on the same Stream interleave their recorder
// calls even when invoked from concurrent RPCs (§5 ordering guarantees).
type Stream struct {
	writeMu sync.Mutex

	session *arframe.Session
	adapter recorder.Adapter
	handle  recorder.Handle
	logger  *logging.Logger
	mesh    decode.MeshDecoder
}

// New binds session to handle via adapter. logger and meshDecoder may be
// nil, in which case component-scoped defaults are used.
func New(session *arframe.Session, adapter recorder.Adapter, handle recorder.Handle, logger *logging.Logger, meshDecoder decode.MeshDecoder) *Stream {
	if logger == nil {
		logger = logging.GetLogger("sessionstream")
	}
	if meshDecoder == nil {
		meshDecoder = decode.DefaultMeshDecoder{}
	}
	return &Stream{session: session, adapter: adapter, handle: handle, logger: logger, mesh: meshDecoder}
}

// Disconnect releases the underlying recorder stream. Idempotent: callers
// that disconnect twice get the adapter's own nil-safe behavior.
func (s *Stream) Disconnect() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.adapter.Disconnect(s.handle)
}

func (s *Stream) warnEmpty(op string) {
	s.logger.WithFields(logging.Fields{
		"session_id": s.session.ID,
		"operation":  op,
	}).Warn("save operation called with empty frame batch, skipping")
}

// SaveTransformFrames batch emits rotation and translation columns along
// device_timestamp.
func (s *Stream) SaveTransformFrames(device arframe.Device, frames []arframe.TransformFrame) error {
	if len(frames) == 0 {
		s.warnEmpty("save_transform_frames")
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	path := entityPath(s.session, device, segTransform)
	seconds := make([]float64, len(frames))
	rotations := make([]interface{}, len(frames))
	translations := make([]interface{}, len(frames))
	for i, f := range frames {
		pose := decode.PoseFromTransform(f.Pose)
		seconds[i] = f.Timestamp()
		rotations[i] = pose.Rotation3x3()
		translations[i] = pose.Translation3()
	}

	timelines := []recorder.TimeColumn{{Timeline: recorder.TimelineDevice, Seconds: seconds}}
	return s.adapter.SendColumns(s.handle, path, timelines,
		recorder.ColumnBatch{Name: "Rotation3x3", Values: rotations},
		recorder.ColumnBatch{Name: "Translation3D", Values: translations},
	)
}

type colorGroupKey struct {
	format        arframe.ImageFormat
	width, height int
}

// SaveColorFrames groups by (format, width, height); for each group logs a
// static ImageFormat primitive, column-emits intrinsics along
// device_timestamp to the intrinsics sibling path, then column-emits image
// buffers along both timelines.
func (s *Stream) SaveColorFrames(device arframe.Device, frames []arframe.ColorFrame) error {
	if len(frames) == 0 {
		s.warnEmpty("save_color_frames")
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	groups := make(map[colorGroupKey][]arframe.ColorFrame)
	var order []colorGroupKey
	for _, f := range frames {
		key := colorGroupKey{f.Image.Format, f.Image.Width, f.Image.Height}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], f)
	}

	for _, key := range order {
		group := groups[key]
		path := entityPath(s.session, device, segColor, dimensions(key.width, key.height))
		kind, ok := imageFormatKind(key.format)
		if !ok {
			s.logger.WithFields(logging.Fields{"format": key.format}).Warn("save_color_frames: unsupported format in group, skipping")
			continue
		}
		if err := s.adapter.LogStatic(s.handle, path, recorder.StaticImageFormat{Width: key.width, Height: key.height, Kind: kind}); err != nil {
			return fmt.Errorf("log static color format: %w", err)
		}

		deviceSeconds := make([]float64, len(group))
		focalLen := make([]interface{}, len(group))
		principal := make([]interface{}, len(group))
		for i, f := range group {
			deviceSeconds[i] = f.Timestamp()
			focalLen[i] = intrinsicsMatrix(f.Intrinsics)
			principal[i] = f.Intrinsics.PrincipalPoint
		}
		intrinsicsPath := entityPath(s.session, device, segColor, dimensions(key.width, key.height), "intrinsics")
		if err := s.adapter.SendColumns(s.handle, intrinsicsPath,
			[]recorder.TimeColumn{{Timeline: recorder.TimelineDevice, Seconds: deviceSeconds}},
			recorder.ColumnBatch{Name: "PinholeProjection", Values: focalLen},
			recorder.ColumnBatch{Name: "PrincipalPoint", Values: principal},
		); err != nil {
			return fmt.Errorf("send intrinsics columns: %w", err)
		}

		deviceSeconds2 := make([]float64, len(group))
		imageSeconds := make([]float64, len(group))
		buffers := make([]interface{}, len(group))
		for i, f := range group {
			deviceSeconds2[i] = f.Timestamp()
			imageSeconds[i] = f.Image.Timestamp
			buffers[i] = encodeImageBuffer(f.Image)
		}
		if err := s.adapter.SendColumns(s.handle, path,
			[]recorder.TimeColumn{
				{Timeline: recorder.TimelineDevice, Seconds: deviceSeconds2},
				{Timeline: recorder.TimelineImage, Seconds: imageSeconds},
			},
			recorder.ColumnBatch{Name: "ImageBuffer", Values: buffers},
		); err != nil {
			return fmt.Errorf("send color image columns: %w", err)
		}
	}
	return nil
}

// intrinsicsMatrix builds [[fx,0,cx],[0,fy,cy],[0,0,1]] per §4.3.
func intrinsicsMatrix(intr arframe.Intrinsics) [3][3]float32 {
	fx, fy := intr.FocalLength.X, intr.FocalLength.Y
	cx, cy := intr.PrincipalPoint.X, intr.PrincipalPoint.Y
	return [3][3]float32{
		{fx, 0, cx},
		{0, fy, cy},
		{0, 0, 1},
	}
}

func imageFormatKind(format arframe.ImageFormat) (recorder.ImageFormatKind, bool) {
	switch format {
	case arframe.FormatAndroidYUV420_888:
		return recorder.ImageFormatYUV420, true
	case arframe.FormatIOSNV12FullRange:
		return recorder.ImageFormatNV12, true
	case arframe.FormatDepthFloat32:
		return recorder.ImageFormatDepthF32, true
	case arframe.FormatDepthUInt16:
		return recorder.ImageFormatDepthU16, true
	default:
		return "", false
	}
}

// encodeImageBuffer normalizes an XRCpuImage to a single contiguous buffer
// ready for column emission: Android tri-planar images go through I420
// normalization (§4.1); anything else (NV12, single-plane depth) passes
// through its sole/first plane's bytes unchanged.
func encodeImageBuffer(img arframe.XRCpuImage) []byte {
	if img.Format == arframe.FormatAndroidYUV420_888 {
		if data, ok := decode.I420FromAndroidYUV420(img); ok {
			return data
		}
		return nil
	}
	if len(img.Planes) == 0 {
		return nil
	}
	return img.Planes[0].Data
}

type depthGroupKey struct {
	format        arframe.ImageFormat
	width, height int
	smoothing     bool
}

// SaveDepthFrames groups by (format, width, height, smoothing_enabled);
// emits static format + indicator, then column-emits single-plane data
// along both timelines. No unit conversion is performed (§4.1 R2).
func (s *Stream) SaveDepthFrames(device arframe.Device, frames []arframe.DepthFrame) error {
	if len(frames) == 0 {
		s.warnEmpty("save_depth_frames")
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	groups := make(map[depthGroupKey][]arframe.DepthFrame)
	var order []depthGroupKey
	for _, f := range frames {
		key := depthGroupKey{f.Image.Format, f.Image.Width, f.Image.Height, f.TemporalSmoothingEnabled}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], f)
	}

	for _, key := range order {
		group := groups[key]
		path := entityPath(s.session, device, segDepth, dimensions(key.width, key.height))
		kind, ok := imageFormatKind(key.format)
		if !ok {
			s.logger.WithFields(logging.Fields{"format": key.format}).Warn("save_depth_frames: unsupported format in group, skipping")
			continue
		}
		if err := s.adapter.LogStatic(s.handle, path, recorder.StaticImageFormat{Width: key.width, Height: key.height, Kind: kind}, key.smoothing); err != nil {
			return fmt.Errorf("log static depth format: %w", err)
		}

		deviceSeconds := make([]float64, len(group))
		imageSeconds := make([]float64, len(group))
		buffers := make([]interface{}, len(group))
		for i, f := range group {
			deviceSeconds[i] = f.Timestamp()
			imageSeconds[i] = f.Image.Timestamp
			if len(f.Image.Planes) > 0 {
				buffers[i] = f.Image.Planes[0].Data
			}
		}
		if err := s.adapter.SendColumns(s.handle, path,
			[]recorder.TimeColumn{
				{Timeline: recorder.TimelineDevice, Seconds: deviceSeconds},
				{Timeline: recorder.TimelineImage, Seconds: imageSeconds},
			},
			recorder.ColumnBatch{Name: "DepthBuffer", Values: buffers},
		); err != nil {
			return fmt.Errorf("send depth columns: %w", err)
		}
	}
	return nil
}

var (
	gyroRotationRateColor = [3]uint8{0, 200, 0}
	gyroGravityColor      = [3]uint8{0, 0, 200}
	gyroAccelerationColor = [3]uint8{200, 200, 0}
)

// SaveGyroscopeFrames emits four sibling entities: attitude (box +
// rotation quaternion column), rotation_rate (green arrow), gravity (blue
// arrow), acceleration (yellow arrow). Static color/half-size are logged
// once; vector/quaternion columns follow along device_timestamp.
func (s *Stream) SaveGyroscopeFrames(device arframe.Device, frames []arframe.GyroscopeFrame) error {
	if len(frames) == 0 {
		s.warnEmpty("save_gyroscope_frames")
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	seconds := make([]float64, len(frames))
	attitudes := make([]interface{}, len(frames))
	rates := make([]interface{}, len(frames))
	gravities := make([]interface{}, len(frames))
	accels := make([]interface{}, len(frames))
	for i, f := range frames {
		seconds[i] = f.Timestamp()
		attitudes[i] = f.Attitude
		rates[i] = f.RotationRate
		gravities[i] = f.Gravity
		accels[i] = f.Acceleration
	}
	timelines := []recorder.TimeColumn{{Timeline: recorder.TimelineDevice, Seconds: seconds}}

	attitudePath := entityPath(s.session, device, segGyroscope, "attitude")
	if err := s.adapter.LogStatic(s.handle, attitudePath, arframe.Vector3{X: 0.5, Y: 0.5, Z: 0.5}); err != nil {
		return fmt.Errorf("log static attitude box: %w", err)
	}
	if err := s.adapter.SendColumns(s.handle, attitudePath, timelines, recorder.ColumnBatch{Name: "Rotation", Values: attitudes}); err != nil {
		return fmt.Errorf("send attitude columns: %w", err)
	}

	arrows := []struct {
		segment string
		color   [3]uint8
		values  []interface{}
	}{
		{"rotation_rate", gyroRotationRateColor, rates},
		{"gravity", gyroGravityColor, gravities},
		{"acceleration", gyroAccelerationColor, accels},
	}
	for _, arrow := range arrows {
		path := entityPath(s.session, device, segGyroscope, arrow.segment)
		if err := s.adapter.LogStatic(s.handle, path, arrow.color); err != nil {
			return fmt.Errorf("log static %s color: %w", arrow.segment, err)
		}
		if err := s.adapter.SendColumns(s.handle, path, timelines, recorder.ColumnBatch{Name: "Vector3D", Values: arrow.values}); err != nil {
			return fmt.Errorf("send %s columns: %w", arrow.segment, err)
		}
	}
	return nil
}

// SaveAudioFrames partitions the batch by per-frame sample count (a
// variable-length field cannot share one column layout) and, per count
// group, emits one scalar column per sample index along device_timestamp.
func (s *Stream) SaveAudioFrames(device arframe.Device, frames []arframe.AudioFrame) error {
	if len(frames) == 0 {
		s.warnEmpty("save_audio_frames")
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	groups := make(map[int][]arframe.AudioFrame)
	var order []int
	for _, f := range frames {
		n := len(f.Samples)
		if _, ok := groups[n]; !ok {
			order = append(order, n)
		}
		groups[n] = append(groups[n], f)
	}

	for _, n := range order {
		group := groups[n]
		path := entityPath(s.session, device, segAudio, fmt.Sprintf("%dsamples", n))
		seconds := make([]float64, len(group))
		for i, f := range group {
			seconds[i] = f.Timestamp()
		}
		timelines := []recorder.TimeColumn{{Timeline: recorder.TimelineDevice, Seconds: seconds}}

		batches := make([]recorder.ColumnBatch, n)
		for sampleIdx := 0; sampleIdx < n; sampleIdx++ {
			values := make([]interface{}, len(group))
			for i, f := range group {
				values[i] = f.Samples[sampleIdx]
			}
			batches[sampleIdx] = recorder.ColumnBatch{Name: fmt.Sprintf("sample_%d", sampleIdx), Values: values}
		}
		if len(batches) == 0 {
			continue
		}
		if err := s.adapter.SendColumns(s.handle, path, timelines, batches...); err != nil {
			return fmt.Errorf("send audio sample columns: %w", err)
		}
	}
	return nil
}
