package rpcserver

import "github.com/cake-lab/arflow-go/internal/arframe"

// Hooks are the servicer's user-overridable post-save callbacks (§4.5, §9).
// Every field is optional; a nil hook is simply skipped. Each is called
// synchronously after its corresponding recorder write succeeds. A panicking
// hook is recovered and logged without crashing the server or undoing the
// recorder write; the RPC then reports an Internal error. This mirrors the Python subclass-override
// pattern via composition rather than embedding.
type Hooks struct {
	OnCreateSession func(session arframe.Session)
	OnJoinSession   func(session arframe.Session, device arframe.Device)
	OnLeaveSession  func(session arframe.Session, device arframe.Device)

	// OnSaveARFrames fires exactly once per SaveARFrames/SaveSynchronizedARFrame
	// call, with the full, unpartitioned frame list (P6).
	OnSaveARFrames func(session arframe.Session, device arframe.Device, frames []arframe.ARFrame)

	OnSaveTransformFrames  func(session arframe.Session, device arframe.Device, frames []arframe.TransformFrame)
	OnSaveColorFrames      func(session arframe.Session, device arframe.Device, frames []arframe.ColorFrame)
	OnSaveDepthFrames      func(session arframe.Session, device arframe.Device, frames []arframe.DepthFrame)
	OnSaveGyroscopeFrames  func(session arframe.Session, device arframe.Device, frames []arframe.GyroscopeFrame)
	OnSaveAudioFrames      func(session arframe.Session, device arframe.Device, frames []arframe.AudioFrame)
	OnSavePlaneFrames      func(session arframe.Session, device arframe.Device, frames []arframe.PlaneDetectionFrame)
	OnSavePointCloudFrames func(session arframe.Session, device arframe.Device, frames []arframe.PointCloudDetectionFrame)
	OnSaveMeshFrames       func(session arframe.Session, device arframe.Device, frames []arframe.MeshDetectionFrame)
}

// SynchronizedFrame carries at most one frame per family, all sharing a
// single capture tick (§6.1 SaveSynchronizedARFrame). A nil field means that
// family was not captured this tick.
type SynchronizedFrame struct {
	Transform  *arframe.TransformFrame
	Color      *arframe.ColorFrame
	Depth      *arframe.DepthFrame
	Gyroscope  *arframe.GyroscopeFrame
	Audio      *arframe.AudioFrame
	Plane      *arframe.PlaneDetectionFrame
	PointCloud *arframe.PointCloudDetectionFrame
	Mesh       *arframe.MeshDetectionFrame
}

// frames expands the synchronized tick into the tagged-variant list
// SaveARFrames already knows how to partition and dispatch.
func (f SynchronizedFrame) frames() []arframe.ARFrame {
	var out []arframe.ARFrame
	if f.Transform != nil {
		out = append(out, *f.Transform)
	}
	if f.Color != nil {
		out = append(out, *f.Color)
	}
	if f.Depth != nil {
		out = append(out, *f.Depth)
	}
	if f.Gyroscope != nil {
		out = append(out, *f.Gyroscope)
	}
	if f.Audio != nil {
		out = append(out, *f.Audio)
	}
	if f.Plane != nil {
		out = append(out, *f.Plane)
	}
	if f.PointCloud != nil {
		out = append(out, *f.PointCloud)
	}
	if f.Mesh != nil {
		out = append(out, *f.Mesh)
	}
	return out
}
