// Package arframe defines the wire-level AR telemetry types ingested by the
// core: sessions, devices, and the eight AR frame families. Types here carry
// no behavior beyond simple validation; decoding and recording live in
// internal/decode and internal/sessionstream.
package arframe

import "fmt"

// DeviceType enumerates the kinds of XR client a Device may be.
type DeviceType string

const (
	DeviceHandheld DeviceType = "handheld"
	DeviceHeadset  DeviceType = "headset"
	DeviceDesktop  DeviceType = "desktop"
)

// Device identifies one participant in a session. Immutable once supplied;
// two devices are equal iff all four fields match.
type Device struct {
	Model string
	Name  string
	Type  DeviceType
	UID   string
}

// Equal reports whether d and other identify the same physical device.
func (d Device) Equal(other Device) bool {
	return d.Model == other.Model && d.Name == other.Name &&
		d.Type == other.Type && d.UID == other.UID
}

// SessionMetadata carries the caller-supplied human name and optional
// per-session save-path override (§6.4 on-disk layout).
type SessionMetadata struct {
	Name     string
	SavePath string
}

// Session is the process-wide descriptor for one recording session: an id,
// metadata, and the ordered, duplicate-free list of participating devices.
type Session struct {
	ID       string
	Metadata SessionMetadata
	Devices  []Device
}

// HasDevice reports whether d is already a participant.
func (s *Session) HasDevice(d Device) bool {
	for _, existing := range s.Devices {
		if existing.Equal(d) {
			return true
		}
	}
	return false
}

// Vector2 is a 2D point, used for plane boundary polygons in plane-local
// coordinates.
type Vector2 struct {
	X, Y float32
}

// Vector3 is a 3D point or direction.
type Vector3 struct {
	X, Y, Z float32
}

// Quaternion is an xyzw-ordered rotation.
type Quaternion struct {
	X, Y, Z, W float32
}

// ImageFormat enumerates the pixel layouts a Plane's bytes may carry.
type ImageFormat string

const (
	FormatAndroidYUV420_888 ImageFormat = "AndroidYUV420_888"
	FormatIOSNV12FullRange  ImageFormat = "iOS_NV12_FullRange"
	FormatDepthFloat32      ImageFormat = "DepthFloat32"
	FormatDepthUInt16       ImageFormat = "DepthUInt16"
)

// Plane is one image plane of an XRCpuImage: raw bytes plus the strides
// needed to walk it.
type Plane struct {
	Data        []byte
	RowStride   int
	PixelStride int
}

// XRCpuImage is a multi-plane image captured by an XR client, as delivered
// on the wire before decoding.
type XRCpuImage struct {
	Width, Height int
	Format        ImageFormat
	Timestamp     float64
	Planes        []Plane
}

// Intrinsics is a pinhole camera intrinsics matrix, [[fx,0,cx],[0,fy,cy],[0,0,1]].
type Intrinsics struct {
	FocalLength    Vector2
	PrincipalPoint Vector2
	Resolution     struct{ Width, Height int }
}

// TrackingState mirrors the AR platform's notion of how confidently a
// trackable (plane, point cloud, mesh) is currently being tracked.
type TrackingState string

const (
	TrackingStateTracking TrackingState = "tracking"
	TrackingStateLimited  TrackingState = "limited"
	TrackingStatePaused   TrackingState = "paused"
	TrackingStateStopped  TrackingState = "stopped"
)

// ChangeState describes how a trackable changed in this frame.
type ChangeState string

const (
	ChangeAdded   ChangeState = "added"
	ChangeUpdated ChangeState = "updated"
	ChangeRemoved ChangeState = "removed"
)

// TrackableID is the (sub_id_1, sub_id_2) pair identifying a plane, point
// cloud, or mesh across frames.
type TrackableID struct {
	Sub1, Sub2 string
}

func (t TrackableID) String() string {
	return fmt.Sprintf("%s_%s", t.Sub1, t.Sub2)
}

// Kind is the discriminator for the ARFrame sum type, one value per frame
// family in §3 of the data model.
type Kind string

const (
	KindTransform      Kind = "transform"
	KindColor          Kind = "color"
	KindDepth          Kind = "depth"
	KindGyroscope      Kind = "gyroscope"
	KindAudio          Kind = "audio"
	KindPlaneDetection Kind = "plane_detection"
	KindPointCloud     Kind = "point_cloud_detection"
	KindMeshDetection  Kind = "mesh_detection"
)

// ARFrame is the sealed interface every frame family implements. The
// interface is unexported-method-sealed so no type outside this package can
// satisfy it, keeping the dispatch switch in rpcserver exhaustive.
type ARFrame interface {
	Kind() Kind
	Timestamp() float64
	isARFrame()
}

type baseFrame struct {
	DeviceTimestamp float64
}

func (b baseFrame) Timestamp() float64 { return b.DeviceTimestamp }
func (baseFrame) isARFrame()           {}

// TransformFrame carries a 12-float row-major 3x4 pose.
type TransformFrame struct {
	baseFrame
	Pose [12]float32
}

func (TransformFrame) Kind() Kind { return KindTransform }

// ColorFrame carries a captured color image plus the intrinsics it was
// captured with.
type ColorFrame struct {
	baseFrame
	Image      XRCpuImage
	Intrinsics Intrinsics
}

func (ColorFrame) Kind() Kind { return KindColor }

// DepthFrame carries a captured depth image.
type DepthFrame struct {
	baseFrame
	Image                    XRCpuImage
	TemporalSmoothingEnabled bool
}

func (DepthFrame) Kind() Kind { return KindDepth }

// GyroscopeFrame carries one IMU sample.
type GyroscopeFrame struct {
	baseFrame
	Attitude     Quaternion
	RotationRate Vector3
	Gravity      Vector3
	Acceleration Vector3
}

func (GyroscopeFrame) Kind() Kind { return KindGyroscope }

// AudioFrame carries one block of PCM samples.
type AudioFrame struct {
	baseFrame
	Samples []float32
}

func (AudioFrame) Kind() Kind { return KindAudio }

// ARPlane is the decoded geometry and tracking state of a detected plane.
type ARPlane struct {
	Center        Vector3
	Normal        Vector3
	Size          Vector2
	Boundary      []Vector2
	TrackableID   TrackableID
	TrackingState TrackingState
}

// PlaneDetectionFrame reports the addition, update, or removal of a
// detected plane.
type PlaneDetectionFrame struct {
	baseFrame
	State ChangeState
	Plane ARPlane
}

func (PlaneDetectionFrame) Kind() Kind { return KindPlaneDetection }

// PointCloudDetectionFrame reports a batch of tracked points belonging to
// one trackable point cloud.
type PointCloudDetectionFrame struct {
	baseFrame
	State         ChangeState
	TrackableID   TrackableID
	TrackingState TrackingState
	Identifiers   []int64
	Positions     []Vector3
	Confidence    []float32
}

func (PointCloudDetectionFrame) Kind() Kind { return KindPointCloud }

// SubMesh is one Draco-encoded piece of mesh geometry.
type SubMesh struct {
	Data []byte
}

// MeshDetectionFrame reports the addition, update, or removal of a tracked
// mesh instance.
type MeshDetectionFrame struct {
	baseFrame
	State      ChangeState
	InstanceID TrackableID
	SubMeshes  []SubMesh
}

func (MeshDetectionFrame) Kind() Kind { return KindMeshDetection }

// NewTransformFrame, NewColorFrame, ... construct frames with their device
// timestamp set, matching the baseFrame embedding convention above.

func NewTransformFrame(ts float64, pose [12]float32) TransformFrame {
	return TransformFrame{baseFrame{ts}, pose}
}

func NewColorFrame(ts float64, img XRCpuImage, intr Intrinsics) ColorFrame {
	return ColorFrame{baseFrame{ts}, img, intr}
}

func NewDepthFrame(ts float64, img XRCpuImage, smoothing bool) DepthFrame {
	return DepthFrame{baseFrame{ts}, img, smoothing}
}

func NewGyroscopeFrame(ts float64, attitude Quaternion, rate, gravity, accel Vector3) GyroscopeFrame {
	return GyroscopeFrame{baseFrame{ts}, attitude, rate, gravity, accel}
}

func NewAudioFrame(ts float64, samples []float32) AudioFrame {
	return AudioFrame{baseFrame{ts}, samples}
}

func NewPlaneDetectionFrame(ts float64, state ChangeState, plane ARPlane) PlaneDetectionFrame {
	return PlaneDetectionFrame{baseFrame{ts}, state, plane}
}

func NewPointCloudDetectionFrame(ts float64, state ChangeState, id TrackableID, tracking TrackingState, identifiers []int64, positions []Vector3, confidence []float32) PointCloudDetectionFrame {
	return PointCloudDetectionFrame{baseFrame{ts}, state, id, tracking, identifiers, positions, confidence}
}

func NewMeshDetectionFrame(ts float64, state ChangeState, instance TrackableID, subMeshes []SubMesh) MeshDetectionFrame {
	return MeshDetectionFrame{baseFrame{ts}, state, instance, subMeshes}
}
