package rpcserver

import (
	"fmt"

	"github.com/cake-lab/arflow-go/internal/arframe"
)

// This file defines the JSON wire shapes for requests/responses and the
// conversions to/from the core's internal arframe types. The wire format is
// this module's own JSON encoding of the RPCs in §6.1 — there is no
// generated protobuf schema to bind to (see the transport-substitution note
// in SPEC_FULL.md §3).

type deviceWire struct {
	Model string `json:"model"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	UID   string `json:"uid"`
}

func (w deviceWire) toDevice() arframe.Device {
	return arframe.Device{Model: w.Model, Name: w.Name, Type: arframe.DeviceType(w.Type), UID: w.UID}
}

func deviceToWire(d arframe.Device) deviceWire {
	return deviceWire{Model: d.Model, Name: d.Name, Type: string(d.Type), UID: d.UID}
}

type sessionMetadataWire struct {
	Name     string `json:"name"`
	SavePath string `json:"save_path,omitempty"`
}

type sessionWire struct {
	ID       string              `json:"id"`
	Metadata sessionMetadataWire `json:"metadata"`
	Devices  []deviceWire        `json:"devices"`
}

func sessionToWire(s arframe.Session) sessionWire {
	devices := make([]deviceWire, len(s.Devices))
	for i, d := range s.Devices {
		devices[i] = deviceToWire(d)
	}
	return sessionWire{
		ID:       s.ID,
		Metadata: sessionMetadataWire{Name: s.Metadata.Name, SavePath: s.Metadata.SavePath},
		Devices:  devices,
	}
}

type vec2Wire struct{ X, Y float32 }
type vec3Wire struct{ X, Y, Z float32 }
type quatWire struct{ X, Y, Z, W float32 }

func (v vec2Wire) toVector2() arframe.Vector2 { return arframe.Vector2{X: v.X, Y: v.Y} }
func (v vec3Wire) toVector3() arframe.Vector3 { return arframe.Vector3{X: v.X, Y: v.Y, Z: v.Z} }
func (q quatWire) toQuaternion() arframe.Quaternion {
	return arframe.Quaternion{X: q.X, Y: q.Y, Z: q.Z, W: q.W}
}

type planeWire struct {
	Data        []byte `json:"data"`
	RowStride   int    `json:"row_stride"`
	PixelStride int    `json:"pixel_stride"`
}

type imageWire struct {
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	Format    string      `json:"format"`
	Timestamp float64     `json:"timestamp"`
	Planes    []planeWire `json:"planes"`
}

func (w imageWire) toXRCpuImage() arframe.XRCpuImage {
	planes := make([]arframe.Plane, len(w.Planes))
	for i, p := range w.Planes {
		planes[i] = arframe.Plane{Data: p.Data, RowStride: p.RowStride, PixelStride: p.PixelStride}
	}
	return arframe.XRCpuImage{
		Width: w.Width, Height: w.Height,
		Format: arframe.ImageFormat(w.Format), Timestamp: w.Timestamp,
		Planes: planes,
	}
}

type intrinsicsWire struct {
	FocalLength    vec2Wire                    `json:"focal_length"`
	PrincipalPoint vec2Wire                    `json:"principal_point"`
	Resolution     struct{ Width, Height int } `json:"resolution,omitempty"`
}

func (w intrinsicsWire) toIntrinsics() arframe.Intrinsics {
	intr := arframe.Intrinsics{
		FocalLength:    w.FocalLength.toVector2(),
		PrincipalPoint: w.PrincipalPoint.toVector2(),
	}
	intr.Resolution.Width = w.Resolution.Width
	intr.Resolution.Height = w.Resolution.Height
	return intr
}

type trackableIDWire struct {
	Sub1 string `json:"sub_id_1"`
	Sub2 string `json:"sub_id_2"`
}

func (w trackableIDWire) toTrackableID() arframe.TrackableID {
	return arframe.TrackableID{Sub1: w.Sub1, Sub2: w.Sub2}
}

type arPlaneWire struct {
	Center        vec3Wire        `json:"center"`
	Normal        vec3Wire        `json:"normal"`
	Size          vec2Wire        `json:"size"`
	Boundary      []vec2Wire      `json:"boundary"`
	TrackableID   trackableIDWire `json:"trackable_id"`
	TrackingState string          `json:"tracking_state"`
}

func (w arPlaneWire) toARPlane() arframe.ARPlane {
	boundary := make([]arframe.Vector2, len(w.Boundary))
	for i, p := range w.Boundary {
		boundary[i] = p.toVector2()
	}
	return arframe.ARPlane{
		Center: w.Center.toVector3(), Normal: w.Normal.toVector3(), Size: w.Size.toVector2(),
		Boundary: boundary, TrackableID: w.TrackableID.toTrackableID(),
		TrackingState: arframe.TrackingState(w.TrackingState),
	}
}

// frameWire is a flat, tagged-union JSON encoding of arframe.ARFrame: exactly
// the fields for "kind" are expected to be populated, mirroring the wire
// protocol's WhichOneof-style discriminator (§9 tagged-variant dispatch).
type frameWire struct {
	Kind            string           `json:"kind"`
	DeviceTimestamp float64          `json:"device_timestamp"`
	Pose            *[12]float32     `json:"pose,omitempty"`
	Image           *imageWire       `json:"image,omitempty"`
	Intrinsics      *intrinsicsWire  `json:"intrinsics,omitempty"`
	Smoothing       bool             `json:"temporal_smoothing_enabled,omitempty"`
	Attitude        quatWire         `json:"attitude,omitempty"`
	RotationRate    vec3Wire         `json:"rotation_rate,omitempty"`
	Gravity         vec3Wire         `json:"gravity,omitempty"`
	Acceleration    vec3Wire         `json:"acceleration,omitempty"`
	Samples         []float32        `json:"samples,omitempty"`
	State           string           `json:"state,omitempty"`
	Plane           *arPlaneWire     `json:"plane,omitempty"`
	TrackableID     *trackableIDWire `json:"trackable_id,omitempty"`
	TrackingState   string           `json:"tracking_state,omitempty"`
	Identifiers     []int64          `json:"identifiers,omitempty"`
	Positions       []vec3Wire       `json:"positions,omitempty"`
	Confidence      []float32        `json:"confidence,omitempty"`
	InstanceID      *trackableIDWire `json:"instance_id,omitempty"`
	SubMeshes       [][]byte         `json:"sub_meshes,omitempty"`
}

func (w frameWire) toARFrame() (arframe.ARFrame, error) {
	switch arframe.Kind(w.Kind) {
	case arframe.KindTransform:
		if w.Pose == nil {
			return nil, fmt.Errorf("transform frame missing pose")
		}
		return arframe.NewTransformFrame(w.DeviceTimestamp, *w.Pose), nil
	case arframe.KindColor:
		if w.Image == nil {
			return nil, fmt.Errorf("color frame missing image")
		}
		var intr arframe.Intrinsics
		if w.Intrinsics != nil {
			intr = w.Intrinsics.toIntrinsics()
		}
		return arframe.NewColorFrame(w.DeviceTimestamp, w.Image.toXRCpuImage(), intr), nil
	case arframe.KindDepth:
		if w.Image == nil {
			return nil, fmt.Errorf("depth frame missing image")
		}
		return arframe.NewDepthFrame(w.DeviceTimestamp, w.Image.toXRCpuImage(), w.Smoothing), nil
	case arframe.KindGyroscope:
		return arframe.NewGyroscopeFrame(w.DeviceTimestamp, w.Attitude.toQuaternion(),
			w.RotationRate.toVector3(), w.Gravity.toVector3(), w.Acceleration.toVector3()), nil
	case arframe.KindAudio:
		return arframe.NewAudioFrame(w.DeviceTimestamp, w.Samples), nil
	case arframe.KindPlaneDetection:
		if w.Plane == nil {
			return nil, fmt.Errorf("plane detection frame missing plane")
		}
		return arframe.NewPlaneDetectionFrame(w.DeviceTimestamp, arframe.ChangeState(w.State), w.Plane.toARPlane()), nil
	case arframe.KindPointCloud:
		if w.TrackableID == nil {
			return nil, fmt.Errorf("point cloud frame missing trackable_id")
		}
		positions := make([]arframe.Vector3, len(w.Positions))
		for i, p := range w.Positions {
			positions[i] = p.toVector3()
		}
		return arframe.NewPointCloudDetectionFrame(w.DeviceTimestamp, arframe.ChangeState(w.State),
			w.TrackableID.toTrackableID(), arframe.TrackingState(w.TrackingState),
			w.Identifiers, positions, w.Confidence), nil
	case arframe.KindMeshDetection:
		if w.InstanceID == nil {
			return nil, fmt.Errorf("mesh detection frame missing instance_id")
		}
		subMeshes := make([]arframe.SubMesh, len(w.SubMeshes))
		for i, d := range w.SubMeshes {
			subMeshes[i] = arframe.SubMesh{Data: d}
		}
		return arframe.NewMeshDetectionFrame(w.DeviceTimestamp, arframe.ChangeState(w.State),
			w.InstanceID.toTrackableID(), subMeshes), nil
	default:
		return nil, fmt.Errorf("unrecognized frame kind %q", w.Kind)
	}
}
