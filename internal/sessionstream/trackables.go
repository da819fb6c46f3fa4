package sessionstream

import (
	"fmt"

	"github.com/cake-lab/arflow-go/internal/arframe"
	"github.com/cake-lab/arflow-go/internal/decode"
	"github.com/cake-lab/arflow-go/internal/logging"
	"github.com/cake-lab/arflow-go/internal/recorder"
)

var (
	trackingColor = [3]uint8{0, 200, 0}
	lostColor     = [3]uint8{200, 0, 0}
)

// isPositivePlaneChange applies the corrected reading of the source's
// filter predicate (§9 Open Question a): the non-empty-boundary check
// gates both ADDED and UPDATED, not UPDATED alone.
func isPositivePlaneChange(f arframe.PlaneDetectionFrame) bool {
	if len(f.Plane.Boundary) == 0 {
		return false
	}
	return f.State == arframe.ChangeAdded || f.State == arframe.ChangeUpdated
}

// SavePlaneDetectionFrames partitions into positively- and
// negatively-changed planes. Positives get a 3D line-strip, a trackable-id
// entity component, a tracking-state color, and the state name as text.
// Negatives get a recursive clear at the plane's own entity path.
func (s *Stream) SavePlaneDetectionFrames(device arframe.Device, frames []arframe.PlaneDetectionFrame) error {
	if len(frames) == 0 {
		s.warnEmpty("save_plane_detection_frames")
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for _, f := range frames {
		path := entityPath(s.session, device, segPlane, f.Plane.TrackableID.String())

		if !isPositivePlaneChange(f) {
			if f.State == arframe.ChangeRemoved {
				s.adapter.SetTime(s.handle, recorder.TimelineDevice, f.Timestamp())
				if err := s.adapter.Clear(s.handle, path, true); err != nil {
					return fmt.Errorf("clear removed plane: %w", err)
				}
			}
			continue
		}

		boundary3D := decode.PlaneBoundaryTo3D(f.Plane.Boundary, f.Plane.Normal, f.Plane.Center)
		color := lostColor
		if f.Plane.TrackingState == arframe.TrackingStateTracking {
			color = trackingColor
		}

		s.adapter.SetTime(s.handle, recorder.TimelineDevice, f.Timestamp())
		if err := s.adapter.Log(s.handle, path, boundary3D); err != nil {
			return fmt.Errorf("log plane boundary: %w", err)
		}
		if err := s.adapter.LogStatic(s.handle, path, color, string(f.Plane.TrackingState), f.Plane.TrackableID.String()); err != nil {
			return fmt.Errorf("log static plane properties: %w", err)
		}
	}
	return nil
}

// SavePointCloudDetectionFrames emits one send_columns call at cloud
// granularity (color + tracking-state text keyed by trackable id) and then
// one send_columns call per point (per-point entity path, 3D position); the
// points of a cloud are not batched into a single call. Per §9 Open
// Question b, each per-point call is indexed by the enclosing frame's own
// device_timestamp, so the recorder's batch-length invariant holds.
func (s *Stream) SavePointCloudDetectionFrames(device arframe.Device, frames []arframe.PointCloudDetectionFrame) error {
	if len(frames) == 0 {
		s.warnEmpty("save_point_cloud_detection_frames")
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var cloudSeconds []float64
	var cloudColors, cloudTexts []interface{}

	for _, f := range frames {
		cloudPath := entityPath(s.session, device, segPointCloud, f.TrackableID.String())

		if f.State == arframe.ChangeRemoved {
			s.adapter.SetTime(s.handle, recorder.TimelineDevice, f.Timestamp())
			if err := s.adapter.Clear(s.handle, cloudPath, true); err != nil {
				return fmt.Errorf("clear removed point cloud: %w", err)
			}
			continue
		}

		color := lostColor
		if f.TrackingState == arframe.TrackingStateTracking {
			color = trackingColor
		}
		cloudSeconds = append(cloudSeconds, f.Timestamp())
		cloudColors = append(cloudColors, color)
		cloudTexts = append(cloudTexts, string(f.TrackingState))

		if err := s.savePointCloudPoints(device, cloudPath, f); err != nil {
			return err
		}
	}

	if len(cloudSeconds) == 0 {
		return nil
	}
	cloudTimeline := []recorder.TimeColumn{{Timeline: recorder.TimelineDevice, Seconds: cloudSeconds}}
	aggregatePath := entityPath(s.session, device, segPointCloud)
	return s.adapter.SendColumns(s.handle, aggregatePath, cloudTimeline,
		recorder.ColumnBatch{Name: "Color", Values: cloudColors},
		recorder.ColumnBatch{Name: "Text", Values: cloudTexts},
	)
}

func (s *Stream) savePointCloudPoints(device arframe.Device, cloudPath string, f arframe.PointCloudDetectionFrame) error {
	n := len(f.Positions)
	for i := 0; i < n; i++ {
		pointID := fmt.Sprintf("point_%d", f.Identifiers[i])
		pointPath := cloudPath + "/" + pointID
		timelines := []recorder.TimeColumn{{Timeline: recorder.TimelineDevice, Seconds: []float64{f.Timestamp()}}}
		if err := s.adapter.SendColumns(s.handle, pointPath, timelines,
			recorder.ColumnBatch{Name: "Position3D", Values: []interface{}{f.Positions[i]}},
		); err != nil {
			return fmt.Errorf("send point cloud point columns: %w", err)
		}
	}
	return nil
}

// SaveMeshDetectionFrames iterates positive frames, setting the
// device-timestamp cursor and decoding each sub-mesh before logging a
// per-mesh entity; mesh primitives are not columnar because vertex/face
// counts vary per frame. Negatives clear recursively.
func (s *Stream) SaveMeshDetectionFrames(device arframe.Device, frames []arframe.MeshDetectionFrame) error {
	if len(frames) == 0 {
		s.warnEmpty("save_mesh_detection_frames")
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var clearSeconds []float64
	var clearPaths []string

	for _, f := range frames {
		path := entityPath(s.session, device, segMesh, f.InstanceID.String())

		if f.State == arframe.ChangeRemoved {
			clearSeconds = append(clearSeconds, f.Timestamp())
			clearPaths = append(clearPaths, path)
			continue
		}

		s.adapter.SetTime(s.handle, recorder.TimelineDevice, f.Timestamp())
		for i, sub := range f.SubMeshes {
			mesh, err := s.mesh.Decode(sub.Data)
			if err != nil {
				s.logger.WithFields(logging.Fields{
					"instance": f.InstanceID.String(),
					"sub_mesh": i,
					"error":    err.Error(),
				}).Warn("save_mesh_detection_frames: decode failed, skipping sub-mesh")
				continue
			}
			subPath := fmt.Sprintf("%s/%d", path, i)
			if err := s.adapter.Log(s.handle, subPath, mesh); err != nil {
				return fmt.Errorf("log mesh: %w", err)
			}
		}
	}

	for i, path := range clearPaths {
		s.adapter.SetTime(s.handle, recorder.TimelineDevice, clearSeconds[i])
		if err := s.adapter.Clear(s.handle, path, true); err != nil {
			return fmt.Errorf("clear removed mesh: %w", err)
		}
	}
	return nil
}
