package sessionstream

import (
	"fmt"
	"strings"

	"github.com/cake-lab/arflow-go/internal/arframe"
)

// Family entity-path segment names (§3 entity path convention).
const (
	segTransform  = "transform_frame"
	segColor      = "color_frame"
	segDepth      = "depth_frame"
	segGyroscope  = "gyroscope_frame"
	segAudio      = "audio_frame"
	segPlane      = "plane_detection_frame"
	segPointCloud = "point_cloud_detection_frame"
	segMesh       = "mesh_detection_frame"
)

// deviceRoot returns "<session_name>_<session_id>/<device_model>_<device_name>_<device_uid>".
func deviceRoot(session *arframe.Session, device arframe.Device) string {
	return fmt.Sprintf("%s/%s",
		sanitize(fmt.Sprintf("%s_%s", session.Metadata.Name, session.ID)),
		sanitize(fmt.Sprintf("%s_%s_%s", device.Model, device.Name, device.UID)),
	)
}

// entityPath joins a device root with a frame family and any additional
// path components (dimensions, sub-identifiers), sanitizing each segment.
func entityPath(session *arframe.Session, device arframe.Device, family string, parts ...string) string {
	segments := append([]string{deviceRoot(session, device), family}, parts...)
	for i, s := range segments {
		if i == 0 {
			continue // already sanitized per-segment in deviceRoot
		}
		segments[i] = sanitize(s)
	}
	return strings.Join(segments, "/")
}

// sanitize replaces characters outside the recorder's safe alphabet
// (letters, digits, '_', '-', '.') with '_', matching the escape-quoting
// requirement on entity path segments.
func sanitize(segment string) string {
	var b strings.Builder
	b.Grow(len(segment))
	for _, r := range segment {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func dimensions(width, height int) string {
	return fmt.Sprintf("%dx%d", width, height)
}
