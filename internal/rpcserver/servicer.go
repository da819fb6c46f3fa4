// Package rpcserver implements the eight-RPC surface described in §4.5/§6.1:
// session lifecycle plus the two frame-ingest RPCs, routed through the
// session registry and each session's recording stream. The wire transport
// (JSON-RPC 2.0 over WebSocket) lives in transport.go; this file is
// transport-agnostic so it can be driven directly from tests or the CLI.
package rpcserver

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/cake-lab/arflow-go/internal/arerrors"
	"github.com/cake-lab/arflow-go/internal/arframe"
	"github.com/cake-lab/arflow-go/internal/decode"
	"github.com/cake-lab/arflow-go/internal/logging"
	"github.com/cake-lab/arflow-go/internal/recorder"
	"github.com/cake-lab/arflow-go/internal/registry"
	"github.com/cake-lab/arflow-go/internal/sessionstream"
)

// Config configures a Servicer. Exactly one of SpawnViewer or SaveDir must be
// set (P5): SpawnViewer=true, SaveDir="" is live mode; SpawnViewer=false,
// SaveDir=<path> is archival mode. Any other combination is a
// construction-time InvalidArgument.
type Config struct {
	Adapter       recorder.Adapter
	ApplicationID string
	SpawnViewer   bool
	SaveDir       string
	MeshDecoder   decode.MeshDecoder
	Logger        *logging.Logger
	Hooks         Hooks

	// WarnFreeBytes/BlockFreeBytes gate archival-mode session creation on
	// free disk space under SaveDir (§5); zero disables the corresponding
	// check.
	WarnFreeBytes  int64
	BlockFreeBytes int64
}

// Servicer implements the RPC surface over a session registry. Zero value is
// not usable; use New.
type Servicer struct {
	registry *registry.Registry
	logger   *logging.Logger
	hooks    Hooks
}

// New validates the operating mode (P5, S4) and constructs a Servicer
// wrapping a fresh session registry.
func New(cfg Config) (*Servicer, error) {
	if cfg.SpawnViewer == (cfg.SaveDir != "") {
		return nil, arerrors.NewInvalidArgument(
			"rpcserver: exactly one of spawn_viewer or save_dir must be set (spawn_viewer=%v save_dir=%q)",
			cfg.SpawnViewer, cfg.SaveDir)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetLogger("rpcserver")
	}

	meshDecoder := cfg.MeshDecoder
	if meshDecoder == nil {
		meshDecoder = decode.DefaultMeshDecoder{}
	}

	reg := registry.New(registry.Config{
		Adapter:       cfg.Adapter,
		ApplicationID: cfg.ApplicationID,
		SaveDir:       cfg.SaveDir,
		SpawnViewer:   cfg.SpawnViewer,
		Logger:        logger,
		MeshDecoder:   meshDecoder,
		Hooks: registry.Hooks{
			OnCreateSession: cfg.Hooks.OnCreateSession,
			OnJoinSession:   cfg.Hooks.OnJoinSession,
			OnLeaveSession:  cfg.Hooks.OnLeaveSession,
		},
		NewStream: func(session *arframe.Session, handle recorder.Handle) registry.StreamOwner {
			return sessionstream.New(session, cfg.Adapter, handle, logger, meshDecoder)
		},
		WarnFreeBytes:  cfg.WarnFreeBytes,
		BlockFreeBytes: cfg.BlockFreeBytes,
	})

	return &Servicer{registry: reg, logger: logger, hooks: cfg.Hooks}, nil
}

// CreateSession mints a new session and adds the originating device.
func (s *Servicer) CreateSession(ctx context.Context, req registry.CreateRequest) (arframe.Session, error) {
	return s.registry.Create(ctx, req)
}

// DeleteSession pops and disconnects a session's recording stream.
func (s *Servicer) DeleteSession(_ context.Context, sessionID string) error {
	return s.registry.Delete(sessionID)
}

// GetSession reads a session descriptor.
func (s *Servicer) GetSession(_ context.Context, sessionID string) (arframe.Session, error) {
	return s.registry.Get(sessionID)
}

// ListSessions returns a snapshot of all live sessions.
func (s *Servicer) ListSessions(_ context.Context) []arframe.Session {
	return s.registry.List()
}

// JoinSession appends a device to a session's membership list.
func (s *Servicer) JoinSession(_ context.Context, sessionID string, device arframe.Device) (arframe.Session, error) {
	return s.registry.Join(sessionID, device)
}

// LeaveSession removes a device from a session's membership list.
func (s *Servicer) LeaveSession(_ context.Context, sessionID string, device arframe.Device) error {
	return s.registry.Leave(sessionID, device)
}

// streamDispatcher is the subset of *sessionstream.Stream the servicer needs
// to route a partitioned frame batch. Declared locally (rather than reusing
// registry.StreamOwner, which only exposes Disconnect) so the servicer does
// not need its own import-cycle workaround: this package already imports
// sessionstream directly to build the registry's stream factory above.
type streamDispatcher interface {
	SaveTransformFrames(device arframe.Device, frames []arframe.TransformFrame) error
	SaveColorFrames(device arframe.Device, frames []arframe.ColorFrame) error
	SaveDepthFrames(device arframe.Device, frames []arframe.DepthFrame) error
	SaveGyroscopeFrames(device arframe.Device, frames []arframe.GyroscopeFrame) error
	SaveAudioFrames(device arframe.Device, frames []arframe.AudioFrame) error
	SavePlaneDetectionFrames(device arframe.Device, frames []arframe.PlaneDetectionFrame) error
	SavePointCloudDetectionFrames(device arframe.Device, frames []arframe.PointCloudDetectionFrame) error
	SaveMeshDetectionFrames(device arframe.Device, frames []arframe.MeshDetectionFrame) error
}

// groupedFrames is the result of partitioning a SaveARFrames batch by its
// tagged-variant discriminator (§9 tagged-variant dispatch).
type groupedFrames struct {
	transform  []arframe.TransformFrame
	color      []arframe.ColorFrame
	depth      []arframe.DepthFrame
	gyroscope  []arframe.GyroscopeFrame
	audio      []arframe.AudioFrame
	plane      []arframe.PlaneDetectionFrame
	pointCloud []arframe.PointCloudDetectionFrame
	mesh       []arframe.MeshDetectionFrame
}

func (s *Servicer) partition(frames []arframe.ARFrame) groupedFrames {
	var g groupedFrames
	for _, f := range frames {
		switch v := f.(type) {
		case arframe.TransformFrame:
			g.transform = append(g.transform, v)
		case arframe.ColorFrame:
			g.color = append(g.color, v)
		case arframe.DepthFrame:
			g.depth = append(g.depth, v)
		case arframe.GyroscopeFrame:
			g.gyroscope = append(g.gyroscope, v)
		case arframe.AudioFrame:
			g.audio = append(g.audio, v)
		case arframe.PlaneDetectionFrame:
			g.plane = append(g.plane, v)
		case arframe.PointCloudDetectionFrame:
			g.pointCloud = append(g.pointCloud, v)
		case arframe.MeshDetectionFrame:
			g.mesh = append(g.mesh, v)
		default:
			s.logger.WithField("type", "unknown").Warn("save_ar_frames: frame with unrecognized discriminator skipped")
		}
	}
	return g
}

// SaveARFrames partitions frames by family, dispatches each non-empty group
// to the session's stream in parallel (independent groups touch independent
// entity paths, so concurrent dispatch is safe; each Stream method still
// serializes its own writes internally), then fires the per-family hooks
// followed by the generic on_save_ar_frames hook (P6).
func (s *Servicer) SaveARFrames(ctx context.Context, sessionID string, device arframe.Device, frames []arframe.ARFrame) error {
	if len(frames) == 0 {
		return arerrors.NewInvalidArgument("save_ar_frames: frame batch must not be empty")
	}

	session, err := s.registry.Get(sessionID)
	if err != nil {
		return err
	}
	if !session.HasDevice(device) {
		return arerrors.NewInvalidArgument("save_ar_frames: device %+v is not a member of session %s", device, sessionID)
	}

	owner, err := s.registry.Stream(sessionID)
	if err != nil {
		return err
	}
	stream, ok := owner.(streamDispatcher)
	if !ok {
		return arerrors.NewInternal(nil, "save_ar_frames: session stream does not support frame dispatch")
	}

	groups := s.partition(frames)

	g, _ := errgroup.WithContext(ctx)
	if len(groups.transform) > 0 {
		g.Go(func() error { return stream.SaveTransformFrames(device, groups.transform) })
	}
	if len(groups.color) > 0 {
		g.Go(func() error { return stream.SaveColorFrames(device, groups.color) })
	}
	if len(groups.depth) > 0 {
		g.Go(func() error { return stream.SaveDepthFrames(device, groups.depth) })
	}
	if len(groups.gyroscope) > 0 {
		g.Go(func() error { return stream.SaveGyroscopeFrames(device, groups.gyroscope) })
	}
	if len(groups.audio) > 0 {
		g.Go(func() error { return stream.SaveAudioFrames(device, groups.audio) })
	}
	if len(groups.plane) > 0 {
		g.Go(func() error { return stream.SavePlaneDetectionFrames(device, groups.plane) })
	}
	if len(groups.pointCloud) > 0 {
		g.Go(func() error { return stream.SavePointCloudDetectionFrames(device, groups.pointCloud) })
	}
	if len(groups.mesh) > 0 {
		g.Go(func() error { return stream.SaveMeshDetectionFrames(device, groups.mesh) })
	}

	if err := g.Wait(); err != nil {
		return arerrors.NewInternal(err, "save_ar_frames: recorder write failed")
	}

	if s.fireSaveHooks(session, device, groups, frames) {
		return arerrors.NewInternal(nil, "save_ar_frames: session %s hook panicked after a successful write", sessionID)
	}
	return nil
}

// SaveSynchronizedARFrame is SaveARFrames for a single multi-family tick
// (§4.5): it expands the populated families into a tagged-variant list and
// reuses the same partition/dispatch/hook path.
func (s *Servicer) SaveSynchronizedARFrame(ctx context.Context, sessionID string, device arframe.Device, frame SynchronizedFrame) error {
	return s.SaveARFrames(ctx, sessionID, device, frame.frames())
}

// fireSaveHooks runs every applicable save hook and reports whether any of
// them panicked. The write these hooks observe has already landed by the
// time they fire, so a panic cannot roll it back; it only changes the RPC's
// return value (§9 user hooks).
func (s *Servicer) fireSaveHooks(session arframe.Session, device arframe.Device, groups groupedFrames, all []arframe.ARFrame) bool {
	panicked := false
	if s.hooks.OnSaveTransformFrames != nil && len(groups.transform) > 0 {
		panicked = s.safeHook(func() { s.hooks.OnSaveTransformFrames(session, device, groups.transform) }) || panicked
	}
	if s.hooks.OnSaveColorFrames != nil && len(groups.color) > 0 {
		panicked = s.safeHook(func() { s.hooks.OnSaveColorFrames(session, device, groups.color) }) || panicked
	}
	if s.hooks.OnSaveDepthFrames != nil && len(groups.depth) > 0 {
		panicked = s.safeHook(func() { s.hooks.OnSaveDepthFrames(session, device, groups.depth) }) || panicked
	}
	if s.hooks.OnSaveGyroscopeFrames != nil && len(groups.gyroscope) > 0 {
		panicked = s.safeHook(func() { s.hooks.OnSaveGyroscopeFrames(session, device, groups.gyroscope) }) || panicked
	}
	if s.hooks.OnSaveAudioFrames != nil && len(groups.audio) > 0 {
		panicked = s.safeHook(func() { s.hooks.OnSaveAudioFrames(session, device, groups.audio) }) || panicked
	}
	if s.hooks.OnSavePlaneFrames != nil && len(groups.plane) > 0 {
		panicked = s.safeHook(func() { s.hooks.OnSavePlaneFrames(session, device, groups.plane) }) || panicked
	}
	if s.hooks.OnSavePointCloudFrames != nil && len(groups.pointCloud) > 0 {
		panicked = s.safeHook(func() { s.hooks.OnSavePointCloudFrames(session, device, groups.pointCloud) }) || panicked
	}
	if s.hooks.OnSaveMeshFrames != nil && len(groups.mesh) > 0 {
		panicked = s.safeHook(func() { s.hooks.OnSaveMeshFrames(session, device, groups.mesh) }) || panicked
	}
	if s.hooks.OnSaveARFrames != nil {
		panicked = s.safeHook(func() { s.hooks.OnSaveARFrames(session, device, all) }) || panicked
	}
	return panicked
}

// safeHook recovers a panicking hook, logs it, and reports whether it
// panicked so the caller can surface an Internal error (§9 user hooks)
// instead of letting the panic corrupt the servicer or crash the process.
func (s *Servicer) safeHook(fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logging.Fields{"panic": r}).Error("rpcserver hook panicked, recording otherwise unaffected")
			panicked = true
		}
	}()
	fn()
	return false
}

// Shutdown disconnects every live session's recording stream (§5 graceful
// shutdown step 3), in preparation for process exit.
func (s *Servicer) Shutdown() {
	s.registry.DisconnectAll()
}

// Registry exposes the underlying session registry for components (health
// monitoring, maintenance scheduling) that need read access to session
// state without going through the RPC surface.
func (s *Servicer) Registry() *registry.Registry {
	return s.registry
}
