// Package registry implements the process-wide session_id -> SessionStream
// mapping (§4.4): creation, lookup, listing, deletion, and device
// membership mutation, all funneled through a single lock per the
// shared-resource policy in §5: mutations hold it exclusively, lookups
// share it.
package registry

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/cake-lab/arflow-go/internal/arerrors"
	"github.com/cake-lab/arflow-go/internal/arframe"
	"github.com/cake-lab/arflow-go/internal/decode"
	"github.com/cake-lab/arflow-go/internal/logging"
	"github.com/cake-lab/arflow-go/internal/recorder"
)

// CreateRequest carries the originating device and session metadata for a
// new session (§6.1 CreateSession).
type CreateRequest struct {
	Device   arframe.Device
	Metadata arframe.SessionMetadata
}

// Hooks are fired synchronously after a registry mutation succeeds. Every
// field may be nil; a nil hook is simply not called. A panicking hook is
// recovered and logged, never allowed to corrupt registry state, but the
// mutation that triggered it reports back as an Internal error (§9 user
// hooks).
type Hooks struct {
	OnCreateSession func(session arframe.Session)
	OnJoinSession   func(session arframe.Session, device arframe.Device)
	OnLeaveSession  func(session arframe.Session, device arframe.Device)
}

type entry struct {
	session *arframe.Session
	stream  StreamOwner
}

// StreamOwner is the subset of sessionstream.Stream the registry needs
// without importing that package directly, avoiding an import cycle.
// rpcserver constructs the concrete *sessionstream.Stream and hands it to
// the registry through Config.NewStream; StreamOwner lets the registry
// manage its lifetime without knowing its concrete type.
type StreamOwner interface {
	Disconnect() error
}

// Registry is the process-wide session map. Zero value is not usable; use
// New.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	adapter recorder.Adapter
	appID   string
	saveDir string // empty in live mode

	logger    *logging.Logger
	hooks     Hooks
	newStream func(session *arframe.Session, handle recorder.Handle) StreamOwner

	spaceChecker   SpaceChecker
	warnFreeBytes  int64
	blockFreeBytes int64
}

// Config configures a new Registry.
type Config struct {
	Adapter       recorder.Adapter
	ApplicationID string
	SaveDir       string // empty string means live mode, no per-session file
	SpawnViewer   bool
	Logger        *logging.Logger
	Hooks         Hooks
	MeshDecoder   decode.MeshDecoder

	// NewStream constructs the per-session StreamOwner (in practice a
	// *sessionstream.Stream) bound to the given session and recorder
	// handle. Required; Registry has no default since sessionstream would
	// otherwise import this package's adapter/logger types back.
	NewStream func(session *arframe.Session, handle recorder.Handle) StreamOwner

	// SpaceChecker reports free bytes on SaveDir's filesystem before a new
	// archival stream is directed to file. Defaults to statfs-backed
	// checking when unset and SaveDir is non-empty; live mode (empty
	// SaveDir) never runs the check.
	SpaceChecker   SpaceChecker
	WarnFreeBytes  int64 // below this, log a warning but proceed
	BlockFreeBytes int64 // below this, refuse to create the session
}

// New constructs a Registry. It does not validate live/archival mode
// itself; that precondition belongs to the RPC servicer (§4.5, P5), which
// owns construction-time mode enforcement.
func New(cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetLogger("registry")
	}
	spaceChecker := cfg.SpaceChecker
	if spaceChecker == nil && cfg.SaveDir != "" {
		spaceChecker = statfsFreeBytes
	}
	r := &Registry{
		sessions:       make(map[string]*entry),
		adapter:        cfg.Adapter,
		appID:          cfg.ApplicationID,
		saveDir:        cfg.SaveDir,
		logger:         logger,
		hooks:          cfg.Hooks,
		newStream:      cfg.NewStream,
		spaceChecker:   spaceChecker,
		warnFreeBytes:  cfg.WarnFreeBytes,
		blockFreeBytes: cfg.BlockFreeBytes,
	}
	return r
}

// Create mints a UUID, instantiates a recording stream, optionally directs
// it to a file, inserts the session, fires OnCreateSession, and returns
// the new descriptor.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (arframe.Session, error) {
	if r.saveDir != "" && r.spaceChecker != nil && (r.blockFreeBytes > 0 || r.warnFreeBytes > 0) {
		free, err := r.spaceChecker(r.saveDir)
		if err == nil {
			if r.blockFreeBytes > 0 && free < r.blockFreeBytes {
				return arframe.Session{}, arerrors.NewResourceExhausted(
					"save directory %s has %d bytes free, below the %d byte minimum", r.saveDir, free, r.blockFreeBytes)
			}
			if r.warnFreeBytes > 0 && free < r.warnFreeBytes {
				r.logger.WithFields(logging.Fields{"save_dir": r.saveDir, "free_bytes": free}).Warn("save directory low on free space")
			}
		}
	}

	id := uuid.New().String()
	session := &arframe.Session{
		ID:       id,
		Metadata: req.Metadata,
		Devices:  []arframe.Device{req.Device},
	}

	handle, err := r.adapter.NewStream(ctx, r.appID, id, r.saveDir == "")
	if err != nil {
		return arframe.Session{}, arerrors.NewInternal(err, "create recorder stream for session %s", id)
	}

	if r.saveDir != "" {
		path := req.Metadata.SavePath
		if path == "" {
			path = filepath.Join(r.saveDir, id+".rrd")
		}
		if err := r.adapter.DirectToFile(handle, path); err != nil {
			return arframe.Session{}, arerrors.NewInternal(err, "direct session %s to file", id)
		}
	}

	stream := r.newStream(session, handle)

	r.mu.Lock()
	r.sessions[id] = &entry{session: session, stream: stream}
	r.mu.Unlock()

	if r.hooks.OnCreateSession != nil {
		if r.safeHook(func() { r.hooks.OnCreateSession(*session) }) {
			return *session, arerrors.NewInternal(nil, "create session %s: on_create_session hook panicked", id)
		}
	}
	return *session, nil
}

// Get returns a copy of the session descriptor for id.
func (r *Registry) Get(id string) (arframe.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return arframe.Session{}, arerrors.NewNotFound("session %s not found", id)
	}
	return *e.session, nil
}

// List returns a snapshot of all live sessions (P1: no duplicates, by
// construction of the map).
func (r *Registry) List() []arframe.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]arframe.Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, *e.session)
	}
	return out
}

// Delete pops and disconnects the session's stream. Per P4, the stream is
// disconnected before Delete returns.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return arerrors.NewNotFound("session %s not found", id)
	}
	if err := e.stream.Disconnect(); err != nil {
		return arerrors.NewInternal(err, "disconnect session %s", id)
	}
	return nil
}

// Join appends device to the session's device list. NotFound if the
// session is absent, InvalidArgument if the device is already a member
// (P2: no duplicate device tuples).
func (r *Registry) Join(id string, device arframe.Device) (arframe.Session, error) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return arframe.Session{}, arerrors.NewNotFound("session %s not found", id)
	}
	if e.session.HasDevice(device) {
		r.mu.Unlock()
		return arframe.Session{}, arerrors.NewInvalidArgument("device %+v already joined session %s", device, id)
	}
	e.session.Devices = append(e.session.Devices, device)
	session := *e.session
	r.mu.Unlock()

	if r.hooks.OnJoinSession != nil {
		if r.safeHook(func() { r.hooks.OnJoinSession(session, device) }) {
			return session, arerrors.NewInternal(nil, "join session %s: on_join_session hook panicked", id)
		}
	}
	return session, nil
}

// Leave removes device from the session's device list. NotFound if the
// session is absent or the device is not a member.
func (r *Registry) Leave(id string, device arframe.Device) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return arerrors.NewNotFound("session %s not found", id)
	}
	idx := -1
	for i, d := range e.session.Devices {
		if d.Equal(device) {
			idx = i
			break
		}
	}
	if idx == -1 {
		r.mu.Unlock()
		return arerrors.NewNotFound("device %+v not in session %s", device, id)
	}
	e.session.Devices = append(e.session.Devices[:idx], e.session.Devices[idx+1:]...)
	session := *e.session
	r.mu.Unlock()

	if r.hooks.OnLeaveSession != nil {
		if r.safeHook(func() { r.hooks.OnLeaveSession(session, device) }) {
			return arerrors.NewInternal(nil, "leave session %s: on_leave_session hook panicked", id)
		}
	}
	return nil
}

// Stream returns the opaque stream owner for id so rpcserver (which
// constructs streams via Config.NewStream) can type-assert it back to
// *sessionstream.Stream. NotFound if the session is absent.
func (r *Registry) Stream(id string) (StreamOwner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, arerrors.NewNotFound("session %s not found", id)
	}
	return e.stream, nil
}

// DisconnectAll iterates the registry, disconnecting every stream handle;
// used by the servicer's shutdown path (§5 graceful shutdown step 3). It
// does not remove entries, since the process is exiting.
func (r *Registry) DisconnectAll() {
	r.mu.RLock()
	owners := make([]StreamOwner, 0, len(r.sessions))
	for _, e := range r.sessions {
		owners = append(owners, e.stream)
	}
	r.mu.RUnlock()

	for _, owner := range owners {
		if err := owner.Disconnect(); err != nil {
			r.logger.WithError(err).Warn("error disconnecting session stream during shutdown")
		}
	}
}

// safeHook recovers a panicking hook, logs it, and reports whether it
// panicked so the caller can return an Internal error after the mutation
// it guards has already landed (§9 user hooks).
func (r *Registry) safeHook(fn func()) (panicked bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithFields(logging.Fields{"panic": rec}).Error("registry hook panicked, recording otherwise unaffected")
			panicked = true
		}
	}()
	fn()
	return false
}
