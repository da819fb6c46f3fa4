package rpcserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cake-lab/arflow-go/internal/arerrors"
	"github.com/cake-lab/arflow-go/internal/arframe"
	"github.com/cake-lab/arflow-go/internal/logging"
	"github.com/cake-lab/arflow-go/internal/registry"
	"github.com/cake-lab/arflow-go/internal/workerpool"
)

// JSON-RPC 2.0 wire envelope, following the teacher's WebSocketJsonRpcServer
// shapes (internal/websocket/types.go) trimmed to what this core needs: no
// authentication/permission fields, since auth is an explicit spec Non-goal.
type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	ID      interface{}     `json:"id,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id,omitempty"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// TransportConfig configures the WebSocket JSON-RPC front end. Defaults
// mirror DefaultServerConfig in the teacher's internal/websocket/types.go,
// including its 1000-connection cap.
type TransportConfig struct {
	Host           string
	Port           int
	Path           string
	MaxConnections int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	PongWait       time.Duration
	MaxMessageSize int64

	// WorkerPoolSize bounds concurrent RPC dispatch across all connections
	// (§5: "N worker threads, N=10 by default").
	WorkerPoolSize    int
	WorkerTaskTimeout time.Duration

	// ShutdownTimeout bounds the graceful drain on Stop (§5, 30s default).
	ShutdownTimeout time.Duration

	Logger *logging.Logger
}

// DefaultTransportConfig returns the spec's defaults: port 8500, N=10 worker
// dispatch, 30s graceful shutdown.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Host:              "0.0.0.0",
		Port:              8500,
		Path:              "/ws",
		MaxConnections:    1000,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Second,
		PingInterval:      30 * time.Second,
		PongWait:          60 * time.Second,
		MaxMessageSize:    4 * 1024 * 1024,
		WorkerPoolSize:    10,
		WorkerTaskTimeout:  30 * time.Second,
		ShutdownTimeout:   30 * time.Second,
	}
}

// Transport serves the Servicer's RPCs as JSON-RPC 2.0 requests over
// gorilla/websocket connections, with per-message compression enabled as
// the WebSocket analogue of the original gRPC channel's gzip compression
// (see SPEC_FULL.md §3). Request handling is bounded by a fixed-size worker
// pool rather than one goroutine per request, matching the spec's N=10
// worker-thread dispatch model.
type Transport struct {
	cfg      TransportConfig
	servicer *Servicer
	logger   *logging.Logger

	upgrader websocket.Upgrader
	pool     *workerpool.Pool

	httpServer *http.Server
	running    int32

	clients       map[string]*websocket.Conn
	clientsMu     sync.RWMutex
	clientCounter int64

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTransport wires a Transport in front of servicer. cfg's zero value is
// not directly usable; start from DefaultTransportConfig.
func NewTransport(servicer *Servicer, cfg TransportConfig) *Transport {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetLogger("rpcserver-transport")
	}
	return &Transport{
		cfg:      cfg,
		servicer: servicer,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    1024,
			WriteBufferSize:   1024,
			EnableCompression: true,
			CheckOrigin:       func(r *http.Request) bool { return true },
		},
		pool:     workerpool.New(cfg.WorkerPoolSize, cfg.WorkerTaskTimeout, logger),
		clients:  make(map[string]*websocket.Conn),
		stopChan: make(chan struct{}),
	}
}

// Start begins serving HTTP/WebSocket connections. It does not block.
func (t *Transport) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&t.running, 0, 1) {
		return fmt.Errorf("rpcserver transport already running")
	}
	if err := t.pool.Start(ctx); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc(t.cfg.Path, t.handleWebSocket)

	t.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", t.cfg.Host, t.cfg.Port),
		Handler:      mux,
		ReadTimeout:  t.cfg.ReadTimeout,
		WriteTimeout: t.cfg.WriteTimeout,
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := t.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.logger.WithError(err).Error("rpcserver transport listener failed")
		}
	}()

	t.logger.WithFields(logging.Fields{"host": t.cfg.Host, "port": t.cfg.Port, "path": t.cfg.Path}).Info("rpcserver transport started")
	return nil
}

// Stop closes the listener, then drains in-flight requests on the worker
// pool, bounded by ctx and by cfg.ShutdownTimeout when that is positive
// (§5 graceful shutdown steps 1-2).
func (t *Transport) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&t.running, 1, 0) {
		return nil
	}
	if t.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.ShutdownTimeout)
		defer cancel()
	}
	t.stopOnce.Do(func() { close(t.stopChan) })

	t.clientsMu.RLock()
	conns := make([]*websocket.Conn, 0, len(t.clients))
	for _, c := range t.clients {
		conns = append(conns, c)
	}
	t.clientsMu.RUnlock()
	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(t.cfg.WriteTimeout))
	}

	if t.httpServer != nil {
		if err := t.httpServer.Shutdown(ctx); err != nil {
			t.logger.WithError(err).Warn("error shutting down rpcserver transport listener")
		}
	}
	if err := t.pool.Stop(ctx); err != nil {
		t.logger.WithError(err).Warn("rpcserver worker pool did not drain within deadline")
	}
	t.wg.Wait()
	t.logger.Info("rpcserver transport stopped")
	return nil
}

func (t *Transport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	t.clientsMu.RLock()
	active := len(t.clients)
	t.clientsMu.RUnlock()
	if active >= t.cfg.MaxConnections {
		http.Error(w, "max connections reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.WithError(err).Error("websocket upgrade failed")
		return
	}
	conn.EnableWriteCompression(true)

	clientID := fmt.Sprintf("client_%d", atomic.AddInt64(&t.clientCounter, 1))
	t.clientsMu.Lock()
	t.clients[clientID] = conn
	t.clientsMu.Unlock()

	t.wg.Add(1)
	go t.handleConnection(clientID, conn)
}

func (t *Transport) handleConnection(clientID string, conn *websocket.Conn) {
	defer func() {
		if r := recover(); r != nil {
			stack := make([]byte, 4096)
			n := runtime.Stack(stack, false)
			t.logger.WithFields(logging.Fields{"client_id": clientID, "panic": r, "stack": string(stack[:n])}).Error("recovered from panic in connection handler")
		}
		t.clientsMu.Lock()
		delete(t.clients, clientID)
		t.clientsMu.Unlock()
		conn.Close()
		t.wg.Done()
	}()

	conn.SetReadLimit(t.cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(t.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(t.cfg.PongWait))
		return nil
	})

	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	msgChan := make(chan []byte)
	errChan := make(chan error, 1)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				errChan <- err
				return
			}
			msgChan <- msg
		}
	}()

	for {
		select {
		case <-t.stopChan:
			return
		case err := <-errChan:
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.WithError(err).WithField("client_id", clientID).Debug("websocket read error")
			}
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.cfg.WriteTimeout)); err != nil {
				return
			}
		case msg := <-msgChan:
			t.handleMessage(clientID, conn, msg)
		}
	}
}

func (t *Transport) handleMessage(clientID string, conn *websocket.Conn, raw []byte) {
	var req jsonRPCRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		t.writeResponse(conn, &jsonRPCResponse{JSONRPC: "2.0", Error: &jsonRPCError{Code: arerrors.RPCParseError, Message: "invalid JSON-RPC request"}})
		return
	}
	if req.JSONRPC != "2.0" {
		t.writeResponse(conn, &jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: &jsonRPCError{Code: arerrors.RPCInvalidParams, Message: "jsonrpc must be \"2.0\""}})
		return
	}
	isNotification := req.ID == nil

	done := make(chan struct{})
	err := t.pool.Submit(context.Background(), func(ctx context.Context) {
		defer close(done)
		resp := t.dispatch(ctx, &req)
		if isNotification {
			return
		}
		resp.JSONRPC = "2.0"
		resp.ID = req.ID
		t.writeResponse(conn, resp)
	})
	if err != nil {
		close(done)
		if !isNotification {
			t.writeResponse(conn, &jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: &jsonRPCError{Code: arerrors.RPCInternal, Message: "server busy, retry"}})
		}
		return
	}
	<-done
}

func (t *Transport) writeResponse(conn *websocket.Conn, resp *jsonRPCResponse) {
	t.clientsMu.Lock()
	defer t.clientsMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	if err := conn.WriteJSON(resp); err != nil {
		t.logger.WithError(err).Debug("failed to write rpcserver response")
	}
}

// dispatch routes a single JSON-RPC request to the matching Servicer method,
// decoding params and converting the result/error into the wire envelope.
// This mirrors the teacher's methodWrapper (internal/websocket/methods.go):
// one place that logs, decodes, calls, and converts errors uniformly.
func (t *Transport) dispatch(ctx context.Context, req *jsonRPCRequest) *jsonRPCResponse {
	t.logger.WithFields(logging.Fields{"method": req.Method, "action": "dispatch"}).Debug("handling rpc")

	start := time.Now()
	resp := t.dispatchMethod(ctx, req)
	observeRPC(req.Method, start, resp != nil && resp.Error != nil)
	return resp
}

func (t *Transport) dispatchMethod(ctx context.Context, req *jsonRPCRequest) *jsonRPCResponse {
	switch req.Method {
	case "create_session":
		return t.handleCreateSession(ctx, req.Params)
	case "delete_session":
		return t.handleDeleteSession(ctx, req.Params)
	case "get_session":
		return t.handleGetSession(ctx, req.Params)
	case "list_sessions":
		return t.handleListSessions(ctx)
	case "join_session":
		return t.handleJoinSession(ctx, req.Params)
	case "leave_session":
		return t.handleLeaveSession(ctx, req.Params)
	case "save_ar_frames":
		return t.handleSaveARFrames(ctx, req.Params)
	case "save_synchronized_ar_frame":
		return t.handleSaveSynchronizedARFrame(ctx, req.Params)
	default:
		return &jsonRPCResponse{Error: &jsonRPCError{Code: arerrors.RPCMethodNotFound, Message: fmt.Sprintf("unknown method %q", req.Method)}}
	}
}

func errResponse(err error) *jsonRPCResponse {
	return &jsonRPCResponse{Error: &jsonRPCError{Code: arerrors.RPCCode(err), Message: err.Error()}}
}

type createSessionParams struct {
	Device   deviceWire          `json:"device"`
	Metadata sessionMetadataWire `json:"session_metadata"`
}

func (t *Transport) handleCreateSession(ctx context.Context, raw json.RawMessage) *jsonRPCResponse {
	var p createSessionParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return &jsonRPCResponse{Error: &jsonRPCError{Code: arerrors.RPCInvalidParams, Message: err.Error()}}
	}
	req := registry.CreateRequest{
		Device:   p.Device.toDevice(),
		Metadata: arframe.SessionMetadata{Name: p.Metadata.Name, SavePath: p.Metadata.SavePath},
	}
	session, err := t.servicer.CreateSession(ctx, req)
	if err != nil {
		return errResponse(err)
	}
	return &jsonRPCResponse{Result: sessionToWire(session)}
}

type sessionIDParams struct {
	SessionID string `json:"session_id"`
}

func (t *Transport) handleDeleteSession(ctx context.Context, raw json.RawMessage) *jsonRPCResponse {
	var p sessionIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return &jsonRPCResponse{Error: &jsonRPCError{Code: arerrors.RPCInvalidParams, Message: err.Error()}}
	}
	if err := t.servicer.DeleteSession(ctx, p.SessionID); err != nil {
		return errResponse(err)
	}
	return &jsonRPCResponse{Result: map[string]interface{}{}}
}

func (t *Transport) handleGetSession(ctx context.Context, raw json.RawMessage) *jsonRPCResponse {
	var p sessionIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return &jsonRPCResponse{Error: &jsonRPCError{Code: arerrors.RPCInvalidParams, Message: err.Error()}}
	}
	session, err := t.servicer.GetSession(ctx, p.SessionID)
	if err != nil {
		return errResponse(err)
	}
	return &jsonRPCResponse{Result: sessionToWire(session)}
}

func (t *Transport) handleListSessions(ctx context.Context) *jsonRPCResponse {
	sessions := t.servicer.ListSessions(ctx)
	out := make([]sessionWire, len(sessions))
	for i, s := range sessions {
		out[i] = sessionToWire(s)
	}
	return &jsonRPCResponse{Result: out}
}

type deviceSessionParams struct {
	SessionID string     `json:"session_id"`
	Device    deviceWire `json:"device"`
}

func (t *Transport) handleJoinSession(ctx context.Context, raw json.RawMessage) *jsonRPCResponse {
	var p deviceSessionParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return &jsonRPCResponse{Error: &jsonRPCError{Code: arerrors.RPCInvalidParams, Message: err.Error()}}
	}
	session, err := t.servicer.JoinSession(ctx, p.SessionID, p.Device.toDevice())
	if err != nil {
		return errResponse(err)
	}
	return &jsonRPCResponse{Result: sessionToWire(session)}
}

func (t *Transport) handleLeaveSession(ctx context.Context, raw json.RawMessage) *jsonRPCResponse {
	var p deviceSessionParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return &jsonRPCResponse{Error: &jsonRPCError{Code: arerrors.RPCInvalidParams, Message: err.Error()}}
	}
	if err := t.servicer.LeaveSession(ctx, p.SessionID, p.Device.toDevice()); err != nil {
		return errResponse(err)
	}
	return &jsonRPCResponse{Result: map[string]interface{}{}}
}

type saveARFramesParams struct {
	SessionID string      `json:"session_id"`
	Device    deviceWire  `json:"device"`
	Frames    []frameWire `json:"frames"`
}

func (t *Transport) handleSaveARFrames(ctx context.Context, raw json.RawMessage) *jsonRPCResponse {
	var p saveARFramesParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return &jsonRPCResponse{Error: &jsonRPCError{Code: arerrors.RPCInvalidParams, Message: err.Error()}}
	}
	frames := make([]arframe.ARFrame, 0, len(p.Frames))
	for i, fw := range p.Frames {
		f, err := fw.toARFrame()
		if err != nil {
			t.logger.WithFields(logging.Fields{"index": i, "error": err.Error()}).Warn("save_ar_frames: skipping frame with invalid wire payload")
			decoderSkipTotal.WithLabelValues(fw.Kind).Inc()
			continue
		}
		frames = append(frames, f)
	}
	if err := t.servicer.SaveARFrames(ctx, p.SessionID, p.Device.toDevice(), frames); err != nil {
		return errResponse(err)
	}
	return &jsonRPCResponse{Result: map[string]interface{}{}}
}

// saveSynchronizedARFrameParams carries at most one wire frame per family for
// a single capture tick (§6.1 SaveSynchronizedARFrame). Each populated field's
// "kind" is implied by its position rather than read from the payload, since
// a synchronized tick has no ambiguity about which family a field belongs to.
type saveSynchronizedARFrameParams struct {
	SessionID  string     `json:"session_id"`
	Device     deviceWire `json:"device"`
	Transform  *frameWire `json:"transform,omitempty"`
	Color      *frameWire `json:"color,omitempty"`
	Depth      *frameWire `json:"depth,omitempty"`
	Gyroscope  *frameWire `json:"gyroscope,omitempty"`
	Audio      *frameWire `json:"audio,omitempty"`
	Plane      *frameWire `json:"plane,omitempty"`
	PointCloud *frameWire `json:"point_cloud,omitempty"`
	Mesh       *frameWire `json:"mesh,omitempty"`
}

func (t *Transport) handleSaveSynchronizedARFrame(ctx context.Context, raw json.RawMessage) *jsonRPCResponse {
	var p saveSynchronizedARFrameParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return &jsonRPCResponse{Error: &jsonRPCError{Code: arerrors.RPCInvalidParams, Message: err.Error()}}
	}
	sync, err := buildSynchronizedFrame(p)
	if err != nil {
		return &jsonRPCResponse{Error: &jsonRPCError{Code: arerrors.RPCInvalidParams, Message: err.Error()}}
	}
	if err := t.servicer.SaveSynchronizedARFrame(ctx, p.SessionID, p.Device.toDevice(), sync); err != nil {
		return errResponse(err)
	}
	return &jsonRPCResponse{Result: map[string]interface{}{}}
}

func buildSynchronizedFrame(p saveSynchronizedARFrameParams) (SynchronizedFrame, error) {
	var out SynchronizedFrame
	if p.Transform != nil {
		p.Transform.Kind = string(arframe.KindTransform)
		f, err := p.Transform.toARFrame()
		if err != nil {
			return out, fmt.Errorf("transform: %w", err)
		}
		v := f.(arframe.TransformFrame)
		out.Transform = &v
	}
	if p.Color != nil {
		p.Color.Kind = string(arframe.KindColor)
		f, err := p.Color.toARFrame()
		if err != nil {
			return out, fmt.Errorf("color: %w", err)
		}
		v := f.(arframe.ColorFrame)
		out.Color = &v
	}
	if p.Depth != nil {
		p.Depth.Kind = string(arframe.KindDepth)
		f, err := p.Depth.toARFrame()
		if err != nil {
			return out, fmt.Errorf("depth: %w", err)
		}
		v := f.(arframe.DepthFrame)
		out.Depth = &v
	}
	if p.Gyroscope != nil {
		p.Gyroscope.Kind = string(arframe.KindGyroscope)
		f, err := p.Gyroscope.toARFrame()
		if err != nil {
			return out, fmt.Errorf("gyroscope: %w", err)
		}
		v := f.(arframe.GyroscopeFrame)
		out.Gyroscope = &v
	}
	if p.Audio != nil {
		p.Audio.Kind = string(arframe.KindAudio)
		f, err := p.Audio.toARFrame()
		if err != nil {
			return out, fmt.Errorf("audio: %w", err)
		}
		v := f.(arframe.AudioFrame)
		out.Audio = &v
	}
	if p.Plane != nil {
		p.Plane.Kind = string(arframe.KindPlaneDetection)
		f, err := p.Plane.toARFrame()
		if err != nil {
			return out, fmt.Errorf("plane: %w", err)
		}
		v := f.(arframe.PlaneDetectionFrame)
		out.Plane = &v
	}
	if p.PointCloud != nil {
		p.PointCloud.Kind = string(arframe.KindPointCloud)
		f, err := p.PointCloud.toARFrame()
		if err != nil {
			return out, fmt.Errorf("point_cloud: %w", err)
		}
		v := f.(arframe.PointCloudDetectionFrame)
		out.PointCloud = &v
	}
	if p.Mesh != nil {
		p.Mesh.Kind = string(arframe.KindMeshDetection)
		f, err := p.Mesh.toARFrame()
		if err != nil {
			return out, fmt.Errorf("mesh: %w", err)
		}
		v := f.(arframe.MeshDetectionFrame)
		out.Mesh = &v
	}
	return out, nil
}
