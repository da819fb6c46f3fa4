package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/cake-lab/arflow-go/internal/logging"
)

// maxPreviewDimension bounds the longest side of a snapshot preview. Frames
// wider or taller than this are downscaled before encoding so a preview
// directory never accumulates full-resolution copies of every frame.
const maxPreviewDimension = 512

// record is the on-disk journal entry FileAdapter writes for every write
// operation. The format is this module's own newline-delimited JSON, not
// the real Rerun wire format: no Go binding for the real recorder exists in
// the retrieved corpus, so the reference adapter journals a faithful but
// independently-defined representation of the same operations.
type record struct {
	Op         string                 `json:"op"`
	EntityPath string                 `json:"entity_path,omitempty"`
	Timelines  []TimeColumn           `json:"timelines,omitempty"`
	Components []ColumnBatch          `json:"components,omitempty"`
	Props      []interface{}          `json:"props,omitempty"`
	Primitive  interface{}            `json:"primitive,omitempty"`
	Timeline   string                 `json:"timeline,omitempty"`
	Seconds    float64                `json:"seconds,omitempty"`
	Recursive  bool                   `json:"recursive,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

type fileHandle struct {
	mu         sync.Mutex
	appID      string
	sessionID  string
	out        *os.File
	writer     *bufio.Writer
	cursor     map[string]float64
	lastColor  map[string]image.Image
	lastDepth  map[string]image.Image
}

// FileAdapter is the reference Adapter implementation. Once DirectToFile is
// called, it appends every write to the file at the given path as
// newline-delimited JSON; the path is used as given (the registry names it
// <session_id>.rrd, the on-disk convention from §6.4). Until then, writes
// are not recorded anywhere. Previewing is a bonus the reference adapter offers
// beyond the minimal contract: the most recent color/depth frame per entity
// can be rendered as a PNG via SnapshotPreview.
type FileAdapter struct {
	logger *logging.Logger
	mu     sync.Mutex
	handles map[*fileHandle]struct{}
}

// NewFileAdapter constructs a FileAdapter. logger may be nil, in which case
// a component-scoped default is used.
func NewFileAdapter(logger *logging.Logger) *FileAdapter {
	if logger == nil {
		logger = logging.GetLogger("recorder.file_adapter")
	}
	return &FileAdapter{logger: logger, handles: make(map[*fileHandle]struct{})}
}

func (a *FileAdapter) NewStream(ctx context.Context, appID, sessionID string, spawnViewer bool) (Handle, error) {
	h := &fileHandle{
		appID:     appID,
		sessionID: sessionID,
		cursor:    make(map[string]float64),
		lastColor: make(map[string]image.Image),
		lastDepth: make(map[string]image.Image),
	}
	a.mu.Lock()
	a.handles[h] = struct{}{}
	a.mu.Unlock()

	a.logger.WithFields(logging.Fields{
		"app_id":       appID,
		"session_id":   sessionID,
		"spawn_viewer": spawnViewer,
	}).Info("new recorder stream created")
	return h, nil
}

func (a *FileAdapter) DirectToFile(handle Handle, path string) error {
	h, err := asFileHandle(handle)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create save directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create session file: %w", err)
	}
	h.out = f
	h.writer = bufio.NewWriter(f)
	return nil
}

func (a *FileAdapter) LogStatic(handle Handle, entityPath string, props ...interface{}) error {
	h, err := asFileHandle(handle)
	if err != nil {
		return err
	}
	return h.write(record{Op: "log_static", EntityPath: entityPath, Props: props})
}

func (a *FileAdapter) SendColumns(handle Handle, entityPath string, timelines []TimeColumn, components ...ColumnBatch) error {
	h, err := asFileHandle(handle)
	if err != nil {
		return err
	}

	total := 0
	for _, t := range timelines {
		total += len(t.Seconds)
	}
	for _, c := range components {
		if len(c.Values) != total && len(timelines) > 0 {
			return fmt.Errorf("component %q length %d does not match timeline length %d", c.Name, len(c.Values), total)
		}
	}

	return h.write(record{Op: "send_columns", EntityPath: entityPath, Timelines: timelines, Components: components})
}

func (a *FileAdapter) SetTime(handle Handle, timeline string, seconds float64) {
	h, err := asFileHandle(handle)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.cursor[timeline] = seconds
	h.mu.Unlock()
}

func (a *FileAdapter) Log(handle Handle, entityPath string, primitive interface{}) error {
	h, err := asFileHandle(handle)
	if err != nil {
		return err
	}
	h.mu.Lock()
	cursorSnapshot := make(map[string]float64, len(h.cursor))
	for k, v := range h.cursor {
		cursorSnapshot[k] = v
	}
	h.mu.Unlock()

	if img, ok := colorImageFrom(primitive); ok {
		h.mu.Lock()
		h.lastColor[entityPath] = img
		h.mu.Unlock()
	}
	if img, ok := depthImageFrom(primitive); ok {
		h.mu.Lock()
		h.lastDepth[entityPath] = img
		h.mu.Unlock()
	}

	return h.write(record{Op: "log", EntityPath: entityPath, Primitive: primitive, Meta: map[string]interface{}{"cursor": cursorSnapshot}})
}

func (a *FileAdapter) Clear(handle Handle, entityPath string, recursive bool) error {
	h, err := asFileHandle(handle)
	if err != nil {
		return err
	}
	return h.write(record{Op: "clear", EntityPath: entityPath, Recursive: recursive})
}

func (a *FileAdapter) Disconnect(handle Handle) error {
	if handle == nil {
		return nil
	}
	h, err := asFileHandle(handle)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.writer != nil {
		if err := h.writer.Flush(); err != nil {
			return fmt.Errorf("flush session file: %w", err)
		}
	}
	if h.out != nil {
		if err := h.out.Close(); err != nil {
			return fmt.Errorf("close session file: %w", err)
		}
		h.out = nil
		h.writer = nil
	}
	return nil
}

func (h *fileHandle) write(r record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.writer == nil {
		return nil
	}
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal recorder record: %w", err)
	}
	if _, err := h.writer.Write(line); err != nil {
		return err
	}
	if _, err := h.writer.WriteString("\n"); err != nil {
		return err
	}
	return h.writer.Flush()
}

func asFileHandle(handle Handle) (*fileHandle, error) {
	h, ok := handle.(*fileHandle)
	if !ok {
		return nil, fmt.Errorf("recorder: handle is not a *fileHandle")
	}
	return h, nil
}

// colorImageFrom and depthImageFrom recognize the handful of primitive
// shapes SessionStream logs that carry previewable pixel data. Anything
// else is ignored.
func colorImageFrom(primitive interface{}) (image.Image, bool) {
	type colorPreview interface {
		ColorPreview() (width, height int, rgb []byte)
	}
	cp, ok := primitive.(colorPreview)
	if !ok {
		return nil, false
	}
	w, h, rgb := cp.ColorPreview()
	if w <= 0 || h <= 0 || len(rgb) < w*h*3 {
		return nil, false
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			img.Set(x, y, color.RGBA{R: rgb[i], G: rgb[i+1], B: rgb[i+2], A: 255})
		}
	}
	return img, true
}

func depthImageFrom(primitive interface{}) (image.Image, bool) {
	type depthPreview interface {
		DepthPreview() (width, height int, meters []float32)
	}
	dp, ok := primitive.(depthPreview)
	if !ok {
		return nil, false
	}
	w, h, meters := dp.DepthPreview()
	if w <= 0 || h <= 0 || len(meters) < w*h {
		return nil, false
	}
	img := image.NewGray(image.Rect(0, 0, w, h))
	minD, maxD := meters[0], meters[0]
	for _, d := range meters {
		if d < minD {
			minD = d
		}
		if d > maxD {
			maxD = d
		}
	}
	spread := maxD - minD
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			d := meters[y*w+x]
			v := uint8(255)
			if spread > 0 {
				v = uint8(255 * (d - minD) / spread)
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img, true
}

// SnapshotPreview writes the most recent color or depth frame logged to
// entityPath on handle as a PNG at path, for quick visual inspection
// without a live viewer. Returns an error if no preview is available.
func (a *FileAdapter) SnapshotPreview(handle Handle, entityPath, path string) error {
	h, err := asFileHandle(handle)
	if err != nil {
		return err
	}

	h.mu.Lock()
	img, ok := h.lastColor[entityPath]
	if !ok {
		img, ok = h.lastDepth[entityPath]
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("recorder: no preview available for %s", entityPath)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create preview file: %w", err)
	}
	defer f.Close()
	return png.Encode(f, downscalePreview(img))
}

// downscalePreview shrinks img so its longest side fits maxPreviewDimension,
// using golang.org/x/image/draw's bilinear scaler since the stdlib has no
// image resampler of its own.
func downscalePreview(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxPreviewDimension && h <= maxPreviewDimension {
		return img
	}
	scale := float64(maxPreviewDimension) / float64(w)
	if hs := float64(maxPreviewDimension) / float64(h); hs < scale {
		scale = hs
	}
	dw, dh := int(float64(w)*scale), int(float64(h)*scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// PruneStaleHandles drops from the adapter's bookkeeping every handle that
// has no open backing file: handles whose file was closed, and handles that
// were never directed to a file (live-mode streams included). It returns
// how many it dropped and is called periodically by the maintenance
// scheduler. olderThan is not used by the sweep criterion; handle age plays
// no part.
func (a *FileAdapter) PruneStaleHandles(olderThan time.Duration) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	pruned := 0
	for h := range a.handles {
		h.mu.Lock()
		closed := h.out == nil
		h.mu.Unlock()
		if closed {
			delete(a.handles, h)
			pruned++
		}
	}
	return pruned
}
