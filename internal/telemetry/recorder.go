package telemetry

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"skyshield/interceptor/internal/ballistics"
	"skyshield/interceptor/internal/events"
)

var sessionCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

const frameFlushInterval = 250 * time.Millisecond

// frameBlob stages a world snapshot before it is persisted to disk.
type frameBlob struct {
	Frame      uint64
	SimMs      int64
	CapturedAt time.Time
	Payload    []byte
}

// Recorder streams session artefacts to disk: a snappy-compressed JSONL event
// log, a zstd stream of length-prefixed world snapshots, and a manifest that
// tells tooling where everything lives.
type Recorder struct {
	mu          sync.Mutex
	dir         string
	session     string
	now         func() time.Time
	eventFile   *os.File
	eventStream *snappy.Writer
	frameFile   *os.File
	frameStream *zstd.Encoder
	pending     []frameBlob
	lastFlush   time.Time
	seed        uint64
	workspace   ballistics.Workspace
}

// Manifest describes the session bundle layout.
type Manifest struct {
	Version         int    `json:"version"`
	SessionID       string `json:"session_id"`
	CreatedAt       string `json:"created_at"`
	FrameIntervalMs int    `json:"frame_interval_ms"`
	EventsPath      string `json:"events_path"`
	FramesPath      string `json:"frames_path"`
}

// SessionHeader captures the run parameters needed to replay a session.
type SessionHeader struct {
	SchemaVersion int             `json:"schema_version"`
	SessionID     string          `json:"session_id"`
	LaunchSeed    uint64          `json:"launch_seed"`
	Workspace     workspaceParams `json:"workspace"`
	FilePointer   string          `json:"file_pointer"`
}

type workspaceParams struct {
	Center      [3]float64 `json:"center"`
	InnerRadius float64    `json:"inner_radius"`
	OuterRadius float64    `json:"outer_radius"`
	FloorZ      float64    `json:"floor_z"`
}

// eventRecord is the JSONL line layout of the compressed event log.
type eventRecord struct {
	CapturedAt string           `json:"captured_at"`
	Event      *events.Envelope `json:"event"`
}

// NewRecorder prepares the session directory and opens compressed sinks. An
// empty sessionID gets a fresh uuid so concurrent runs never collide.
func NewRecorder(root, sessionID string, clock func() time.Time) (*Recorder, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, fmt.Errorf("telemetry root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	cleaned := sessionCleaner.ReplaceAllString(sessionID, "")
	if cleaned == "" {
		cleaned = "session"
	}
	created := clock().UTC()
	folder := fmt.Sprintf("%s-%s", cleaned, created.Format("20060102T150405Z"))
	path := filepath.Join(root, folder)

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, Manifest{}, err
	}

	eventsPath := filepath.Join(path, "events.jsonl.sz")
	framesPath := filepath.Join(path, "frames.bin.zst")
	manifestPath := filepath.Join(path, "manifest.json")

	eventFile, err := os.Create(eventsPath)
	if err != nil {
		return nil, Manifest{}, err
	}
	eventStream := snappy.NewBufferedWriter(eventFile)

	frameFile, err := os.Create(framesPath)
	if err != nil {
		eventFile.Close()
		return nil, Manifest{}, err
	}
	frameStream, err := zstd.NewWriter(frameFile)
	if err != nil {
		eventStream.Close()
		eventFile.Close()
		frameFile.Close()
		return nil, Manifest{}, err
	}

	manifest := Manifest{
		Version:         1,
		SessionID:       cleaned,
		CreatedAt:       created.Format(time.RFC3339Nano),
		FrameIntervalMs: int(frameFlushInterval / time.Millisecond),
		EventsPath:      "events.jsonl.sz",
		FramesPath:      "frames.bin.zst",
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err == nil {
		err = os.WriteFile(manifestPath, data, 0o644)
	}
	if err != nil {
		frameStream.Close()
		frameFile.Close()
		eventStream.Close()
		eventFile.Close()
		return nil, Manifest{}, err
	}

	recorder := &Recorder{
		dir:         path,
		session:     cleaned,
		now:         clock,
		eventFile:   eventFile,
		eventStream: eventStream,
		frameFile:   frameFile,
		frameStream: frameStream,
	}

	return recorder, manifest, nil
}

// Directory exposes the directory backing the session bundle.
func (r *Recorder) Directory() string {
	if r == nil {
		return ""
	}
	return r.dir
}

// RecordEvent writes one envelope as a JSON line to the compressed event log.
func (r *Recorder) RecordEvent(envelope *events.Envelope) error {
	if r == nil {
		return fmt.Errorf("recorder not initialised")
	}
	if envelope == nil {
		return fmt.Errorf("envelope required")
	}
	captured := r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	line, err := json.Marshal(eventRecord{
		CapturedAt: captured.Format(time.RFC3339Nano),
		Event:      envelope,
	})
	if err != nil {
		return err
	}
	if _, err := r.eventStream.Write(line); err != nil {
		return err
	}
	if _, err := r.eventStream.Write([]byte("\n")); err != nil {
		return err
	}
	//1.- Flush per event so a crash loses at most the line in flight.
	return r.eventStream.Flush()
}

// RecordFrame buffers a snapshot payload until the flush cadence is reached.
func (r *Recorder) RecordFrame(frame uint64, simMs int64, payload []byte) error {
	if r == nil {
		return fmt.Errorf("recorder not initialised")
	}
	captured := r.now().UTC()
	clone := append([]byte(nil), payload...)

	r.mu.Lock()
	defer r.mu.Unlock()

	//1.- Stage the frame so cadence enforcement persists batches together.
	r.pending = append(r.pending, frameBlob{Frame: frame, SimMs: simMs, CapturedAt: captured, Payload: clone})
	if r.lastFlush.IsZero() {
		r.lastFlush = captured
		return nil
	}
	if captured.Sub(r.lastFlush) >= frameFlushInterval {
		if err := r.flushLocked(); err != nil {
			return err
		}
		r.lastFlush = captured
	}
	return nil
}

// SetSessionMetadata records the run parameters persisted when the recorder closes.
func (r *Recorder) SetSessionMetadata(seed uint64, workspace ballistics.Workspace) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.seed = seed
	r.workspace = workspace
	r.mu.Unlock()
}

// Flush forces pending frames to disk regardless of cadence.
func (r *Recorder) Flush() error {
	if r == nil {
		return fmt.Errorf("recorder not initialised")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.flushLocked(); err != nil {
		return err
	}
	r.lastFlush = r.now().UTC()
	return nil
}

// Close flushes all buffers, writes the session header, and releases handles.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	header := SessionHeader{
		SchemaVersion: 1,
		SessionID:     r.session,
		LaunchSeed:    r.seed,
		Workspace: workspaceParams{
			Center:      [3]float64{r.workspace.Center.X, r.workspace.Center.Y, r.workspace.Center.Z},
			InnerRadius: r.workspace.InnerRadius,
			OuterRadius: r.workspace.OuterRadius,
			FloorZ:      r.workspace.FloorZ,
		},
		FilePointer: "manifest.json",
	}
	if data, err := json.MarshalIndent(header, "", "  "); err != nil {
		firstErr = err
	} else if err := os.WriteFile(filepath.Join(r.dir, "session.json"), data, 0o644); err != nil {
		firstErr = err
	}
	//1.- Attempt every flush and close, surfacing the first failure.
	if err := r.flushLocked(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.eventStream.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.eventStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.eventFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.frameStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.frameFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// flushLocked writes buffered frames to the zstd stream; callers hold the mutex.
func (r *Recorder) flushLocked() error {
	if len(r.pending) == 0 {
		return nil
	}
	//1.- Length-prefixed frames let replay tooling step without decoding payloads.
	for _, frame := range r.pending {
		header := make([]byte, 8+8+8+4)
		binary.LittleEndian.PutUint64(header[0:8], frame.Frame)
		binary.LittleEndian.PutUint64(header[8:16], uint64(frame.SimMs))
		binary.LittleEndian.PutUint64(header[16:24], uint64(frame.CapturedAt.UnixNano()))
		binary.LittleEndian.PutUint32(header[24:28], uint32(len(frame.Payload)))
		if _, err := r.frameStream.Write(header); err != nil {
			return err
		}
		if _, err := r.frameStream.Write(frame.Payload); err != nil {
			return err
		}
	}
	r.pending = r.pending[:0]
	return nil
}
