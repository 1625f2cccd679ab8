package sessiondump

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"skyshield/interceptor/internal/events"
	"skyshield/interceptor/internal/telemetry"
)

// Event is one envelope decoded from the compressed JSONL log.
type Event struct {
	CapturedAt time.Time
	Envelope   *events.Envelope
}

// Frame is one world snapshot decoded from the binary frame stream.
type Frame struct {
	Frame      uint64
	SimMs      int64
	CapturedAt time.Time
	Payload    []byte
}

// SessionBundle loads the manifest, session header, events and frames of a
// recorded session. The header is nil for a live session that has not closed
// yet; everything else must parse.
func SessionBundle(path string) (telemetry.Manifest, *telemetry.SessionHeader, []Event, []Frame, error) {
	if path == "" {
		return telemetry.Manifest{}, nil, nil, nil, fmt.Errorf("path is required")
	}

	//1.- Accept either the session directory or the manifest file itself.
	manifestPath := path
	info, err := os.Stat(path)
	if err != nil {
		return telemetry.Manifest{}, nil, nil, nil, err
	}
	if info.IsDir() {
		manifestPath = filepath.Join(path, "manifest.json")
	}
	dir := filepath.Dir(manifestPath)

	manifestBytes, err := os.ReadFile(manifestPath)
	if err != nil {
		return telemetry.Manifest{}, nil, nil, nil, err
	}
	var manifest telemetry.Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return telemetry.Manifest{}, nil, nil, nil, err
	}
	if manifest.Version != 1 {
		return telemetry.Manifest{}, nil, nil, nil, fmt.Errorf("unsupported manifest version %d", manifest.Version)
	}

	header, err := loadHeader(filepath.Join(dir, "session.json"))
	if err != nil {
		return telemetry.Manifest{}, nil, nil, nil, err
	}

	loaded, err := loadEvents(filepath.Join(dir, manifest.EventsPath))
	if err != nil {
		return telemetry.Manifest{}, nil, nil, nil, err
	}

	frames, err := loadFrames(filepath.Join(dir, manifest.FramesPath))
	if err != nil {
		return telemetry.Manifest{}, nil, nil, nil, err
	}

	return manifest, header, loaded, frames, nil
}

func loadHeader(path string) (*telemetry.SessionHeader, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var header telemetry.SessionHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, err
	}
	return &header, nil
}

func loadEvents(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := snappy.NewReader(file)
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var loaded []Event
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record struct {
			CapturedAt string           `json:"captured_at"`
			Event      *events.Envelope `json:"event"`
		}
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, err
		}
		captured, err := time.Parse(time.RFC3339Nano, record.CapturedAt)
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, Event{CapturedAt: captured, Envelope: record.Event})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return loaded, nil
}

func loadFrames(path string) ([]Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	payload, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	var frames []Frame
	offset := 0
	for offset+28 <= len(payload) {
		//1.- Fixed 28-byte header, then the length-prefixed snapshot JSON.
		frame := binary.LittleEndian.Uint64(payload[offset : offset+8])
		offset += 8
		sim := int64(binary.LittleEndian.Uint64(payload[offset : offset+8]))
		offset += 8
		captured := int64(binary.LittleEndian.Uint64(payload[offset : offset+8]))
		offset += 8
		size := int(binary.LittleEndian.Uint32(payload[offset : offset+4]))
		offset += 4
		if offset+size > len(payload) {
			return nil, fmt.Errorf("frame payload truncated")
		}
		blob := append([]byte(nil), payload[offset:offset+size]...)
		offset += size
		frames = append(frames, Frame{
			Frame:      frame,
			SimMs:      sim,
			CapturedAt: time.Unix(0, captured).UTC(),
			Payload:    blob,
		})
	}
	return frames, nil
}

// Summarize renders a session bundle as a short operator-facing report.
func Summarize(manifest telemetry.Manifest, header *telemetry.SessionHeader, loaded []Event, frames []Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "session %s (created %s)\n", manifest.SessionID, manifest.CreatedAt)
	if header != nil {
		fmt.Fprintf(&b, "  launch seed %d, workspace shell [%.2f, %.2f] around (%.2f, %.2f, %.2f), floor %.2f\n",
			header.LaunchSeed,
			header.Workspace.InnerRadius, header.Workspace.OuterRadius,
			header.Workspace.Center[0], header.Workspace.Center[1], header.Workspace.Center[2],
			header.Workspace.FloorZ)
	}

	//1.- Count envelopes per kind in a stable print order.
	counts := map[events.Kind]int{}
	for _, ev := range loaded {
		if ev.Envelope != nil {
			counts[ev.Envelope.Kind]++
		}
	}
	fmt.Fprintf(&b, "  events: %d", len(loaded))
	for _, kind := range []events.Kind{events.KindPhase, events.KindTarget, events.KindAttempt, events.KindTrack, events.KindSystem} {
		if counts[kind] > 0 {
			fmt.Fprintf(&b, " %s=%d", kind, counts[kind])
		}
	}
	b.WriteString("\n")

	if len(frames) > 0 {
		first, last := frames[0], frames[len(frames)-1]
		fmt.Fprintf(&b, "  frames: %d spanning sim %.3fs..%.3fs\n",
			len(frames), float64(first.SimMs)/1000, float64(last.SimMs)/1000)
	} else {
		b.WriteString("  frames: 0\n")
	}

	//2.- The transition list is the readable spine of an engagement.
	var transitions []string
	for _, ev := range loaded {
		if ev.Envelope == nil || ev.Envelope.Kind != events.KindPhase || ev.Envelope.Engagement == nil {
			continue
		}
		eng := ev.Envelope.Engagement
		transitions = append(transitions, fmt.Sprintf("    %.3fs %s -> %s (%s)", eng.At, eng.From, eng.To, eng.Reason))
	}
	if len(transitions) > 0 {
		b.WriteString("  phase transitions:\n")
		b.WriteString(strings.Join(transitions, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}
