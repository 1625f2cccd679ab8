package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"skyshield/interceptor/internal/engage"
)

// Kind enumerates the event payloads carried by the stream.
type Kind string

const (
	// KindPhase marks an engagement phase transition.
	KindPhase Kind = "phase"
	// KindTarget marks a target acquisition.
	KindTarget Kind = "target"
	// KindAttempt marks a completed intercept attempt.
	KindAttempt Kind = "attempt"
	// KindTrack marks tracker lifecycle changes such as spawn and expiry.
	KindTrack Kind = "track"
	// KindSystem marks operator and runtime changes such as pause and resume.
	KindSystem Kind = "system"
)

// TrackEvent reports a tracker lifecycle change for one projectile.
type TrackEvent struct {
	TrackID  int     `json:"track_id"`
	Change   string  `json:"change"`
	Residual float64 `json:"residual,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

// SystemEvent reports an operator or runtime state change.
type SystemEvent struct {
	Change string `json:"change"`
	Detail string `json:"detail,omitempty"`
}

// Envelope carries one event together with sequencing and timing metadata.
type Envelope struct {
	Sequence   uint64        `json:"sequence"`
	Kind       Kind          `json:"kind"`
	SimTime    float64       `json:"sim_time"`
	WallMs     int64         `json:"wall_ms"`
	Engagement *engage.Event `json:"engagement,omitempty"`
	Track      *TrackEvent   `json:"track,omitempty"`
	System     *SystemEvent  `json:"system,omitempty"`
}

// Clone duplicates the envelope so consumers can mutate their copy safely.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Engagement != nil {
		payload := *e.Engagement
		clone.Engagement = &payload
	}
	if e.Track != nil {
		payload := *e.Track
		clone.Track = &payload
	}
	if e.System != nil {
		payload := *e.System
		clone.System = &payload
	}
	return &clone
}

// Config controls the retention policy for the stream log.
type Config struct {
	Retain int
}

// Default retention keeps the last 256 events when no explicit value is set.
const defaultRetention = 256

// Stream coordinates ordered event delivery with at-least-once semantics per
// subscriber, so the recorder and telemetry fan-out never miss a transition.
type Stream struct {
	mu      sync.Mutex
	nextSeq uint64
	retain  int
	order   []uint64
	bySeq   map[uint64]*Envelope
	subs    map[string]*subscriberState
}

// subscriberState persists acknowledgement progress across reconnects.
type subscriberState struct {
	id      string
	pending []uint64
	lastAck uint64
	ch      chan *Envelope
	active  bool
}

// Subscription exposes the delivery channel and acknowledgement helpers.
type Subscription struct {
	id     string
	stream *Stream
	events <-chan *Envelope
	once   sync.Once
}

// ErrOutOfOrderAck signals an acknowledgement for a sequence that is not the
// subscriber's next pending event.
var ErrOutOfOrderAck = errors.New("ack sequence must match the next pending event")

// NewStream constructs a stream using the provided configuration.
func NewStream(cfg Config) *Stream {
	retain := cfg.Retain
	if retain <= 0 {
		retain = defaultRetention
	}
	return &Stream{
		retain: retain,
		bySeq:  make(map[uint64]*Envelope),
		subs:   make(map[string]*subscriberState),
	}
}

// Subscribe attaches the logical subscriber and replays outstanding events.
func (s *Stream) Subscribe(ctx context.Context, subscriberID string, buffer int) (*Subscription, error) {
	if s == nil {
		return nil, errors.New("nil stream")
	}
	if subscriberID == "" {
		return nil, errors.New("subscriber id must be provided")
	}
	if buffer <= 0 {
		buffer = 32
	}

	s.mu.Lock()
	state := s.ensureSubscriberLocked(subscriberID)
	replay := s.collectReplayLocked(state)
	ch := make(chan *Envelope, buffer)
	state.ch = ch
	state.active = true
	state.pending = append([]uint64(nil), replay...)
	deliveries := s.snapshotEnvelopesLocked(replay)
	s.mu.Unlock()

	go func() {
		//1.- Push the replayed backlog before any fresh publish reaches the channel.
		for _, env := range deliveries {
			select {
			case <-ctx.Done():
				return
			case ch <- env:
			}
		}
	}()

	return &Subscription{id: subscriberID, stream: s, events: ch}, nil
}

// Events exposes the ordered delivery channel for the subscriber.
func (s *Subscription) Events() <-chan *Envelope {
	if s == nil {
		return nil
	}
	return s.events
}

// Ack informs the stream that the subscriber processed the given sequence.
func (s *Subscription) Ack(sequence uint64) error {
	if s == nil || s.stream == nil {
		return errors.New("subscription closed")
	}
	return s.stream.ack(s.id, sequence)
}

// Close marks the subscription inactive while keeping acknowledgement state.
func (s *Subscription) Close() {
	if s == nil || s.stream == nil {
		return
	}
	s.once.Do(func() {
		s.stream.deactivate(s.id)
	})
}

func (s *Stream) ensureSubscriberLocked(subscriberID string) *subscriberState {
	state, ok := s.subs[subscriberID]
	if !ok {
		state = &subscriberState{id: subscriberID}
		s.subs[subscriberID] = state
	}
	return state
}

func (s *Stream) collectReplayLocked(state *subscriberState) []uint64 {
	//1.- A reconnecting subscriber owes every retained sequence above its last ack.
	var replay []uint64
	for _, seq := range s.order {
		if seq <= state.lastAck {
			continue
		}
		replay = append(replay, seq)
	}
	return replay
}

func (s *Stream) snapshotEnvelopesLocked(sequences []uint64) []*Envelope {
	deliveries := make([]*Envelope, 0, len(sequences))
	for _, seq := range sequences {
		if payload, ok := s.bySeq[seq]; ok {
			deliveries = append(deliveries, payload.Clone())
		}
	}
	return deliveries
}

// PublishEngagement enqueues a state machine event under its matching kind.
func (s *Stream) PublishEngagement(simTime float64, wallMs int64, event engage.Event) (uint64, error) {
	if s == nil {
		return 0, errors.New("nil stream")
	}
	var kind Kind
	switch event.Kind {
	case "transition":
		kind = KindPhase
	case "acquired":
		kind = KindTarget
	case "attempt":
		kind = KindAttempt
	default:
		return 0, fmt.Errorf("unsupported engagement event kind %q", event.Kind)
	}
	payload := event
	return s.publish(&Envelope{Kind: kind, SimTime: simTime, WallMs: wallMs, Engagement: &payload})
}

// PublishTrack enqueues a tracker lifecycle change.
func (s *Stream) PublishTrack(simTime float64, wallMs int64, event TrackEvent) (uint64, error) {
	if s == nil {
		return 0, errors.New("nil stream")
	}
	if event.TrackID <= 0 {
		return 0, fmt.Errorf("track event needs a positive id, got %d", event.TrackID)
	}
	switch event.Change {
	case "spawned", "expired":
	default:
		return 0, fmt.Errorf("unsupported track change %q", event.Change)
	}
	payload := event
	return s.publish(&Envelope{Kind: KindTrack, SimTime: simTime, WallMs: wallMs, Track: &payload})
}

// PublishSystem enqueues an operator or runtime state change.
func (s *Stream) PublishSystem(simTime float64, wallMs int64, event SystemEvent) (uint64, error) {
	if s == nil {
		return 0, errors.New("nil stream")
	}
	if event.Change == "" {
		return 0, errors.New("system event needs a change label")
	}
	payload := event
	return s.publish(&Envelope{Kind: KindSystem, SimTime: simTime, WallMs: wallMs, System: &payload})
}

func (s *Stream) publish(envelope *Envelope) (uint64, error) {
	if envelope == nil {
		return 0, errors.New("envelope required")
	}

	s.mu.Lock()
	s.nextSeq++
	seq := s.nextSeq
	envelope.Sequence = seq
	s.bySeq[seq] = envelope
	s.order = append(s.order, seq)

	deliveries := make([]delivery, 0, len(s.subs))
	for _, state := range s.subs {
		state.pending = append(state.pending, seq)
		if state.active && state.ch != nil {
			deliveries = append(deliveries, delivery{ch: state.ch, payload: envelope.Clone()})
		}
	}
	s.pruneLocked()
	s.mu.Unlock()

	for _, item := range deliveries {
		//1.- Never block the control loop on a slow consumer; replay covers the gap.
		select {
		case item.ch <- item.payload:
		default:
		}
	}

	return seq, nil
}

type delivery struct {
	ch      chan<- *Envelope
	payload *Envelope
}

func (s *Stream) pruneLocked() {
	if len(s.order) <= s.retain {
		return
	}
	//1.- Keep everything at least one subscriber still has to acknowledge.
	minAck := s.nextSeq
	for _, state := range s.subs {
		if state.lastAck < minAck {
			minAck = state.lastAck
		}
	}
	cutoff := s.order[len(s.order)-s.retain]
	pruneBefore := minAck
	if cutoff < pruneBefore {
		pruneBefore = cutoff
	}
	if pruneBefore == 0 {
		return
	}
	idx := sort.Search(len(s.order), func(i int) bool { return s.order[i] > pruneBefore })
	for _, seq := range s.order[:idx] {
		delete(s.bySeq, seq)
	}
	s.order = append([]uint64(nil), s.order[idx:]...)
}

func (s *Stream) ack(subscriberID string, sequence uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.subs[subscriberID]
	if !ok {
		return fmt.Errorf("unknown subscriber %q", subscriberID)
	}
	if len(state.pending) == 0 {
		if sequence <= state.lastAck {
			return nil
		}
		return ErrOutOfOrderAck
	}
	if sequence != state.pending[0] {
		return ErrOutOfOrderAck
	}
	state.pending = state.pending[1:]
	state.lastAck = sequence
	s.pruneLocked()
	return nil
}

func (s *Stream) deactivate(subscriberID string) {
	s.mu.Lock()
	state, ok := s.subs[subscriberID]
	if ok {
		state.active = false
		if state.ch != nil {
			close(state.ch)
			state.ch = nil
		}
	}
	s.mu.Unlock()
}
