package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"skyshield/interceptor/internal/engage"
)

func TestStreamDeliverAndAck(t *testing.T) {
	//1.- Arrange a stream and subscribe a test consumer.
	stream := NewStream(Config{Retain: 8})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := stream.Subscribe(ctx, "recorder", 4)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	//2.- Publish one event of each family for coverage.
	transition := engage.Event{Kind: "transition", From: "idle", To: "acquire", At: 0.2}
	if _, err := stream.PublishEngagement(0.2, 200, transition); err != nil {
		t.Fatalf("publish engagement failed: %v", err)
	}
	if _, err := stream.PublishTrack(0.3, 300, TrackEvent{TrackID: 4, Change: "spawned"}); err != nil {
		t.Fatalf("publish track failed: %v", err)
	}
	if _, err := stream.PublishSystem(0.4, 400, SystemEvent{Change: "paused"}); err != nil {
		t.Fatalf("publish system failed: %v", err)
	}

	//3.- Assert sequential delivery and sequential acknowledgement.
	wantKinds := []Kind{KindPhase, KindTrack, KindSystem}
	for expected := uint64(1); expected <= 3; expected++ {
		select {
		case env := <-sub.Events():
			if env.Sequence != expected {
				t.Fatalf("expected sequence %d, got %d", expected, env.Sequence)
			}
			if env.Kind != wantKinds[expected-1] {
				t.Fatalf("expected kind %q at sequence %d, got %q", wantKinds[expected-1], expected, env.Kind)
			}
			if err := sub.Ack(env.Sequence); err != nil {
				t.Fatalf("ack failed: %v", err)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for event %d", expected)
		}
	}
}

func TestStreamResendsUnackedEventsOnResubscribe(t *testing.T) {
	//1.- Establish the stream and initial subscription.
	stream := NewStream(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := stream.Subscribe(ctx, "telemetry", 2)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	//2.- Publish two track events and ack only the first.
	if _, err := stream.PublishTrack(0.1, 100, TrackEvent{TrackID: 1, Change: "spawned"}); err != nil {
		t.Fatalf("publish first track failed: %v", err)
	}
	if _, err := stream.PublishTrack(0.2, 200, TrackEvent{TrackID: 2, Change: "spawned"}); err != nil {
		t.Fatalf("publish second track failed: %v", err)
	}

	env := <-sub.Events()
	if env.Track == nil || env.Track.TrackID != 1 {
		t.Fatalf("expected first track event, got %+v", env)
	}
	if err := sub.Ack(env.Sequence); err != nil {
		t.Fatalf("ack first failed: %v", err)
	}

	//3.- Drop the second event to simulate consumer loss and close the subscription.
	<-sub.Events() // intentionally read without acking
	sub.Close()

	//4.- Re-subscribe and ensure the unacked event is replayed.
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()

	replay, err := stream.Subscribe(ctx2, "telemetry", 2)
	if err != nil {
		t.Fatalf("resubscribe failed: %v", err)
	}

	select {
	case env := <-replay.Events():
		if env.Track == nil || env.Track.TrackID != 2 {
			t.Fatalf("expected replay of second track event, got %+v", env)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for replayed event")
	}
}

func TestStreamRejectsOutOfOrderAck(t *testing.T) {
	//1.- Create the stream and publish a pair of events.
	stream := NewStream(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := stream.Subscribe(ctx, "shell", 2)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if _, err := stream.PublishSystem(0.1, 100, SystemEvent{Change: "paused"}); err != nil {
		t.Fatalf("publish pause failed: %v", err)
	}
	if _, err := stream.PublishSystem(0.2, 200, SystemEvent{Change: "resumed"}); err != nil {
		t.Fatalf("publish resume failed: %v", err)
	}

	first := <-sub.Events()
	second := <-sub.Events()

	//2.- Attempt to ack the second sequence before the first and expect an error.
	if err := sub.Ack(second.Sequence); !errors.Is(err, ErrOutOfOrderAck) {
		t.Fatalf("expected out of order error, got %v", err)
	}

	//3.- Ack in the correct order to ensure recovery remains possible.
	if err := sub.Ack(first.Sequence); err != nil {
		t.Fatalf("ack first failed: %v", err)
	}
	if err := sub.Ack(second.Sequence); err != nil {
		t.Fatalf("ack second failed: %v", err)
	}
}

func TestPublishValidatesPayloads(t *testing.T) {
	stream := NewStream(Config{})
	//1.- Engagement events must carry a known kind label.
	if _, err := stream.PublishEngagement(0, 0, engage.Event{Kind: "mystery"}); err == nil {
		t.Fatal("expected unknown engagement kind to be rejected")
	}
	//2.- Track events must reference a real track and a known change.
	if _, err := stream.PublishTrack(0, 0, TrackEvent{TrackID: 0, Change: "spawned"}); err == nil {
		t.Fatal("expected non-positive track id to be rejected")
	}
	if _, err := stream.PublishTrack(0, 0, TrackEvent{TrackID: 2, Change: "vanished"}); err == nil {
		t.Fatal("expected unknown track change to be rejected")
	}
	//3.- System events must name the change.
	if _, err := stream.PublishSystem(0, 0, SystemEvent{}); err == nil {
		t.Fatal("expected empty system change to be rejected")
	}
}

func TestStreamCloneIsolatesSubscribers(t *testing.T) {
	stream := NewStream(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := stream.Subscribe(ctx, "mutator", 1)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if _, err := stream.PublishTrack(0.5, 500, TrackEvent{TrackID: 9, Change: "expired", Reason: "silent"}); err != nil {
		t.Fatalf("publish track failed: %v", err)
	}

	env := <-sub.Events()
	env.Track.TrackID = 99

	//1.- A fresh subscriber must replay the original payload untouched.
	other, err := stream.Subscribe(ctx, "auditor", 1)
	if err != nil {
		t.Fatalf("second subscribe failed: %v", err)
	}
	select {
	case replay := <-other.Events():
		if replay.Track.TrackID != 9 {
			t.Fatalf("expected replay to keep track id 9, got %d", replay.Track.TrackID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for replayed event")
	}
}
