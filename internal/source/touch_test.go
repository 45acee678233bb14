package source

import (
	"testing"

	"github.com/UT07/keysense-app-sub002/sdk/contracts"
)

func TestTouchInjectRoundTrip(t *testing.T) {
	src := NewTouch()
	log := &eventLog{}
	src.Subscribe(log.add)
	if err := src.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	src.Inject(60, 110, true, 10)
	src.Inject(60, 0, false, 250)

	events := log.all()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(events), events)
	}
	on := events[0]
	if on.Kind != contracts.NoteOn || on.PitchNumber != 60 || on.Velocity != 110 ||
		on.TimestampMs != 10 || on.Source != contracts.SourceTouch {
		t.Fatalf("unexpected NoteOn %+v", on)
	}
	if events[1].Kind != contracts.NoteOff || events[1].TimestampMs != 250 {
		t.Fatalf("unexpected NoteOff %+v", events[1])
	}
}

func TestTouchDropsWhileStopped(t *testing.T) {
	src := NewTouch()
	log := &eventLog{}
	src.Subscribe(log.add)

	src.Inject(60, 100, true, 10)
	if len(log.all()) != 0 {
		t.Fatal("event accepted before Start")
	}

	if err := src.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	src.Inject(60, 100, true, 20)
	if len(log.all()) != 0 {
		t.Fatal("event accepted after Stop")
	}
}

func TestTouchStopFlushesHeldKeys(t *testing.T) {
	src := NewTouch()
	src.nowMs = func() int64 { return 400 }
	log := &eventLog{}
	src.Subscribe(log.add)
	if err := src.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	src.Inject(48, 90, true, 10)
	src.Inject(55, 90, true, 12)
	src.Inject(48, 0, false, 20)
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	events := log.all()
	// On 48, on 55, off 48, then only 55 is still held at Stop.
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4: %+v", len(events), events)
	}
	flush := events[3]
	if flush.Kind != contracts.NoteOff || flush.PitchNumber != 55 || flush.TimestampMs != 400 {
		t.Fatalf("flush event %+v, want NoteOff pitch 55 at 400ms", flush)
	}
}

func TestTouchStampsMissingTimestamp(t *testing.T) {
	src := NewTouch()
	src.nowMs = func() int64 { return 123 }
	log := &eventLog{}
	src.Subscribe(log.add)
	if err := src.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	src.Inject(72, 100, true, 0)
	events := log.all()
	if len(events) != 1 || events[0].TimestampMs != 123 {
		t.Fatalf("missing timestamp not stamped: %+v", events)
	}
}
