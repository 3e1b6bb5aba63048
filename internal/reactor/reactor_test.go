package reactor

import (
	"os"
	"testing"
	"time"
)

func TestRegisterAndPollReadable(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	rPipe, wPipe, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer rPipe.Close()
	defer wPipe.Close()

	rfd := int(rPipe.Fd())
	if err := r.Register(rfd, Readable); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := wPipe.Write([]byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	events := make([]Event, 0, 8)
	events, err = r.Poll(time.Second, events)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(events) != 1 || events[0].FD != rfd || !events[0].Readable {
		t.Fatalf("expected one readable event for the pipe fd, got %+v", events)
	}
}

func TestPollTimesOutWithNoEvents(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()
	r.MaxIdleWait = 20 * time.Millisecond

	events := make([]Event, 0, 8)
	start := time.Now()
	events, err = r.Poll(time.Second, events)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %+v", events)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("expected Poll to clamp to MaxIdleWait, took %v", time.Since(start))
	}
}

func TestDeregisterIsIdempotent(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	rPipe, wPipe, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer rPipe.Close()
	defer wPipe.Close()

	fd := int(rPipe.Fd())
	if err := r.Register(fd, Readable); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Deregister(fd); err != nil {
		t.Fatalf("Deregister: %v", err)
	}
	if err := r.Deregister(fd); err != nil {
		t.Fatalf("expected a second Deregister of an absent fd to be a no-op, got %v", err)
	}
}
