package langflow

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPacerSpacing(t *testing.T) {
	p := newPacer(2) // 500ms between starts

	var slept []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := p.wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}

	// First call goes through on the initial token; the next two are
	// delayed roughly 500ms apart.
	if len(slept) != 2 {
		t.Fatalf("slept %d times, want 2 (delays: %v)", len(slept), slept)
	}
	for i, d := range slept {
		if d <= 0 || d > time.Second {
			t.Errorf("delay %d = %v, want ~500ms", i, d)
		}
	}
}

func TestPacerDisabled(t *testing.T) {
	p := newPacer(0)
	p.sleep = func(context.Context, time.Duration) error {
		t.Fatal("disabled pacer must never sleep")
		return nil
	}

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		if err := p.wait(ctx); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
}

func TestPacerCancelledContext(t *testing.T) {
	p := newPacer(1)
	cancelled := errors.New("cancelled")
	p.sleep = func(context.Context, time.Duration) error {
		return cancelled
	}

	ctx := context.Background()
	if err := p.wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	if err := p.wait(ctx); !errors.Is(err, cancelled) {
		t.Fatalf("wait = %v, want cancellation error", err)
	}
}
