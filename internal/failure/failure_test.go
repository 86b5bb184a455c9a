package failure

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	base := New(RasterTooLarge, "width %d exceeds %d", 20000, 16384)
	wrapped := fmt.Errorf("capture: %w", base)

	if got := KindOf(wrapped); got != RasterTooLarge {
		t.Fatalf("KindOf: got %q, want %q", got, RasterTooLarge)
	}
	if got := KindOf(errors.New("boom")); got != Internal {
		t.Fatalf("KindOf(plain): got %q, want %q", got, Internal)
	}
	if got := KindOf(nil); got != "" {
		t.Fatalf("KindOf(nil): got %q, want empty", got)
	}
}

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("job: %w", Wrap(CaptureUnavailable, errors.New("tab closed"), "frame source"))
	if !errors.Is(err, &Error{Kind: CaptureUnavailable}) {
		t.Fatal("errors.Is should match on kind")
	}
	if errors.Is(err, &Error{Kind: DeliveryFailed}) {
		t.Fatal("errors.Is should not match a different kind")
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(DeliveryFailed, nil, "x"); err != nil {
		t.Fatalf("Wrap(nil): got %v, want nil", err)
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{New(InvalidRegion, "width must be positive"), "width must be positive"},
		{Wrap(DeliveryFailed, errors.New("disk full"), "write capture.png"), "write capture.png: disk full"},
		{&Error{Kind: Internal}, "internal"},
		{errors.New("plain"), "plain"},
	}
	for _, tt := range tests {
		if got := Message(tt.err); got != tt.want {
			t.Errorf("Message(%v): got %q, want %q", tt.err, got, tt.want)
		}
	}
}
