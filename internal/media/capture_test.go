package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/voicecall/internal/core"
)

func TestToneCapturerProducesFrames(t *testing.T) {
	clk := clock.NewMock()
	lc, err := NewToneCapturer(clk).Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	defer lc.Release()

	tracks := lc.Stream().AudioTracks()
	if len(tracks) != 1 {
		t.Fatalf("want one audio track, got %d", len(tracks))
	}
	ch, release := tracks[0].Subscribe()
	defer release()

	clk.Add(core.FrameDuration)
	select {
	case f := <-ch:
		if len(f) != core.FrameSamples {
			t.Fatalf("frame has %d samples, want %d", len(f), core.FrameSamples)
		}
		var nonZero bool
		for _, s := range f {
			if s != 0 {
				nonZero = true
				break
			}
		}
		if !nonZero {
			t.Fatal("tone frame is silent")
		}
	case <-time.After(time.Second):
		t.Fatal("no frame after one tick")
	}
}

func TestLocalCaptureReleaseOnce(t *testing.T) {
	tr := NewAudioTrack("mic")
	calls := 0
	lc := NewLocalCapture(NewStream("local", tr), func() { calls++ })

	lc.Release()
	lc.Release()

	if calls != 1 {
		t.Fatalf("release hook ran %d times", calls)
	}
	if !lc.Released() {
		t.Fatal("Released() = false after Release")
	}
	select {
	case <-tr.Ended():
	default:
		t.Fatal("track still live after Release")
	}
}

func TestToneCapturerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewToneCapturer(clock.NewMock()).Capture(ctx)
	if !errors.Is(err, ErrCaptureUnavailable) {
		t.Fatalf("err = %v, want ErrCaptureUnavailable", err)
	}
}
