package media

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/voicecall/internal/core"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrCaptureUnavailable = errors.New("capture unavailable")

// Capturer acquires the local audio source.
type Capturer interface {
	Capture(ctx context.Context) (*LocalCapture, error)
}

type CapturerFunc func(ctx context.Context) (*LocalCapture, error)

func (f CapturerFunc) Capture(ctx context.Context) (*LocalCapture, error) { return f(ctx) }

// LocalCapture is the local stream shared by the peer connection and the mixer.
// Release stops its tracks exactly once.
type LocalCapture struct {
	stream    *Stream
	onRelease func()

	once     sync.Once
	mu       sync.Mutex
	released bool
}

func NewLocalCapture(stream *Stream, onRelease func()) *LocalCapture {
	return &LocalCapture{stream: stream, onRelease: onRelease}
}

func (c *LocalCapture) Stream() core.Stream { return c.stream }

func (c *LocalCapture) Release() {
	c.once.Do(func() {
		for _, t := range c.stream.Tracks() {
			t.Stop()
		}
		if c.onRelease != nil {
			c.onRelease()
		}
		c.mu.Lock()
		c.released = true
		c.mu.Unlock()
		log.Info().Str("module", "media.capture").Str("stream", c.stream.ID()).Msg("capture released")
	})
}

func (c *LocalCapture) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

// ToneCapturer stands in for a microphone with a sine tone paced by Clock.
type ToneCapturer struct {
	Frequency float64
	Amplitude float64
	Clock     clock.Clock
}

func NewToneCapturer(clk clock.Clock) *ToneCapturer {
	if clk == nil {
		clk = clock.New()
	}
	return &ToneCapturer{Frequency: 440, Amplitude: 0.3, Clock: clk}
}

func (tc *ToneCapturer) Capture(ctx context.Context) (*LocalCapture, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(ErrCaptureUnavailable, err)
	}
	track := NewAudioTrack("tone-" + uuid.NewString())
	stream := NewStream("local-"+uuid.NewString(), track)

	ticker := tc.Clock.Ticker(core.FrameDuration)
	go tc.run(track, ticker)

	log.Info().Str("module", "media.capture").Float64("freq", tc.Frequency).Str("track", track.ID()).Msg("tone capture started")
	return NewLocalCapture(stream, ticker.Stop), nil
}

func (tc *ToneCapturer) run(track *Track, ticker *clock.Ticker) {
	var n int
	for {
		select {
		case <-track.Ended():
			return
		case <-ticker.C:
			frame := make(core.Frame, core.FrameSamples)
			for i := range frame {
				t := float64(n) / core.SampleRate
				frame[i] = int16(tc.Amplitude * math.MaxInt16 * math.Sin(2*math.Pi*tc.Frequency*t))
				n++
			}
			track.Write(frame)
		}
	}
}
