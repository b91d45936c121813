package mixer

import (
	"errors"
	"math"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/media"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoAudioTracks = errors.New("stream has no audio tracks")
	ErrClosed        = errors.New("mixer closed")
)

type Option func(*Mixer)

func WithClock(c clock.Clock) Option { return func(m *Mixer) { m.clock = c } }

// input is one subscribed audio track. The subscription buffer is its jitter queue.
type input struct {
	stream  string
	frames  <-chan core.Frame
	release func()
}

// Mixer sums every added audio track into a single sink stream, one frame per tick.
type Mixer struct {
	clock clock.Clock
	out   *media.Track
	sink  *media.Stream

	mu      sync.Mutex
	inputs  []*input
	streams int
	closed  bool

	stop chan struct{}
	done chan struct{}
}

func New(opts ...Option) *Mixer {
	m := &Mixer{
		clock: clock.New(),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	id := uuid.NewString()
	m.out = media.NewAudioTrack("mix-" + id)
	m.sink = media.NewStream("mixed-"+id, m.out)

	ticker := m.clock.Ticker(core.FrameDuration)
	go m.run(ticker)
	return m
}

// AddStream subscribes all audio tracks of s. A stream without audio is rejected.
func (m *Mixer) AddStream(s core.Stream) error {
	tracks := s.AudioTracks()
	if len(tracks) == 0 {
		log.Warn().Str("module", "app.mixer").Str("stream", s.ID()).Msg("stream has no audio tracks")
		return ErrNoAudioTracks
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, t := range tracks {
		frames, release := t.Subscribe()
		m.inputs = append(m.inputs, &input{stream: s.ID(), frames: frames, release: release})
	}
	m.streams++
	log.Info().Str("module", "app.mixer").Str("stream", s.ID()).Int("tracks", len(tracks)).Int("sources", m.streams).Msg("stream added")
	return nil
}

func (m *Mixer) MixedStream() core.Stream { return m.sink }

func (m *Mixer) SourceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams
}

// Close stops the bus. Completion is signalled on Done, which also closes on its own
// when any input ends.
func (m *Mixer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.stop)
}

func (m *Mixer) Done() <-chan struct{} { return m.done }

func (m *Mixer) run(ticker *clock.Ticker) {
	defer close(m.done)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			m.teardown()
			return
		case <-ticker.C:
			f, lost := m.pull()
			if lost != "" {
				m.lose(lost)
				return
			}
			if f != nil {
				m.out.Write(f)
			}
		}
	}
}

// pull takes at most one frame from each input. It reports the stream of the first
// input found ended; the mix does not outlive any of its inputs.
func (m *Mixer) pull() (core.Frame, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.inputs) == 0 {
		return nil, ""
	}
	frames := make([]core.Frame, 0, len(m.inputs))
	for _, in := range m.inputs {
		select {
		case f, ok := <-in.frames:
			if !ok {
				return nil, in.stream
			}
			frames = append(frames, f)
		default:
		}
	}
	return mix(frames, core.FrameSamples), ""
}

// lose closes the mixer from the bus goroutine after an input ended.
func (m *Mixer) lose(stream string) {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	log.Warn().Str("module", "app.mixer").Str("stream", stream).Msg("input ended, closing mix")
	m.teardown()
}

func (m *Mixer) teardown() {
	m.mu.Lock()
	inputs := m.inputs
	m.inputs = nil
	m.streams = 0
	m.mu.Unlock()
	for _, in := range inputs {
		in.release()
	}
	m.out.Stop()
	log.Info().Str("module", "app.mixer").Msg("mixer closed")
}

// mix sums frames sample by sample with int16 clipping. Short or missing input is silence.
func mix(frames []core.Frame, size int) core.Frame {
	out := make(core.Frame, size)
	for i := range out {
		var sum int32
		for _, f := range frames {
			if i < len(f) {
				sum += int32(f[i])
			}
		}
		if sum > math.MaxInt16 {
			sum = math.MaxInt16
		} else if sum < math.MinInt16 {
			sum = math.MinInt16
		}
		out[i] = int16(sum)
	}
	return out
}
