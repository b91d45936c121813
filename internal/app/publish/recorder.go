package publish

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/media"
	"github.com/rs/zerolog"
)

// Recorder cuts the audio of a stream into one encoded chunk per interval.
type Recorder struct {
	clock    clock.Clock
	interval time.Duration
	codec    media.Codec
	emit     func(ctx context.Context, seq uint64, chunk []byte)
	logger   zerolog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	stopped   chan struct{}
}

func NewRecorder(clk clock.Clock, interval time.Duration, codec media.Codec,
	emit func(ctx context.Context, seq uint64, chunk []byte), logger zerolog.Logger,
) *Recorder {
	return &Recorder{
		clock:    clk,
		interval: interval,
		codec:    codec,
		emit:     emit,
		logger:   logger,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start begins capture on the first audio track of s. The chunk timer starts now.
func (r *Recorder) Start(ctx context.Context, s core.Stream) {
	r.startOnce.Do(func() {
		var frames <-chan core.Frame
		release := func() {}
		tracks := s.AudioTracks()
		switch {
		case len(tracks) == 0:
			r.logger.Error().Str("stream", s.ID()).Msg("recorder: stream has no audio, nothing will be cut")
		case len(tracks) > 1:
			r.logger.Warn().Str("stream", s.ID()).Int("tracks", len(tracks)).Msg("recorder: recording first audio track only")
			fallthrough
		default:
			frames, release = tracks[0].Subscribe()
		}
		ticker := r.clock.Ticker(r.interval)
		go r.run(ctx, ticker, frames, release)
	})
}

// Stop ends capture. The returned channel closes after the final chunk is emitted.
func (r *Recorder) Stop() <-chan struct{} {
	r.stopOnce.Do(func() { close(r.stop) })
	return r.stopped
}

func (r *Recorder) run(ctx context.Context, ticker *clock.Ticker, frames <-chan core.Frame, release func()) {
	defer close(r.stopped)
	defer release()
	defer ticker.Stop()

	var (
		buf []core.Frame
		seq uint64
	)
	cut := func() {
		if len(buf) == 0 {
			r.logger.Debug().Msg("recorder: empty slice skipped")
			return
		}
		chunk := r.codec.Encode(buf)
		buf = buf[:0]
		if len(chunk) == 0 {
			return
		}
		seq++
		r.emit(ctx, seq, chunk)
	}

	for {
		select {
		case f, ok := <-frames:
			if !ok {
				r.logger.Info().Msg("recorder: source track ended")
				frames = nil
				continue
			}
			buf = append(buf, f)
		case <-ticker.C:
			cut()
		case <-r.stop:
			cut()
			r.logger.Info().Uint64("chunks", seq).Msg("recorder stopped")
			return
		}
	}
}
