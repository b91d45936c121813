package publish

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// Session is one Start..Stop run: its destinations and chunk counters.
type Session struct {
	ID    string
	dests []*destination

	cut       atomic.Uint64
	delivered atomic.Uint64

	logger zerolog.Logger
}

func newSession(dests []*destination, logger zerolog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		ID:     id,
		dests:  dests,
		logger: logger.With().Str("session", id).Logger(),
	}
}

// deliver writes chunk to every live destination concurrently and returns once all writes finish.
// A destination whose write fails is marked dead and skipped from then on.
func (s *Session) deliver(ctx context.Context, seq uint64, chunk []byte) {
	s.cut.Add(1)
	var wg conc.WaitGroup
	for _, d := range s.dests {
		if d.State() != DestinationOk {
			continue
		}
		wg.Go(func() {
			if err := d.conn.WriteChunk(ctx, chunk); err != nil {
				s.logger.Error().
					Err(err).
					Str("role", d.Role).
					Uint64("seq", seq).
					Msg("chunk write error, marking destination dead")
				d.MarkDead()
				return
			}
			d.delivered.Add(1)
			s.delivered.Add(1)
		})
	}
	wg.Wait()
	s.logger.Debug().Uint64("seq", seq).Int("bytes", len(chunk)).Msg("chunk delivered")
}

func (s *Session) live() int {
	n := 0
	for _, d := range s.dests {
		if d.State() == DestinationOk {
			n++
		}
	}
	return n
}

func (s *Session) closeAll() {
	var wg conc.WaitGroup
	for _, d := range s.dests {
		wg.Go(d.close)
	}
	wg.Wait()
	s.logger.Info().Uint64("chunks", s.cut.Load()).Msg("destinations closed")
}
