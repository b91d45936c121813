package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/media"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

var (
	ErrDestinationUnavailable = errors.New("destination unavailable")
	ErrNoEndpoints            = errors.New("no endpoints")
	ErrStartAborted           = errors.New("stopped before recording started")
)

const (
	DefaultChunkInterval = 250 * time.Millisecond
	DefaultDrainDelay    = 3 * time.Second
)

type Config struct {
	ChunkInterval time.Duration `mapstructure:"chunk_interval"`
	DrainDelay    time.Duration `mapstructure:"drain_delay"`
	Codec         string        `mapstructure:"codec"`
}

type Option func(*Publisher)

func WithClock(c clock.Clock) Option { return func(p *Publisher) { p.clock = c } }

func WithDialer(d Dialer) Option { return func(p *Publisher) { p.dialer = d } }

type Stats struct {
	ChunksCut        uint64
	ChunksDelivered  uint64
	LiveDestinations int
}

// Publisher streams one recording at a time to a fixed set of collectors.
type Publisher struct {
	cfg    Config
	codec  media.Codec
	clock  clock.Clock
	dialer Dialer

	mu       sync.Mutex
	session  *Session
	recorder *Recorder
	cancel   context.CancelFunc
	draining chan struct{}
	starting *pendingStart
	last     *Session
}

// pendingStart is a Start still waiting on its connect barrier.
type pendingStart struct {
	cancel  context.CancelFunc
	stopped bool
}

func New(cfg Config, opts ...Option) *Publisher {
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = DefaultChunkInterval
	}
	if cfg.DrainDelay == 0 {
		cfg.DrainDelay = DefaultDrainDelay
	}
	p := &Publisher{
		cfg:    cfg,
		codec:  media.SelectCodec(cfg.Codec),
		clock:  clock.New(),
		dialer: NewWSDialer(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start opens every endpoint and, only when all of them are open, starts cutting chunks.
// It does nothing while a recording is active.
func (p *Publisher) Start(ctx context.Context, stream core.Stream, endpoints []Endpoint) error {
	if len(endpoints) == 0 {
		return ErrNoEndpoints
	}
	p.mu.Lock()
	if p.session != nil || p.starting != nil {
		p.mu.Unlock()
		log.Warn().Str("module", "app.publish").Msg("already recording")
		return nil
	}
	dialCtx, cancelDial := context.WithCancel(ctx)
	defer cancelDial()
	st := &pendingStart{cancel: cancelDial}
	p.starting = st
	p.mu.Unlock()

	// The barrier runs unlocked so Stop can abort it.
	dests, err := p.connectAll(dialCtx, endpoints)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.starting = nil
	if st.stopped {
		for _, d := range dests {
			d.close()
		}
		log.Info().Str("module", "app.publish").Msg("start aborted by stop")
		return ErrStartAborted
	}
	if err != nil {
		return err
	}

	sess := newSession(dests, log.With().Str("module", "app.publish").Logger())
	runCtx, cancel := context.WithCancel(context.Background())
	rec := NewRecorder(p.clock, p.cfg.ChunkInterval, p.codec, sess.deliver, sess.logger)
	rec.Start(runCtx, stream)

	p.session, p.recorder, p.cancel = sess, rec, cancel
	p.last = sess
	sess.logger.Info().
		Int("destinations", len(dests)).
		Str("codec", p.codec.Name()).
		Dur("interval", p.cfg.ChunkInterval).
		Msg("recording started")
	return nil
}

// connectAll is all-or-nothing: the first failure cancels the rest and closes what opened.
func (p *Publisher) connectAll(ctx context.Context, endpoints []Endpoint) ([]*destination, error) {
	var (
		mu     sync.Mutex
		opened []*destination
	)
	pl := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for _, ep := range endpoints {
		pl.Go(func(ctx context.Context) error {
			conn, err := p.dialer.Dial(ctx, ep.URL)
			if err != nil {
				return fmt.Errorf("%w: %s (%s): %w", ErrDestinationUnavailable, ep.Role, ep.URL, err)
			}
			mu.Lock()
			opened = append(opened, newDestination(ep, conn))
			mu.Unlock()
			log.Info().Str("module", "app.publish").Str("role", ep.Role).Msg("destination open")
			return nil
		})
	}
	if err := pl.Wait(); err != nil {
		for _, d := range opened {
			d.close()
		}
		log.Error().Err(err).Str("module", "app.publish").Int("opened", len(opened)).Msg("connect barrier failed")
		return nil, err
	}
	return opened, nil
}

// Stop ends the recording and aborts a Start still connecting. While recording it waits for the final chunk, then holds the
// destinations open for the drain delay; otherwise they close at once. The returned
// channel closes when every destination is closed.
func (p *Publisher) Stop() <-chan struct{} {
	p.mu.Lock()
	if st := p.starting; st != nil {
		st.stopped = true
		st.cancel()
	}
	if p.draining != nil {
		ch := p.draining
		p.mu.Unlock()
		return ch
	}
	sess, rec, cancel := p.session, p.recorder, p.cancel
	if sess == nil {
		p.mu.Unlock()
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	done := make(chan struct{})
	p.draining = done
	p.mu.Unlock()

	finish := func() {
		sess.closeAll()
		cancel()
		p.mu.Lock()
		p.session, p.recorder, p.cancel, p.draining = nil, nil, nil, nil
		p.mu.Unlock()
		close(done)
	}

	if rec == nil {
		finish()
		return done
	}
	<-rec.Stop()
	sess.logger.Info().Dur("drain", p.cfg.DrainDelay).Msg("recorder stopped, draining")
	p.clock.AfterFunc(p.cfg.DrainDelay, finish)
	return done
}

// Recording reports whether chunks are being cut right now.
func (p *Publisher) Recording() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session != nil && p.draining == nil
}

// Stats describes the current session, or the last one after Stop.
func (p *Publisher) Stats() Stats {
	p.mu.Lock()
	sess := p.last
	p.mu.Unlock()
	if sess == nil {
		return Stats{}
	}
	return Stats{
		ChunksCut:        sess.cut.Load(),
		ChunksDelivered:  sess.delivered.Load(),
		LiveDestinations: sess.live(),
	}
}
