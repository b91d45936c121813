package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/voicecall/internal/adapters/rtc"
	"github.com/dkeye/voicecall/internal/adapters/signal"
	"github.com/dkeye/voicecall/internal/app/mixer"
	"github.com/dkeye/voicecall/internal/app/publish"
	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/dkeye/voicecall/internal/media"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoPendingOffer = errors.New("no pending offer")
	ErrHungUp         = errors.New("call session hung up")
)

type Config struct {
	Membership   domain.Membership
	SignalingURL string
	RTC          rtc.Config
	Publish      publish.Config
	Endpoints    []publish.Endpoint
	// StartTimeout bounds the collector connect barrier.
	StartTimeout time.Duration
}

type Option func(*Session)

func WithClock(c clock.Clock) Option { return func(s *Session) { s.clock = c } }

func WithCapturer(c media.Capturer) Option { return func(s *Session) { s.capturer = c } }

func WithDialer(d publish.Dialer) Option { return func(s *Session) { s.dialer = d } }

func WithSignalOptions(opts ...signal.Option) Option {
	return func(s *Session) { s.signalOpts = append(s.signalOpts, opts...) }
}

// Session is one client in one room: the signaling channel, the live peer
// connection and the recording pipeline built on top of it.
type Session struct {
	cfg        Config
	events     core.Events
	clock      clock.Clock
	capturer   media.Capturer
	dialer     publish.Dialer
	signalOpts []signal.Option
	logger     zerolog.Logger

	channel   *signal.Channel
	publisher *publish.Publisher

	mu          sync.Mutex
	manager     *rtc.Manager
	mixer       *mixer.Mixer
	local       *media.LocalCapture
	remote      core.Stream
	pending     *core.Message
	pendingFrom string
	gen         int
	hungUp      bool
}

func New(cfg Config, events core.Events, opts ...Option) (*Session, error) {
	if events == nil {
		events = core.NopEvents{}
	}
	s := &Session{
		cfg:    cfg,
		events: events,
		clock:  clock.New(),
		logger: log.With().
			Str("module", "app.call").
			Str("room", string(cfg.Membership.Room)).
			Str("client", string(cfg.Membership.Client)).
			Logger(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.capturer == nil {
		s.capturer = media.NewToneCapturer(s.clock)
	}
	if cfg.StartTimeout <= 0 {
		s.cfg.StartTimeout = 10 * time.Second
	}

	url, err := signal.RoomURL(cfg.SignalingURL, cfg.Membership)
	if err != nil {
		return nil, err
	}
	chOpts := append([]signal.Option{signal.WithClock(s.clock)}, s.signalOpts...)
	s.channel = signal.NewChannel(url, s, chOpts...)

	pubOpts := []publish.Option{publish.WithClock(s.clock)}
	if s.dialer != nil {
		pubOpts = append(pubOpts, publish.WithDialer(s.dialer))
	}
	s.publisher = publish.New(cfg.Publish, pubOpts...)

	if s.manager, err = s.newManager(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) newManager() (*rtc.Manager, error) {
	ev := &managerEvents{s: s}
	m, err := rtc.NewManager(s.cfg.RTC, s.channel, s.capturer, ev)
	if err != nil {
		return nil, err
	}
	ev.m.Store(m)
	return m, nil
}

// Join opens the room's signaling channel.
func (s *Session) Join(ctx context.Context) error {
	return s.channel.Connect(ctx)
}

// Call starts capture and sends an offer to the room.
func (s *Session) Call(ctx context.Context) error {
	m, err := s.prepare(ctx)
	if err != nil {
		return err
	}
	if err := m.CreateOffer(ctx); err != nil {
		s.reset(m, err)
		return err
	}
	return nil
}

// Answer accepts the pending offer.
func (s *Session) Answer(ctx context.Context) error {
	s.mu.Lock()
	offer := s.pending
	s.pending, s.pendingFrom = nil, ""
	s.mu.Unlock()
	if offer == nil {
		return ErrNoPendingOffer
	}

	m, err := s.prepare(ctx)
	if err != nil {
		return err
	}
	if err := m.CreateAnswer(ctx, *offer); err != nil {
		s.reset(m, err)
		return err
	}
	return nil
}

// prepare builds the connection and attaches local audio; any failure resets the call.
func (s *Session) prepare(ctx context.Context) (*rtc.Manager, error) {
	s.mu.Lock()
	if s.hungUp {
		s.mu.Unlock()
		return nil, ErrHungUp
	}
	m := s.manager
	s.mu.Unlock()

	if err := m.CreatePeerConnection(); err != nil {
		s.reset(m, err)
		return nil, err
	}
	lc, err := m.StartLocalStream(ctx)
	if err != nil {
		s.reset(m, err)
		return nil, err
	}
	if err := m.AddLocalStreamToConnection(); err != nil {
		s.reset(m, err)
		return nil, err
	}

	s.mu.Lock()
	s.local = lc
	s.maybeStartPipelineLocked()
	s.mu.Unlock()
	return m, nil
}

func (s *Session) Decline() {
	s.mu.Lock()
	from := s.pendingFrom
	s.pending, s.pendingFrom = nil, ""
	s.mu.Unlock()
	s.logger.Info().Str("from", from).Msg("offer declined")
}

func (s *Session) PendingOffer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Hangup tears the whole session down: recording first, then the mixer, then the peer
// connection and signaling. The returned channel closes when the collectors are drained.
func (s *Session) Hangup() <-chan struct{} {
	s.mu.Lock()
	if s.hungUp {
		s.mu.Unlock()
		return s.publisher.Stop()
	}
	s.hungUp = true
	m := s.manager
	s.mu.Unlock()

	drained := s.teardown()
	m.CloseConnection()
	// m may already be aborted by a reset, which leaves signaling open.
	s.channel.Close()
	s.logger.Info().Msg("hung up")
	return drained
}

func (s *Session) teardown() <-chan struct{} {
	s.mu.Lock()
	mx := s.mixer
	s.mixer, s.local, s.remote = nil, nil, nil
	s.pending, s.pendingFrom = nil, ""
	s.gen++
	s.mu.Unlock()

	drained := s.publisher.Stop()
	if mx != nil {
		mx.Close()
	}
	return drained
}

// reset returns a failed call to joined-idle: media goes away, signaling stays.
// It does nothing when old is no longer the live manager.
func (s *Session) reset(old *rtc.Manager, cause error) {
	s.mu.Lock()
	if s.hungUp || s.manager != old {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.logger.Error().Err(cause).Msg("call failed, resetting")

	s.teardown()
	old.Abort()

	m, err := s.newManager()
	if err != nil {
		s.logger.Error().Err(err).Msg("cannot rebuild peer connection manager")
		s.events.OnError(fmt.Sprintf("call reset failed: %v", err))
		return
	}
	s.mu.Lock()
	if s.hungUp || s.manager != old {
		s.mu.Unlock()
		m.Abort()
		return
	}
	s.manager = m
	s.mu.Unlock()
}

// State is the state of the live peer connection.
func (s *Session) State() rtc.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager.State()
}

func (s *Session) Publisher() *publish.Publisher { return s.publisher }

func (s *Session) SourceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mixer == nil {
		return 0
	}
	return s.mixer.SourceCount()
}

func (s *Session) onRemoteStream(stream core.Stream) {
	s.events.OnRemoteStream(stream)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hungUp {
		return
	}
	s.remote = stream
	s.maybeStartPipelineLocked()
}

// maybeStartPipelineLocked mixes local and remote audio once both exist and starts
// recording the mix. A recording failure is logged and the call goes on.
func (s *Session) maybeStartPipelineLocked() {
	if s.local == nil || s.remote == nil || s.mixer != nil {
		return
	}
	mx := mixer.New(mixer.WithClock(s.clock))
	for _, st := range []core.Stream{s.local.Stream(), s.remote} {
		if err := mx.AddStream(st); err != nil {
			s.logger.Warn().Err(err).Str("stream", st.ID()).Msg("stream not mixed")
		}
	}
	s.mixer = mx
	gen := s.gen
	go s.watchMix(mx, gen)

	if len(s.cfg.Endpoints) == 0 {
		s.logger.Info().Msg("no collector endpoints, recording disabled")
		return
	}
	eps := make([]publish.Endpoint, 0, len(s.cfg.Endpoints))
	for _, ep := range s.cfg.Endpoints {
		eps = append(eps, ep.Expand(s.cfg.Membership))
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StartTimeout)
		defer cancel()
		if err := s.publisher.Start(ctx, mx.MixedStream(), eps); err != nil {
			s.logger.Error().Err(err).Msg("recording not started")
			return
		}
		s.mu.Lock()
		stale := s.gen != gen
		s.mu.Unlock()
		select {
		case <-mx.Done():
			stale = true
		default:
		}
		if stale {
			s.publisher.Stop()
		}
	}()
}

// watchMix stops recording once the mix ends on its own, which happens when either
// side's audio goes away. The drain still runs.
func (s *Session) watchMix(mx *mixer.Mixer, gen int) {
	<-mx.Done()
	s.mu.Lock()
	stale := s.gen != gen
	s.mu.Unlock()
	if stale {
		return
	}
	s.logger.Warn().Msg("mixed output ended, stopping recording")
	s.publisher.Stop()
}
