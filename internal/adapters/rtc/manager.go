package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/media"
	"github.com/pion/ice/v4"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoConnection       = errors.New("no peer connection")
	ErrUnexpectedAnswer   = errors.New("unexpected answer")
	ErrClosed             = errors.New("peer connection manager closed")
	ErrCaptureUnavailable = media.ErrCaptureUnavailable
	ErrConnectionFailed   = errors.New("peer connection failed")
)

// Texts surfaced through Events.OnError.
const (
	ErrTextCaptureUnavailable = "capture unavailable"
	ErrTextConnectionFailed   = "peer connection failed"
)

type State int32

const (
	StateIdle State = iota
	StateNegotiating
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

type Config struct {
	ICEServers []webrtc.ICEServer
	// IncludeLoopback lets two peers on one host reach each other over 127.0.0.1.
	IncludeLoopback bool
	NetworkTypes    []webrtc.NetworkType
	LogLevel        zerolog.Level
}

func DefaultConfig() Config {
	return Config{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
		LogLevel: zerolog.WarnLevel,
	}
}

// Manager owns the single peer connection of a call and the local capture feeding it.
type Manager struct {
	api      *webrtc.API
	cfg      Config
	sender   core.Sender
	capturer media.Capturer
	events   core.Events

	state atomic.Int32

	mu               sync.Mutex
	conn             *connection
	capture          *media.LocalCapture
	attached         bool
	pending          []webrtc.ICECandidateInit
	remoteSet        bool
	offerOutstanding bool
}

func NewManager(cfg Config, sender core.Sender, capturer media.Capturer, events core.Events) (*Manager, error) {
	api, err := newAPI(cfg)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = core.NopEvents{}
	}
	return &Manager{
		api:      api,
		cfg:      cfg,
		sender:   sender,
		capturer: capturer,
		events:   events,
	}, nil
}

// newAPI registers G.711 only; the local pump encodes μ-law.
func newAPI(cfg Config) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	for _, c := range []webrtc.RTPCodecParameters{
		{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: 8000, Channels: 1}, PayloadType: 0},
		{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMA, ClockRate: 8000, Channels: 1}, PayloadType: 8},
	} {
		if err := m.RegisterCodec(c, webrtc.RTPCodecTypeAudio); err != nil {
			return nil, fmt.Errorf("register %s: %w", c.MimeType, err)
		}
	}

	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("register default interceptors: %w", err)
	}

	se := webrtc.SettingEngine{
		LoggerFactory: NewLoggerFactory(cfg.LogLevel),
	}
	se.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	if cfg.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
	}
	if len(cfg.NetworkTypes) > 0 {
		se.SetNetworkTypes(cfg.NetworkTypes)
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithSettingEngine(se),
		webrtc.WithInterceptorRegistry(i),
	), nil
}

func (m *Manager) State() State { return State(m.state.Load()) }

func (m *Manager) RemoteDescriptionSet() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remoteSet
}

// CreatePeerConnection is a no-op when a connection already exists.
func (m *Manager) CreatePeerConnection() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.State() == StateClosed {
		return ErrClosed
	}
	if m.conn != nil {
		return nil
	}
	conn, err := newConnection(m.api, m.cfg, m.sender, m.events, m.onConnectionState)
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	m.conn = conn
	m.state.Store(int32(StateNegotiating))
	return nil
}

func (m *Manager) onConnectionState(s webrtc.PeerConnectionState) {
	switch s {
	case webrtc.PeerConnectionStateConnected:
		m.state.CompareAndSwap(int32(StateNegotiating), int32(StateConnected))
	case webrtc.PeerConnectionStateFailed:
		if m.State() != StateClosed {
			m.events.OnError(ErrTextConnectionFailed)
		}
	}
}

// StartLocalStream acquires the local capture once and hands back the same one afterwards.
func (m *Manager) StartLocalStream(ctx context.Context) (*media.LocalCapture, error) {
	m.mu.Lock()
	if m.capture != nil {
		lc := m.capture
		m.mu.Unlock()
		return lc, nil
	}
	if m.State() == StateClosed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	lc, err := m.capturer.Capture(ctx)
	if err == nil {
		m.capture = lc
	}
	m.mu.Unlock()

	if err != nil {
		if !errors.Is(err, ErrCaptureUnavailable) {
			err = fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
		}
		log.Error().Err(err).Str("module", "rtc").Msg("local capture failed")
		m.events.OnError(ErrTextCaptureUnavailable)
		return nil, err
	}
	log.Info().Str("module", "rtc").Str("stream", lc.Stream().ID()).Msg("local stream started")
	return lc, nil
}

// AddLocalStreamToConnection attaches every captured track. Without a connection
// or a capture it only warns.
func (m *Manager) AddLocalStreamToConnection() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil || m.capture == nil {
		log.Warn().Str("module", "rtc").Bool("has_pc", m.conn != nil).Bool("has_capture", m.capture != nil).Msg("nothing to attach")
		return nil
	}
	if m.attached {
		return nil
	}
	for _, t := range m.capture.Stream().Tracks() {
		if err := m.conn.addLocalTrack(t, m.capture.Stream().ID()); err != nil {
			return fmt.Errorf("attach track %s: %w", t.ID(), err)
		}
	}
	m.attached = true
	return nil
}

func (m *Manager) CreateOffer(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.conn == nil {
		m.mu.Unlock()
		return ErrNoConnection
	}
	offer, err := m.conn.pc.CreateOffer(nil)
	if err == nil {
		err = m.conn.pc.SetLocalDescription(offer)
	}
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("create offer: %w", err)
	}
	m.offerOutstanding = true
	m.state.CompareAndSwap(int32(StateIdle), int32(StateNegotiating))
	m.mu.Unlock()

	if err := m.sender.Send(core.NewOfferMessage(offer)); err != nil {
		return fmt.Errorf("send offer: %w", err)
	}
	log.Info().Str("module", "rtc").Msg("offer sent")
	return nil
}

func (m *Manager) CreateAnswer(ctx context.Context, offer core.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if offer.SDP == nil {
		return fmt.Errorf("create answer: offer has no sdp")
	}
	m.mu.Lock()
	if m.conn == nil {
		m.mu.Unlock()
		return ErrNoConnection
	}
	if err := m.conn.pc.SetRemoteDescription(*offer.SDP); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("set remote offer: %w", err)
	}
	m.remoteSet = true
	m.flushPendingLocked()

	answer, err := m.conn.pc.CreateAnswer(nil)
	if err == nil {
		err = m.conn.pc.SetLocalDescription(answer)
	}
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("create answer: %w", err)
	}
	m.state.CompareAndSwap(int32(StateIdle), int32(StateNegotiating))
	m.mu.Unlock()

	if err := m.sender.Send(core.NewAnswerMessage(answer)); err != nil {
		return fmt.Errorf("send answer: %w", err)
	}
	log.Info().Str("module", "rtc").Str("to", offer.From).Msg("answer sent")
	return nil
}

// HandleAnswer applies the remote answer to our outstanding offer.
func (m *Manager) HandleAnswer(msg core.Message) error {
	if msg.SDP == nil {
		return fmt.Errorf("%w: no sdp", ErrUnexpectedAnswer)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return ErrNoConnection
	}
	if !m.offerOutstanding || m.conn.pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		log.Warn().Str("module", "rtc").Str("from", msg.From).Str("signaling", m.conn.pc.SignalingState().String()).Msg("answer without outstanding offer")
		return ErrUnexpectedAnswer
	}
	if err := m.conn.pc.SetRemoteDescription(*msg.SDP); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	m.offerOutstanding = false
	m.remoteSet = true
	m.flushPendingLocked()
	log.Info().Str("module", "rtc").Str("from", msg.From).Msg("answer applied")
	return nil
}

// AddICECandidate never fails. Candidates that beat the remote description are
// held until it is set.
func (m *Manager) AddICECandidate(msg core.Message) {
	if msg.Candidate == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.State() == StateClosed {
		return
	}
	if m.conn == nil || !m.remoteSet {
		m.pending = append(m.pending, *msg.Candidate)
		log.Debug().Str("module", "rtc").Int("queued", len(m.pending)).Msg("candidate queued")
		return
	}
	if err := m.conn.pc.AddICECandidate(*msg.Candidate); err != nil {
		log.Warn().Err(err).Str("module", "rtc").Msg("add ice candidate")
	}
}

func (m *Manager) flushPendingLocked() {
	for _, c := range m.pending {
		if err := m.conn.pc.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Msg("add queued ice candidate")
		}
	}
	if n := len(m.pending); n > 0 {
		log.Debug().Str("module", "rtc").Int("count", n).Msg("queued candidates flushed")
	}
	m.pending = nil
}

// CloseConnection tears everything down, signaling sender included. Safe to call
// repeatedly and on a half-built call.
func (m *Manager) CloseConnection() {
	if m.teardown() {
		m.sender.Close()
		log.Info().Str("module", "rtc").Msg("connection closed")
	}
}

// Abort is CloseConnection that leaves the signaling sender open, for a call
// that failed and will be retried on the same channel.
func (m *Manager) Abort() {
	if m.teardown() {
		log.Info().Str("module", "rtc").Msg("connection aborted")
	}
}

func (m *Manager) teardown() bool {
	m.mu.Lock()
	if State(m.state.Swap(int32(StateClosed))) == StateClosed {
		m.mu.Unlock()
		return false
	}
	conn, capture := m.conn, m.capture
	m.conn, m.capture = nil, nil
	m.pending = nil
	m.offerOutstanding = false
	m.mu.Unlock()

	if conn != nil {
		conn.close()
	}
	if capture != nil {
		capture.Release()
	}
	return true
}
