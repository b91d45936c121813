package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotConnected = errors.New("signaling channel not connected")
	ErrBackpressure = errors.New("backpressure")
)

// Texts surfaced through Handler.OnError.
const (
	ErrTextUnreachable = "signaling server unreachable"
	ErrTextLost        = "signaling connection lost"
)

// Handler receives dispatched signaling messages, one at a time, in relay order.
type Handler interface {
	OnReady()
	OnPeerJoined(peerID string)
	OnPeerLeft(peerID string)
	OnOffer(msg core.Message, from string)
	OnAnswer(msg core.Message)
	OnICECandidate(msg core.Message)
	OnError(text string)
}

type State int32

const (
	StateIdle State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

type Option func(*Channel)

func WithDialer(d *websocket.Dialer) Option { return func(c *Channel) { c.dialer = d } }

// WithClock sets the clock driving keepalive pings.
func WithClock(clk clock.Clock) Option { return func(c *Channel) { c.clock = clk } }

func WithPingPeriod(d time.Duration) Option { return func(c *Channel) { c.pingPeriod = d } }

func WithReadLimit(n int64) Option { return func(c *Channel) { c.readLimit = n } }

func WithSendBuffer(n int) Option { return func(c *Channel) { c.sendBuffer = n } }

// Channel is the client side of the room signaling socket.
// It never reconnects: once closed it stays closed.
type Channel struct {
	url string
	h   Handler

	dialer     *websocket.Dialer
	clock      clock.Clock
	pingPeriod time.Duration
	readLimit  int64
	sendBuffer int

	mu     sync.RWMutex
	state  State
	conn   *websocket.Conn
	send   chan []byte
	cancel context.CancelFunc

	done chan struct{}
}

func NewChannel(url string, h Handler, opts ...Option) *Channel {
	c := &Channel{
		url:        url,
		h:          h,
		dialer:     websocket.DefaultDialer,
		clock:      clock.New(),
		pingPeriod: 54 * time.Second,
		readLimit:  32768,
		sendBuffer: 32,
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// RoomURL builds the room-scoped signaling address under base.
func RoomURL(base string, m domain.Membership) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("signaling url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("signaling url: unsupported scheme %q", u.Scheme)
	}
	return u.JoinPath("ws", "signaling", string(m.Room), string(m.Client)).String(), nil
}

func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("connect: channel is %s", st)
	}

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.mu.Unlock()
		log.Error().Err(err).Str("module", "signal").Str("url", c.url).Msg("dial failed")
		c.h.OnError(ErrTextUnreachable)
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	conn.SetReadLimit(c.readLimit)
	pongWait := c.pingPeriod * 10 / 9
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	pumpCtx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.send = make(chan []byte, c.sendBuffer)
	c.cancel = cancel
	c.state = StateOpen
	send := c.send
	c.mu.Unlock()

	log.Info().Str("module", "signal").Str("url", c.url).Msg("signaling connected")

	go c.writePump(pumpCtx, conn, send, c.clock.Ticker(c.pingPeriod))
	c.h.OnReady()
	go c.readPump(conn, pongWait)
	return nil
}

// Send queues msg for the write pump. Nothing is queued while the channel is not open.
func (c *Channel) Send(msg core.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Type, err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateOpen {
		log.Warn().Str("module", "signal").Str("type", string(msg.Type)).Str("state", c.state.String()).Msg("send on closed channel")
		return ErrNotConnected
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *Channel) Close() {
	if c.shutdown() {
		log.Info().Str("module", "signal").Str("url", c.url).Msg("signaling closed")
	}
}

func (c *Channel) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// shutdown moves the channel to closed and reports whether this call did it.
func (c *Channel) shutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return false
	}
	prev := c.state
	c.state = StateClosed
	if prev != StateOpen {
		close(c.done)
		return true
	}
	c.cancel()
	close(c.send)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = c.conn.Close()
	return true
}
