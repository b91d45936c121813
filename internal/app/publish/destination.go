package publish

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/voicecall/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Endpoint is one collector: a role name (recording, monitoring, ...) and its socket URL.
type Endpoint struct {
	Role string `mapstructure:"role" json:"role"`
	URL  string `mapstructure:"url" json:"url"`
}

// Expand fills {room} and {client} in the URL.
func (e Endpoint) Expand(m domain.Membership) Endpoint {
	r := strings.NewReplacer("{room}", string(m.Room), "{client}", string(m.Client))
	return Endpoint{Role: e.Role, URL: r.Replace(e.URL)}
}

// Conn is an open collector socket. Each WriteChunk is one binary message.
type Conn interface {
	WriteChunk(ctx context.Context, chunk []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type DestinationState int32

const (
	DestinationOk DestinationState = iota
	DestinationDead
	DestinationClosed
)

// destination is a collector socket inside one session.
type destination struct {
	Endpoint
	conn      Conn
	state     atomic.Int32
	delivered atomic.Uint64
	closeOnce sync.Once
}

func newDestination(ep Endpoint, conn Conn) *destination {
	return &destination{Endpoint: ep, conn: conn}
}

func (d *destination) State() DestinationState { return DestinationState(d.state.Load()) }

func (d *destination) MarkDead() { d.state.Store(int32(DestinationDead)) }

func (d *destination) close() {
	d.closeOnce.Do(func() {
		d.state.Store(int32(DestinationClosed))
		if err := d.conn.Close(); err != nil {
			log.Debug().Err(err).Str("module", "app.publish").Str("role", d.Role).Msg("close destination")
		}
	})
}

// WSDialer opens collector sockets with gorilla/websocket.
type WSDialer struct {
	Dialer       *websocket.Dialer
	WriteTimeout time.Duration
}

func NewWSDialer() *WSDialer {
	return &WSDialer{Dialer: websocket.DefaultDialer, WriteTimeout: 5 * time.Second}
}

func (w *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := w.Dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	wc := &wsConn{c: c, writeTimeout: w.WriteTimeout}
	go wc.discardReads()
	return wc, nil
}

type wsConn struct {
	c            *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

func (w *wsConn) WriteChunk(ctx context.Context, chunk []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	deadline := time.Now().Add(w.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := w.c.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return w.c.WriteMessage(websocket.BinaryMessage, chunk)
}

func (w *wsConn) Close() error {
	_ = w.c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return w.c.Close()
}

// discardReads keeps control frames flowing; collectors never talk back.
func (w *wsConn) discardReads() {
	for {
		if _, _, err := w.c.NextReader(); err != nil {
			return
		}
	}
}
