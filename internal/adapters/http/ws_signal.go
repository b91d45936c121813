package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/voicecall/internal/app/relay"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SignalHandler upgrades room sockets and pumps them through the hub.
type SignalHandler struct {
	hub        *relay.Hub
	readLimit  int64
	pingPeriod time.Duration
}

func NewSignalHandler(hub *relay.Hub, readLimit int64, pingPeriod time.Duration) *SignalHandler {
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	return &SignalHandler{hub: hub, readLimit: readLimit, pingPeriod: pingPeriod}
}

func (h *SignalHandler) Handle(c *gin.Context) {
	m, err := domain.NewMembership(c.Param("room"), c.Param("client"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "adapters.http").Str("room", string(m.Room)).Str("client", string(m.Client)).Msg("new WS connection")

	conn := &wsMember{
		id:   m.Client,
		conn: ws,
		send: make(chan []byte, 32),
	}
	h.hub.Join(m, conn)

	go h.writePump(conn)
	go h.readPump(m, conn)
}

// wsMember implements relay.Member over a websocket.
type wsMember struct {
	id   domain.ClientID
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *wsMember) ID() domain.ClientID { return c.id }

func (c *wsMember) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return relay.ErrMemberClosed
	}
	select {
	case c.send <- data:
	default:
		return relay.ErrBackpressure
	}
	return nil
}

func (c *wsMember) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

func (h *SignalHandler) writePump(c *wsMember) {
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("writePump write error")
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (h *SignalHandler) readPump(m domain.Membership, c *wsMember) {
	defer func() {
		log.Info().Str("module", "adapters.http").Str("room", string(m.Room)).Str("client", string(m.Client)).Msg("readPump closing")
		h.hub.Leave(m, c)
		c.Close()
	}()

	if h.readLimit > 0 {
		c.conn.SetReadLimit(h.readLimit)
	}
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "adapters.http").Str("client", string(m.Client)).Msg("readPump read error")
			}
			return
		}
		_ = h.hub.Forward(m, data)
	}
}
