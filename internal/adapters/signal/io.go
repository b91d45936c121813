package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/voicecall/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (c *Channel) writePump(ctx context.Context, conn *websocket.Conn, send <-chan []byte, ticker *clock.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-send:
			if !ok {
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("ping failed")
				return
			}
		}
	}
}

func (c *Channel) readPump(conn *websocket.Conn, pongWait time.Duration) {
	defer close(c.done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.onReadError(err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		c.dispatch(data)
	}
}

func (c *Channel) onReadError(err error) {
	if !c.shutdown() {
		log.Debug().Str("module", "signal").Msg("readPump stopped after local close")
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.Info().Str("module", "signal").Str("url", c.url).Msg("signaling closed by server")
		return
	}
	log.Error().Err(err).Str("module", "signal").Str("url", c.url).Msg("signaling connection lost")
	c.h.OnError(ErrTextLost)
}

// dispatch parses only the envelope; payloads go to the handler untouched.
func (c *Channel) dispatch(data []byte) {
	var msg core.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch msg.Type {
	case core.MessagePeerJoined:
		c.h.OnPeerJoined(peerOf(msg))
	case core.MessagePeerLeft:
		c.h.OnPeerLeft(peerOf(msg))
	case core.MessageOffer:
		if msg.SDP == nil {
			log.Warn().Str("module", "signal").Str("from", msg.From).Msg("offer without sdp")
			return
		}
		c.h.OnOffer(msg, msg.From)
	case core.MessageAnswer:
		if msg.SDP == nil {
			log.Warn().Str("module", "signal").Str("from", msg.From).Msg("answer without sdp")
			return
		}
		c.h.OnAnswer(msg)
	case core.MessageICECandidate:
		if msg.Candidate == nil {
			log.Warn().Str("module", "signal").Str("from", msg.From).Msg("ice-candidate without candidate")
			return
		}
		c.h.OnICECandidate(msg)
	default:
		log.Warn().Str("module", "signal").Str("type", string(msg.Type)).Msg("unknown signal")
	}
}

func peerOf(msg core.Message) string {
	if msg.PeerID != "" {
		return msg.PeerID
	}
	return msg.From
}
