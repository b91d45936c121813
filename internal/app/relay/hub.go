package relay

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrRateLimited = errors.New("rate limited")

type Option func(*Hub)

func WithPolicy(p Policy) Option { return func(h *Hub) { h.policy = p } }

// WithRateLimit caps inbound messages per member; zero limit disables it.
func WithRateLimit(clk clock.Clock, limit int, interval time.Duration) Option {
	return func(h *Hub) {
		if limit > 0 {
			h.limiter = NewRateLimiter(clk, limit, interval)
		}
	}
}

// Hub routes signaling between members of the same room. It reads nothing but the
// envelope of what it forwards.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[domain.RoomID]*Room
	policy  Policy
	limiter *RateLimiter
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		rooms:  make(map[domain.RoomID]*Room),
		policy: SimplePolicy{},
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Hub) room(id domain.RoomID) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[id]
	return r, ok
}

// Join adds member and announces it to the rest of the room. A member already
// holding the same client id is replaced and closed.
func (h *Hub) Join(m domain.Membership, member Member) {
	h.mu.Lock()
	room, ok := h.rooms[m.Room]
	if !ok {
		room = NewRoom(m.Room)
		h.rooms[m.Room] = room
		log.Info().Str("module", "app.relay").Str("room", string(m.Room)).Msg("room created")
	}
	old := room.Add(member)
	h.mu.Unlock()

	if old != nil && old != member {
		log.Warn().Str("module", "app.relay").Str("room", string(m.Room)).Str("client", string(m.Client)).Msg("duplicate client id, closing previous connection")
		old.Close()
	}
	h.publish(room, m.Client, core.Message{Type: core.MessagePeerJoined, PeerID: string(m.Client), From: string(m.Client)})
}

// Leave removes member and tells the rest of the room. Empty rooms are dropped.
func (h *Hub) Leave(m domain.Membership, member Member) {
	h.mu.Lock()
	room, ok := h.rooms[m.Room]
	if !ok || !room.Remove(member) {
		h.mu.Unlock()
		return
	}
	if room.MemberCount() == 0 {
		delete(h.rooms, m.Room)
		log.Info().Str("module", "app.relay").Str("room", string(m.Room)).Msg("room dropped")
	}
	h.mu.Unlock()

	if h.limiter != nil {
		h.limiter.Forget(m)
	}
	h.publish(room, m.Client, core.Message{Type: core.MessagePeerLeft, PeerID: string(m.Client), From: string(m.Client)})
}

// Forward stamps data with the sender's id and sends it to every other member.
func (h *Hub) Forward(m domain.Membership, data []byte) error {
	if h.limiter != nil && !h.limiter.Allow(m) {
		log.Warn().Str("module", "app.relay").Str("room", string(m.Room)).Str("client", string(m.Client)).Msg("message rate limited")
		return ErrRateLimited
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Str("client", string(m.Client)).Msg("bad json")
		return err
	}
	from, _ := json.Marshal(string(m.Client))
	env["from"] = from
	out, err := json.Marshal(env)
	if err != nil {
		return err
	}
	room, ok := h.room(m.Room)
	if !ok {
		return nil
	}
	h.deliver(room, m.Client, out)
	return nil
}

func (h *Hub) publish(room *Room, from domain.ClientID, msg core.Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("marshal")
		return
	}
	h.deliver(room, from, b)
}

func (h *Hub) deliver(room *Room, from domain.ClientID, data []byte) {
	res := room.Broadcast(from, data)
	for _, m := range res.Dropped {
		switch h.policy.OnBackPressure(room, m) {
		case KickMember:
			log.Warn().Str("module", "app.relay").Str("room", string(room.ID())).Str("client", string(m.ID())).Msg("slow member kicked")
			m.Close()
		case DropFrame, NoAction:
		}
	}
}

func (h *Hub) Rooms() []RoomInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]RoomInfo, 0, len(h.rooms))
	for id, r := range h.rooms {
		out = append(out, RoomInfo{ID: id, MemberCount: r.MemberCount()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
