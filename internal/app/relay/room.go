package relay

import (
	"sync"

	"github.com/dkeye/voicecall/internal/domain"
	"github.com/rs/zerolog/log"
)

// PublishResult reports delivery of one broadcast.
type PublishResult struct {
	SentTo  int
	Dropped []Member
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"client_count"`
}

// Room is a threadsafe in-memory member set.
type Room struct {
	id      domain.RoomID
	mu      sync.RWMutex
	members map[domain.ClientID]Member
}

func NewRoom(id domain.RoomID) *Room {
	return &Room{id: id, members: make(map[domain.ClientID]Member)}
}

func (r *Room) ID() domain.RoomID { return r.id }

func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Add stores m and returns the member it replaced, if any.
func (r *Room) Add(m Member) Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.members[m.ID()]
	r.members[m.ID()] = m
	log.Info().Str("module", "app.relay.room").Str("room", string(r.id)).Str("client", string(m.ID())).Msg("member added")
	return old
}

// Remove drops m unless a newer connection already took its id.
func (r *Room) Remove(m Member) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.members[m.ID()]; !ok || cur != m {
		return false
	}
	delete(r.members, m.ID())
	log.Info().Str("module", "app.relay.room").Str("room", string(r.id)).Str("client", string(m.ID())).Msg("member removed")
	return true
}

// Broadcast sends data to every member except from.
func (r *Room) Broadcast(from domain.ClientID, data []byte) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for id, m := range r.members {
		if id == from {
			continue
		}
		if err := m.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "app.relay.room").Str("from", string(from)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *Room) Members() []domain.ClientID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ClientID, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	return out
}
