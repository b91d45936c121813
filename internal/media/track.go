package media

import (
	"sync"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/rs/zerolog/log"
)

// SubscriberBuffer is the per-reader queue depth, one second of 20ms frames.
const SubscriberBuffer = 50

// Track is an in-process PCM track. Writes fan out to every subscriber;
// a subscriber that falls SubscriberBuffer frames behind loses frames.
type Track struct {
	id   string
	kind core.TrackKind

	mu    sync.Mutex
	subs  map[int]chan core.Frame
	next  int
	ended bool
	done  chan struct{}
}

func NewTrack(id string, kind core.TrackKind) *Track {
	return &Track{
		id:   id,
		kind: kind,
		subs: make(map[int]chan core.Frame),
		done: make(chan struct{}),
	}
}

func NewAudioTrack(id string) *Track { return NewTrack(id, core.KindAudio) }

func (t *Track) ID() string { return t.id }

func (t *Track) Kind() core.TrackKind { return t.kind }

// Write delivers f to all current subscribers and reports how many took it.
func (t *Track) Write(f core.Frame) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return 0
	}
	n := 0
	for id, ch := range t.subs {
		select {
		case ch <- f:
			n++
		default:
			log.Debug().Str("module", "media.track").Str("track", t.id).Int("sub", id).Msg("subscriber behind, frame dropped")
		}
	}
	return n
}

func (t *Track) Subscribe() (<-chan core.Frame, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan core.Frame, SubscriberBuffer)
	if t.ended {
		close(ch)
		return ch, func() {}
	}
	id := t.next
	t.next++
	t.subs[id] = ch
	return ch, func() { t.unsubscribe(id) }
}

func (t *Track) unsubscribe(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ch, ok := t.subs[id]; ok {
		delete(t.subs, id)
		close(ch)
	}
}

func (t *Track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return
	}
	t.ended = true
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
	}
	close(t.done)
}

// Ended is closed once Stop has run.
func (t *Track) Ended() <-chan struct{} { return t.done }

func (t *Track) Subscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Stream is a fixed set of tracks.
type Stream struct {
	id     string
	tracks []core.Track
}

func NewStream(id string, tracks ...core.Track) *Stream {
	return &Stream{id: id, tracks: tracks}
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) Tracks() []core.Track {
	return append([]core.Track(nil), s.tracks...)
}

func (s *Stream) AudioTracks() []core.Track {
	var out []core.Track
	for _, t := range s.tracks {
		if t.Kind() == core.KindAudio {
			out = append(out, t)
		}
	}
	return out
}
