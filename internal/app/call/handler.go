package call

import (
	"errors"
	"sync/atomic"

	"github.com/dkeye/voicecall/internal/adapters/rtc"
	"github.com/dkeye/voicecall/internal/adapters/signal"
	"github.com/dkeye/voicecall/internal/core"
)

// Signal handler side: messages arrive one at a time from the channel's read pump.

func (s *Session) OnReady() { s.events.OnReady() }

func (s *Session) OnPeerJoined(peerID string) { s.events.OnPeerJoined(peerID) }

func (s *Session) OnPeerLeft(peerID string) {
	s.events.OnPeerLeft(peerID)
	s.Hangup()
}

func (s *Session) OnOffer(msg core.Message, from string) {
	s.mu.Lock()
	if s.hungUp {
		s.mu.Unlock()
		return
	}
	if s.pending != nil {
		first := s.pendingFrom
		s.mu.Unlock()
		s.logger.Warn().Str("from", from).Str("pending_from", first).Msg("offer ignored, another one is pending")
		return
	}
	if st := s.manager.State(); st != rtc.StateIdle {
		s.mu.Unlock()
		s.logger.Warn().Str("from", from).Str("state", st.String()).Msg("offer ignored, call in progress")
		return
	}
	s.pending, s.pendingFrom = &msg, from
	s.mu.Unlock()

	s.logger.Info().Str("from", from).Msg("incoming offer")
	s.events.OnOffer(msg, from)
}

func (s *Session) OnAnswer(msg core.Message) {
	s.mu.Lock()
	m := s.manager
	s.mu.Unlock()
	err := m.HandleAnswer(msg)
	switch {
	case err == nil:
	case errors.Is(err, rtc.ErrUnexpectedAnswer), errors.Is(err, rtc.ErrNoConnection):
		s.logger.Warn().Err(err).Str("from", msg.From).Msg("answer dropped")
	default:
		s.reset(m, err)
	}
}

func (s *Session) OnICECandidate(msg core.Message) {
	s.mu.Lock()
	m := s.manager
	s.mu.Unlock()
	m.AddICECandidate(msg)
}

// OnError forwards channel errors. A lost channel ends the call: nothing can be
// negotiated or hung up over it any more.
func (s *Session) OnError(text string) {
	s.events.OnError(text)
	if text == signal.ErrTextLost {
		s.logger.Warn().Msg("signaling lost, ending call")
		s.Hangup()
	}
}

// managerEvents forwards what the peer connection reports.
type managerEvents struct {
	core.NopEvents
	s *Session
	m atomic.Pointer[rtc.Manager]
}

func (e *managerEvents) OnRemoteStream(stream core.Stream) { e.s.onRemoteStream(stream) }

// OnError forwards to the UI; a failed connection also resets the call so it can be retried.
// The reset runs off the pion callback goroutine since it closes the connection.
func (e *managerEvents) OnError(message string) {
	e.s.events.OnError(message)
	if message == rtc.ErrTextConnectionFailed {
		if m := e.m.Load(); m != nil {
			go e.s.reset(m, rtc.ErrConnectionFailed)
		}
	}
}
