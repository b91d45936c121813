package rtc

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/media"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	pmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

// connection is one pion peer connection plus the pumps bound to its lifetime.
type connection struct {
	pc     *webrtc.PeerConnection
	ctx    context.Context
	cancel context.CancelFunc

	remoteOnce sync.Once
}

func newConnection(
	api *webrtc.API,
	cfg Config,
	sender core.Sender,
	events core.Events,
	onState func(webrtc.PeerConnectionState),
) (*connection, error) {
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.ICEServers})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &connection{pc: pc, ctx: ctx, cancel: cancel}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("ice_state", s.String()).Msg("ICE state")
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			cancel()
		}
		onState(s)
	})

	// Trickle: every gathered candidate goes out as soon as it exists.
	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			log.Debug().Str("module", "rtc").Msg("candidate gathering complete")
			return
		}
		if err := sender.Send(core.NewCandidateMessage(cand.ToJSON())); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Msg("send ice candidate")
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("kind", track.Kind().String()).
			Str("codec", track.Codec().MimeType).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		stream := newRemoteStream(ctx, track)
		c.remoteOnce.Do(func() { events.OnRemoteStream(stream) })
	})

	return c, nil
}

// addLocalTrack sends t as PCMU. The pump runs until the track ends or the connection closes.
func (c *connection) addLocalTrack(t core.Track, streamID string) error {
	if t.Kind() != core.KindAudio {
		log.Warn().Str("module", "rtc").Str("track", t.ID()).Str("kind", string(t.Kind())).Msg("skipping non-audio track")
		return nil
	}
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: 8000, Channels: 1},
		t.ID(),
		streamID,
	)
	if err != nil {
		return err
	}
	rtpSender, err := c.pc.AddTrack(local)
	if err != nil {
		return err
	}
	go drainRTCP(rtpSender)
	go pumpLocal(c.ctx, t, local)
	return nil
}

func (c *connection) close() {
	c.cancel()
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("close error")
	}
}

// drainRTCP keeps the interceptors fed; nothing here consumes the reports.
func drainRTCP(s *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := s.Read(buf); err != nil {
			return
		}
	}
}

func pumpLocal(ctx context.Context, src core.Track, dst *webrtc.TrackLocalStaticSample) {
	frames, release := src.Subscribe()
	defer release()
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			err := dst.WriteSample(pmedia.Sample{Data: media.EncodeUlaw(f), Duration: f.Duration()})
			if errors.Is(err, io.ErrClosedPipe) {
				return
			}
			if err != nil {
				log.Debug().Err(err).Str("module", "rtc").Str("track", src.ID()).Msg("write sample")
			}
		}
	}
}

func newRemoteStream(ctx context.Context, src *webrtc.TrackRemote) *media.Stream {
	track := media.NewAudioTrack(src.ID())
	go pumpRemote(ctx, src, track)
	return media.NewStream(src.StreamID(), track)
}

// pumpRemote decodes incoming RTP into PCM frames until the track or connection ends.
func pumpRemote(ctx context.Context, src *webrtc.TrackRemote, dst *media.Track) {
	defer dst.Stop()
	decode := media.DecodeUlaw
	if strings.EqualFold(src.Codec().MimeType, webrtc.MimeTypePCMA) {
		decode = media.DecodeAlaw
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, _, err := src.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn().Err(err).Str("module", "rtc").Str("track", src.ID()).Msg("read RTP")
			}
			return
		}
		if f := decodePacket(pkt, decode); f != nil {
			dst.Write(f)
		}
	}
}

func decodePacket(pkt *rtp.Packet, decode func([]byte) core.Frame) core.Frame {
	if len(pkt.Payload) == 0 {
		return nil
	}
	return decode(pkt.Payload)
}
