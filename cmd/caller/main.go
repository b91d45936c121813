// Command caller joins a room as one client, calls or answers the other
// participant, and streams the mixed call audio to the configured collectors.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/voicecall/internal/adapters/rtc"
	"github.com/dkeye/voicecall/internal/app/call"
	"github.com/dkeye/voicecall/internal/config"
	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
)

func main() {
	var (
		cfgFile   = pflag.StringP("config", "c", "", "config file (default config/config.$CONFIG_ENV.yaml)")
		room      = pflag.StringP("room", "r", "", "room to join")
		client    = pflag.StringP("client", "n", "", "client id, generated when empty")
		signaling = pflag.String("signaling", "", "signaling relay base URL")
		role      = pflag.String("role", "answer", "call: offer when a peer joins; answer: accept the first offer")
		drainWait = pflag.Duration("drain-timeout", 10*time.Second, "how long to wait for collectors on exit")
	)
	pflag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var (
		cfg *config.Config
		err error
	)
	if *cfgFile != "" {
		cfg, err = config.LoadFile(*cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	if *room != "" {
		cfg.Room = *room
	}
	if *client != "" {
		cfg.Client = *client
	}
	if cfg.Client == "" {
		cfg.Client = string(domain.NewClientID())
	}
	if *signaling != "" {
		cfg.SignalingURL = *signaling
	}
	if *role != "call" && *role != "answer" {
		log.Fatal().Str("role", *role).Msg("role must be call or answer")
	}

	callCfg, err := sessionConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid membership")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ui := &console{role: *role, ctx: ctx, stop: cancel}
	sess, err := call.New(callCfg, ui)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build call session")
	}
	ui.sess = sess

	if err := sess.Join(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to join room")
	}

	<-ctx.Done()
	log.Info().Msg("hanging up")
	select {
	case <-sess.Hangup():
		st := sess.Publisher().Stats()
		log.Info().
			Uint64("chunks_cut", st.ChunksCut).
			Uint64("chunks_delivered", st.ChunksDelivered).
			Msg("recording drained")
	case <-time.After(*drainWait):
		log.Warn().Msg("collectors did not drain in time")
	}
}

func sessionConfig(cfg *config.Config) (call.Config, error) {
	m, err := domain.NewMembership(cfg.Room, cfg.Client)
	if err != nil {
		return call.Config{}, err
	}

	rtcCfg := rtc.DefaultConfig()
	rtcCfg.IncludeLoopback = cfg.IncludeLoopback
	rtcCfg.LogLevel = cfg.Level()
	if len(cfg.ICEServers) > 0 {
		rtcCfg.ICEServers = rtcCfg.ICEServers[:0]
		for _, s := range cfg.ICEServers {
			rtcCfg.ICEServers = append(rtcCfg.ICEServers, webrtc.ICEServer{
				URLs:       s.URLs,
				Username:   s.Username,
				Credential: s.Credential,
			})
		}
	}

	return call.Config{
		Membership:   m,
		SignalingURL: cfg.SignalingURL,
		RTC:          rtcCfg,
		Publish:      cfg.Config,
		Endpoints:    cfg.Endpoints,
	}, nil
}

// console is the headless user: it logs what happens and plays its role.
type console struct {
	core.NopEvents
	role string
	ctx  context.Context
	stop context.CancelFunc
	sess *call.Session
}

func (c *console) OnReady() { log.Info().Str("role", c.role).Msg("joined room") }

func (c *console) OnPeerJoined(peerID string) {
	log.Info().Str("peer", peerID).Msg("peer joined")
	if c.role != "call" {
		return
	}
	go func() {
		if err := c.sess.Call(c.ctx); err != nil {
			log.Error().Err(err).Str("peer", peerID).Msg("call failed")
		}
	}()
}

func (c *console) OnPeerLeft(peerID string) {
	log.Info().Str("peer", peerID).Msg("peer left, call over")
	c.stop()
}

func (c *console) OnOffer(_ core.Message, from string) {
	log.Info().Str("from", from).Msg("incoming call")
	if c.role != "answer" {
		c.sess.Decline()
		return
	}
	go func() {
		if err := c.sess.Answer(c.ctx); err != nil {
			log.Error().Err(err).Str("from", from).Msg("answer failed")
		}
	}()
}

func (c *console) OnRemoteStream(s core.Stream) {
	log.Info().Str("stream", s.ID()).Int("tracks", len(s.Tracks())).Msg("remote audio")
}

func (c *console) OnError(message string) {
	log.Error().Str("error", message).Msg("call error")
}
