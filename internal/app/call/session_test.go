package call

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	router "github.com/dkeye/voicecall/internal/adapters/http"
	"github.com/dkeye/voicecall/internal/adapters/rtc"
	"github.com/dkeye/voicecall/internal/adapters/signal"
	"github.com/dkeye/voicecall/internal/app/publish"
	"github.com/dkeye/voicecall/internal/app/relay"
	"github.com/dkeye/voicecall/internal/config"
	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/core/mock"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/dkeye/voicecall/internal/media"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"go.uber.org/mock/gomock"
)

type recorder struct {
	core.NopEvents
	ready  chan struct{}
	joined chan string
	left   chan string
	offers chan string
	remote chan core.Stream
}

func newRecorder() *recorder {
	return &recorder{
		ready:  make(chan struct{}, 1),
		joined: make(chan string, 4),
		left:   make(chan string, 4),
		offers: make(chan string, 4),
		remote: make(chan core.Stream, 4),
	}
}

func (r *recorder) OnReady()                         { r.ready <- struct{}{} }
func (r *recorder) OnPeerJoined(id string)           { r.joined <- id }
func (r *recorder) OnPeerLeft(id string)             { r.left <- id }
func (r *recorder) OnOffer(_ core.Message, f string) { r.offers <- f }
func (r *recorder) OnRemoteStream(s core.Stream)     { r.remote <- s }

func expect[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(15 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

// collector counts binary chunks per request path.
type collector struct {
	mu     sync.Mutex
	chunks map[string]int
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		typ, _, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if typ == websocket.BinaryMessage {
			c.mu.Lock()
			c.chunks[r.URL.Path]++
			c.mu.Unlock()
		}
	}
}

func (c *collector) count(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chunks[path]
}

func wsURL(srv *httptest.Server) string { return "ws" + strings.TrimPrefix(srv.URL, "http") }

func testConfig(t *testing.T, signaling, collectorURL, client string) Config {
	t.Helper()
	m, err := domain.NewMembership("standup", client)
	if err != nil {
		t.Fatal(err)
	}
	return Config{
		Membership:   m,
		SignalingURL: signaling,
		RTC: rtc.Config{
			IncludeLoopback: true,
			NetworkTypes:    []webrtc.NetworkType{webrtc.NetworkTypeUDP4},
			LogLevel:        rtc.DefaultConfig().LogLevel,
		},
		Publish: publish.Config{ChunkInterval: 250 * time.Millisecond, DrainDelay: 100 * time.Millisecond},
		Endpoints: []publish.Endpoint{
			{Role: "recording", URL: collectorURL + "/rec/{room}/{client}"},
			{Role: "monitoring", URL: collectorURL + "/mon/{room}/{client}"},
		},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// callPair is alice and bob, both in the "standup" room, after a completed call setup.
type callPair struct {
	alice, bob     *Session
	aliceEv, bobEv *recorder
	aliceRemote    core.Stream
	col            *collector
}

func connectedPair(t *testing.T) *callPair {
	t.Helper()
	cfg := &config.Config{Mode: "release", ReadLimit: 1 << 20, PingPeriod: time.Minute}
	relaySrv := httptest.NewServer(router.SetupRouter(cfg, relay.NewHub()))
	t.Cleanup(relaySrv.Close)
	col := &collector{chunks: make(map[string]int)}
	colSrv := httptest.NewServer(col)
	t.Cleanup(colSrv.Close)

	aliceEv, bobEv := newRecorder(), newRecorder()
	alice, err := New(testConfig(t, relaySrv.URL, wsURL(colSrv), "alice"), aliceEv)
	if err != nil {
		t.Fatal(err)
	}
	bob, err := New(testConfig(t, relaySrv.URL, wsURL(colSrv), "bob"), bobEv)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { alice.Hangup() })
	t.Cleanup(func() { bob.Hangup() })

	ctx := context.Background()
	if err := alice.Join(ctx); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	expect(t, aliceEv.ready, "alice ready")
	if err := bob.Join(ctx); err != nil {
		t.Fatalf("bob join: %v", err)
	}
	if id := expect(t, aliceEv.joined, "peer_joined"); id != "bob" {
		t.Fatalf("alice saw %q join", id)
	}

	if err := alice.Call(ctx); err != nil {
		t.Fatalf("alice call: %v", err)
	}
	if from := expect(t, bobEv.offers, "offer"); from != "alice" {
		t.Fatalf("offer from %q", from)
	}
	if !bob.PendingOffer() {
		t.Fatal("bob has no pending offer")
	}
	if err := bob.Answer(ctx); err != nil {
		t.Fatalf("bob answer: %v", err)
	}

	remote := expect(t, aliceEv.remote, "alice remote stream")
	expect(t, bobEv.remote, "bob remote stream")
	waitFor(t, "both connected", func() bool {
		return alice.State() == rtc.StateConnected && bob.State() == rtc.StateConnected
	})
	waitFor(t, "two mixed sources", func() bool { return alice.SourceCount() == 2 && bob.SourceCount() == 2 })
	waitFor(t, "chunks at every collector", func() bool {
		return col.count("/rec/standup/alice") > 0 && col.count("/mon/standup/alice") > 0 &&
			col.count("/rec/standup/bob") > 0 && col.count("/mon/standup/bob") > 0
	})
	return &callPair{alice: alice, bob: bob, aliceEv: aliceEv, bobEv: bobEv, aliceRemote: remote, col: col}
}

func TestAliceCallsBob(t *testing.T) {
	c := connectedPair(t)
	alice, bob, bobEv := c.alice, c.bob, c.bobEv

	select {
	case <-alice.Hangup():
	case <-time.After(5 * time.Second):
		t.Fatal("alice's collectors never drained")
	}
	if id := expect(t, bobEv.left, "peer_left"); id != "alice" {
		t.Fatalf("bob saw %q leave", id)
	}
	waitFor(t, "bob closed", func() bool { return bob.State() == rtc.StateClosed })
	waitFor(t, "bob stopped recording", func() bool { return !bob.Publisher().Recording() })
}

func newDetached(t *testing.T, events core.Events, opts ...Option) *Session {
	t.Helper()
	m, _ := domain.NewMembership("r", "carol")
	cfg := Config{
		Membership:   m,
		SignalingURL: "ws://127.0.0.1:1",
		Endpoints:    []publish.Endpoint{{Role: "recording", URL: "ws://collector/{room}/{client}"}},
	}
	s, err := New(cfg, events, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Hangup() })
	return s
}

func TestSecondOfferIgnored(t *testing.T) {
	events := mock.NewMockEvents(gomock.NewController(t))
	events.EXPECT().OnOffer(gomock.Any(), "alice").Times(1)
	s := newDetached(t, events)

	sdp := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}
	s.OnOffer(core.Message{Type: core.MessageOffer, From: "alice", SDP: &sdp}, "alice")
	s.OnOffer(core.Message{Type: core.MessageOffer, From: "bob", SDP: &sdp}, "bob")
	if !s.PendingOffer() {
		t.Fatal("first offer lost")
	}

	s.Decline()
	if s.PendingOffer() {
		t.Fatal("offer still pending after Decline")
	}
	if err := s.Answer(context.Background()); !errors.Is(err, ErrNoPendingOffer) {
		t.Fatalf("Answer without offer: %v", err)
	}
}

func TestCaptureFailureResetsCall(t *testing.T) {
	events := mock.NewMockEvents(gomock.NewController(t))
	events.EXPECT().OnError("capture unavailable")
	broken := media.CapturerFunc(func(context.Context) (*media.LocalCapture, error) {
		return nil, errors.New("no device")
	})
	s := newDetached(t, events, WithCapturer(broken))

	if err := s.Call(context.Background()); !errors.Is(err, rtc.ErrCaptureUnavailable) {
		t.Fatalf("Call err = %v", err)
	}
	if st := s.State(); st != rtc.StateIdle {
		t.Fatalf("state after reset = %s, want idle", st)
	}
}

func TestHangupIsFinal(t *testing.T) {
	s := newDetached(t, nil)
	<-s.Hangup()
	<-s.Hangup()
	if err := s.Call(context.Background()); !errors.Is(err, ErrHungUp) {
		t.Fatalf("Call after Hangup: %v", err)
	}
	if st := s.State(); st != rtc.StateClosed {
		t.Fatalf("state = %s", st)
	}
}

func TestSignalingLossEndsCall(t *testing.T) {
	c := connectedPair(t)

	// What the channel reports when the relay socket drops.
	c.alice.OnError(signal.ErrTextLost)

	waitFor(t, "alice torn down", func() bool {
		return c.alice.State() == rtc.StateClosed && !c.alice.Publisher().Recording() && c.alice.SourceCount() == 0
	})
	if id := expect(t, c.bobEv.left, "peer_left"); id != "alice" {
		t.Fatalf("bob saw %q leave", id)
	}
	if err := c.alice.Call(context.Background()); !errors.Is(err, ErrHungUp) {
		t.Fatalf("Call after signaling loss: %v", err)
	}
}

func TestRemoteAudioLossStopsRecording(t *testing.T) {
	c := connectedPair(t)

	for _, tr := range c.aliceRemote.AudioTracks() {
		tr.Stop()
	}

	waitFor(t, "alice recording stopped", func() bool {
		return !c.alice.Publisher().Recording() && c.alice.SourceCount() == 0
	})
	// Let the final chunk and the drain go through first.
	time.Sleep(300 * time.Millisecond)
	before := c.col.count("/rec/standup/alice")
	time.Sleep(600 * time.Millisecond)
	if after := c.col.count("/rec/standup/alice"); after != before {
		t.Fatalf("alice kept recording a one-sided call: %d -> %d chunks", before, after)
	}
	if !c.bob.Publisher().Recording() {
		t.Fatal("bob's recording stopped too")
	}
}

func TestConnectionFailureResetsCall(t *testing.T) {
	events := mock.NewMockEvents(gomock.NewController(t))
	events.EXPECT().OnError(rtc.ErrTextConnectionFailed)
	events.EXPECT().OnOffer(gomock.Any(), "bob")
	s := newDetached(t, events)

	old, err := s.prepare(context.Background())
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	sdp := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}
	// Ignored: a call is in progress.
	s.OnOffer(core.Message{Type: core.MessageOffer, From: "alice", SDP: &sdp}, "alice")

	ev := &managerEvents{s: s}
	ev.m.Store(old)
	ev.OnError(rtc.ErrTextConnectionFailed)

	waitFor(t, "reset to idle", func() bool { return s.State() == rtc.StateIdle })
	if old.State() != rtc.StateClosed {
		t.Fatalf("failed connection left %s", old.State())
	}
	s.OnOffer(core.Message{Type: core.MessageOffer, From: "bob", SDP: &sdp}, "bob")
	if !s.PendingOffer() {
		t.Fatal("offer after reset not accepted")
	}
}

type nopConn struct {
	mu     sync.Mutex
	closed bool
}

func (c *nopConn) WriteChunk(context.Context, []byte) error { return nil }

func (c *nopConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *nopConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// gateDialer holds every dial until release is closed, then succeeds.
type gateDialer struct {
	dialing chan struct{}
	release chan struct{}
	conn    *nopConn
}

func (d *gateDialer) Dial(context.Context, string) (publish.Conn, error) {
	d.dialing <- struct{}{}
	<-d.release
	return d.conn, nil
}

func TestHangupDuringRecordingStart(t *testing.T) {
	gate := &gateDialer{dialing: make(chan struct{}, 1), release: make(chan struct{}), conn: &nopConn{}}
	s := newDetached(t, nil, WithDialer(gate))

	if _, err := s.prepare(context.Background()); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	s.onRemoteStream(media.NewStream("remote", media.NewAudioTrack("r")))
	expect(t, gate.dialing, "collector dial")

	select {
	case <-s.Hangup():
	case <-time.After(2 * time.Second):
		t.Fatal("Hangup blocked behind the collector dial")
	}
	close(gate.release)

	waitFor(t, "late collector closed", gate.conn.isClosed)
	if s.Publisher().Recording() {
		t.Fatal("recording started after hangup")
	}
}
