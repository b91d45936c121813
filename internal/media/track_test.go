package media

import (
	"testing"

	"github.com/dkeye/voicecall/internal/core"
)

func TestTrackFanOut(t *testing.T) {
	tr := NewAudioTrack("a")
	c1, release1 := tr.Subscribe()
	c2, release2 := tr.Subscribe()
	defer release2()

	if n := tr.Write(core.Frame{1, 2, 3}); n != 2 {
		t.Fatalf("Write delivered to %d subscribers, want 2", n)
	}
	if f := <-c1; len(f) != 3 || f[0] != 1 {
		t.Fatalf("unexpected frame %v", f)
	}
	<-c2

	release1()
	release1()
	if _, ok := <-c1; ok {
		t.Fatal("released subscription must be closed")
	}
	if n := tr.Write(core.Frame{4}); n != 1 {
		t.Fatalf("Write after release delivered to %d, want 1", n)
	}
}

func TestTrackStopClosesSubscribers(t *testing.T) {
	tr := NewAudioTrack("a")
	ch, release := tr.Subscribe()
	tr.Stop()
	tr.Stop()
	release()

	if _, ok := <-ch; ok {
		t.Fatal("subscription must be closed after Stop")
	}
	select {
	case <-tr.Ended():
	default:
		t.Fatal("Ended must be closed after Stop")
	}
	if n := tr.Write(core.Frame{1}); n != 0 {
		t.Fatalf("Write on ended track delivered %d", n)
	}
	late, _ := tr.Subscribe()
	if _, ok := <-late; ok {
		t.Fatal("subscribing to an ended track must yield a closed channel")
	}
}

func TestTrackSlowSubscriberDrops(t *testing.T) {
	tr := NewAudioTrack("a")
	_, release := tr.Subscribe()
	defer release()
	for i := 0; i < SubscriberBuffer; i++ {
		tr.Write(core.Frame{int16(i)})
	}
	if n := tr.Write(core.Frame{0}); n != 0 {
		t.Fatalf("full subscriber accepted a frame")
	}
}

func TestStreamAudioTracks(t *testing.T) {
	s := NewStream("s", NewTrack("v", core.KindVideo), NewAudioTrack("a"))
	if got := len(s.Tracks()); got != 2 {
		t.Fatalf("Tracks() = %d", got)
	}
	audio := s.AudioTracks()
	if len(audio) != 1 || audio[0].ID() != "a" {
		t.Fatalf("AudioTracks() = %v", audio)
	}
}
