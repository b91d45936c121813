package core

import "time"

// Audio format shared by capture, mixing, and chunking: mono 16-bit PCM.
const (
	SampleRate    = 8000
	FrameDuration = 20 * time.Millisecond
	FrameSamples  = SampleRate / int(time.Second/FrameDuration)
)

// Frame is a block of mono PCM samples at SampleRate.
type Frame []int16

func (f Frame) Duration() time.Duration {
	return time.Duration(len(f)) * time.Second / SampleRate
}

type TrackKind string

const (
	KindAudio TrackKind = "audio"
	KindVideo TrackKind = "video"
)

// Track is a live media source that fans out to any number of readers.
type Track interface {
	ID() string
	Kind() TrackKind
	// Subscribe returns a frame channel and a func that releases it.
	// The channel is closed when the track ends or the subscription is released.
	Subscribe() (<-chan Frame, func())
	// Stop ends the track for every subscriber.
	Stop()
}

// Stream groups tracks that belong together, e.g. one capture device or one remote peer.
type Stream interface {
	ID() string
	Tracks() []Track
	AudioTracks() []Track
}
