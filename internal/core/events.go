package core

//go:generate mockgen -source=events.go -destination=mock/mock_events.go -package=mock

// Events is the observer the UI layer registers to follow a call.
type Events interface {
	// OnReady fires once the signaling transport is open.
	OnReady()
	OnPeerJoined(peerID string)
	OnPeerLeft(peerID string)
	// OnOffer reports an incoming call; the UI answers or declines it.
	OnOffer(offer Message, fromID string)
	// OnRemoteStream fires at most once per peer connection.
	OnRemoteStream(stream Stream)
	OnError(message string)
}

// NopEvents ignores every event. Embed it to observe a subset.
type NopEvents struct{}

func (NopEvents) OnReady()                {}
func (NopEvents) OnPeerJoined(string)     {}
func (NopEvents) OnPeerLeft(string)       {}
func (NopEvents) OnOffer(Message, string) {}
func (NopEvents) OnRemoteStream(Stream)   {}
func (NopEvents) OnError(string)          {}
