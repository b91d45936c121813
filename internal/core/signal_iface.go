package core

import "github.com/pion/webrtc/v4"

type MessageType string

const (
	MessagePeerJoined   MessageType = "peer_joined"
	MessagePeerLeft     MessageType = "peer_left"
	MessageOffer        MessageType = "offer"
	MessageAnswer       MessageType = "answer"
	MessageICECandidate MessageType = "ice-candidate"
)

// Message is the signaling envelope. The relay stamps From on everything it
// forwards; membership events carry PeerID instead of a payload.
type Message struct {
	Type      MessageType                `json:"type"`
	From      string                     `json:"from,omitempty"`
	PeerID    string                     `json:"peer_id,omitempty"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

func NewOfferMessage(sdp webrtc.SessionDescription) Message {
	return Message{Type: MessageOffer, SDP: &sdp}
}

func NewAnswerMessage(sdp webrtc.SessionDescription) Message {
	return Message{Type: MessageAnswer, SDP: &sdp}
}

func NewCandidateMessage(c webrtc.ICECandidateInit) Message {
	return Message{Type: MessageICECandidate, Candidate: &c}
}

// Sender abstracts the outbound half of the signaling transport.
// Owned by the adapter; the adapter must Close() it.
type Sender interface {
	Send(Message) error
	Close()
}
