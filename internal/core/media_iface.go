package core

import (
	"github.com/pion/webrtc/v4"
)

// MediaEventKind tags a MediaEvent.
type MediaEventKind int

const (
	EventConnectionState MediaEventKind = iota
	EventTrack
	EventDataChannel
)

// MediaEvent is a transport notification delivered to the session loop
// instead of a callback.
type MediaEvent struct {
	Kind  MediaEventKind
	State webrtc.PeerConnectionState
	Track *webrtc.TrackRemote
	Data  DataChannel
}

// DataChannel is the reliable side-channel carrying position reports.
type DataChannel interface {
	Label() string
	SendText(s string) error
	OnMessage(fn func(data []byte))
}

//go:generate mockgen -destination=mocks/mocks.go -package=mocks github.com/dkeye/bounce/internal/core SignalingChannel,MediaSession

// MediaSession is the transport library handle for one peer session.
type MediaSession interface {
	// SetRemoteDescription applies an offer or answer received from the peer.
	SetRemoteDescription(webrtc.SessionDescription) error
	// CreateOffer returns a local offer, not yet applied.
	CreateOffer() (*webrtc.SessionDescription, error)
	// CreateAnswer returns a local answer, not yet applied. A nil answer
	// with a nil error means no answer could be synthesized.
	CreateAnswer() (*webrtc.SessionDescription, error)
	// SetLocalDescription applies desc and waits for ICE gathering so the
	// returned description carries every candidate.
	SetLocalDescription(desc webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// Events delivers transport notifications in order.
	Events() <-chan MediaEvent
	Close() error
}
