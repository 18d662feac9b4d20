package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// Message is one signaling message. Exactly one of Description, Candidate
// or Bye; consumers switch on the concrete type.
type Message interface {
	isMessage()
}

// Description carries a session description (offer or answer).
type Description struct {
	webrtc.SessionDescription
}

// Candidate carries one trickled ICE candidate.
type Candidate struct {
	webrtc.ICECandidateInit
}

// Bye is the termination sentinel.
type Bye struct{}

func (Description) isMessage() {}
func (Candidate) isMessage()   {}
func (Bye) isMessage()         {}

// SignalingChannel is an order-preserving message pipe to the remote peer.
// Owned by the adapter; the session must Close() it.
type SignalingChannel interface {
	Send(ctx context.Context, msg Message) error
	// Receive blocks until the next message arrives, the channel closes or
	// ctx is done.
	Receive(ctx context.Context) (Message, error)
	Close() error
}
