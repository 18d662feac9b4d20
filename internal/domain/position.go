// Package domain contains entities without logic, just data shared between
// the offering and answering peers.
package domain

import "image"

// Position is a ball center in frame pixel coordinates.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// TrackedPosition is the estimate held by the tracking pipeline: a position
// and the pts of the frame that produced it.
type TrackedPosition struct {
	Position
	Timestamp int64 `json:"pts"`
}

// PositionReport is the side-channel message sent by the answering peer.
// Immutable once sent.
type PositionReport struct {
	PTS int64 `json:"pts"`
	X   int   `json:"x"`
	Y   int   `json:"y"`
}

func (r PositionReport) Position() Position { return Position{X: r.X, Y: r.Y} }

// FrameRecord carries one decoded frame from the receive loop to the
// tracking worker. Ownership moves to the worker on dequeue.
type FrameRecord struct {
	Timestamp int64
	Pixels    image.Image
}
