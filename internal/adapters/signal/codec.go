package signal

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/bounce/internal/core"
)

var ErrChannelClosed = errors.New("signaling channel closed")

// wireMessage is the JSON shape exchanged by both transports, one object
// per message.
type wireMessage struct {
	Type      string  `json:"type"`
	SDP       string  `json:"sdp,omitempty"`
	Candidate string  `json:"candidate,omitempty"`
	ID        *string `json:"id,omitempty"`
	Label     *uint16 `json:"label,omitempty"`
}

const candidatePrefix = "candidate:"

func Encode(msg core.Message) ([]byte, error) {
	var w wireMessage
	switch m := msg.(type) {
	case core.Description:
		w = wireMessage{Type: m.Type.String(), SDP: m.SDP}
	case core.Candidate:
		cand := m.Candidate
		if !strings.HasPrefix(cand, candidatePrefix) {
			cand = candidatePrefix + cand
		}
		w = wireMessage{Type: "candidate", Candidate: cand, ID: m.SDPMid, Label: m.SDPMLineIndex}
	case core.Bye:
		w = wireMessage{Type: "bye"}
	default:
		return nil, fmt.Errorf("cannot encode %T", msg)
	}
	return json.Marshal(w)
}

// Decode parses one wire message. Unknown types decode to a nil Message
// without error.
func Decode(data []byte) (core.Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode signaling message: %w", err)
	}
	switch w.Type {
	case "offer", "answer":
		return core.Description{SessionDescription: webrtc.SessionDescription{
			Type: webrtc.NewSDPType(w.Type),
			SDP:  w.SDP,
		}}, nil
	case "candidate":
		return core.Candidate{ICECandidateInit: webrtc.ICECandidateInit{
			Candidate:     w.Candidate,
			SDPMid:        w.ID,
			SDPMLineIndex: w.Label,
		}}, nil
	case "bye":
		return core.Bye{}, nil
	}
	return nil, nil
}
