package rtc

import (
	"github.com/pion/rtp"
)

const (
	// maxChunk keeps packets under a typical path MTU after SRTP overhead.
	maxChunk = 1100

	flagStart = 0x01
)

// FramePacketizer splits one encoded frame into RTP packets. Every packet
// of a frame carries the frame pts as its RTP timestamp; the first packet
// has the start flag and the last one the marker bit.
type FramePacketizer struct {
	seq         rtp.Sequencer
	ssrc        uint32
	payloadType uint8
}

func NewFramePacketizer(payloadType uint8, ssrc uint32) *FramePacketizer {
	return &FramePacketizer{seq: rtp.NewRandomSequencer(), ssrc: ssrc, payloadType: payloadType}
}

func (p *FramePacketizer) Packetize(frame []byte, pts int64) []*rtp.Packet {
	n := (len(frame) + maxChunk - 1) / maxChunk
	if n == 0 {
		n = 1
	}
	out := make([]*rtp.Packet, 0, n)
	for i := 0; i < n; i++ {
		lo := i * maxChunk
		hi := min(lo+maxChunk, len(frame))
		payload := make([]byte, 1+hi-lo)
		if i == 0 {
			payload[0] = flagStart
		}
		copy(payload[1:], frame[lo:hi])
		out = append(out, &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         i == n-1,
				PayloadType:    p.payloadType,
				SequenceNumber: p.seq.NextSequenceNumber(),
				Timestamp:      uint32(pts),
				SSRC:           p.ssrc,
			},
			Payload: payload,
		})
	}
	return out
}

// FrameAssembler rebuilds frames from packets produced by FramePacketizer.
// A frame with a missing or reordered packet is dropped whole.
type FrameAssembler struct {
	buf     []byte
	ts      uint32
	nextSeq uint16
	active  bool

	unwrap  timestampUnwrapper
	dropped int
}

// Push consumes one packet and returns a complete frame when pkt ends one.
func (a *FrameAssembler) Push(pkt *rtp.Packet) (frame []byte, pts int64, ok bool) {
	if len(pkt.Payload) == 0 {
		return nil, 0, false
	}
	chunk := pkt.Payload[1:]

	if pkt.Payload[0]&flagStart != 0 {
		if a.active {
			a.dropped++
		}
		a.active = true
		a.ts = pkt.Timestamp
		a.buf = append(a.buf[:0], chunk...)
	} else {
		if !a.active {
			return nil, 0, false
		}
		if pkt.Timestamp != a.ts || pkt.SequenceNumber != a.nextSeq {
			a.active = false
			a.dropped++
			return nil, 0, false
		}
		a.buf = append(a.buf, chunk...)
	}
	a.nextSeq = pkt.SequenceNumber + 1

	if !pkt.Marker {
		return nil, 0, false
	}
	a.active = false
	frame = make([]byte, len(a.buf))
	copy(frame, a.buf)
	return frame, a.unwrap.unwrap(a.ts), true
}

// Dropped counts frames discarded as incomplete.
func (a *FrameAssembler) Dropped() int { return a.dropped }

// timestampUnwrapper extends 32-bit RTP timestamps to a monotonic int64.
type timestampUnwrapper struct {
	last   uint32
	cycles int64
	seen   bool
}

func (u *timestampUnwrapper) unwrap(ts uint32) int64 {
	if u.seen {
		if ts < u.last && u.last-ts > 1<<31 {
			u.cycles++
		} else if ts > u.last && ts-u.last > 1<<31 && u.cycles > 0 {
			return (u.cycles-1)<<32 | int64(ts)
		}
	}
	u.last = ts
	u.seen = true
	return u.cycles<<32 | int64(ts)
}
