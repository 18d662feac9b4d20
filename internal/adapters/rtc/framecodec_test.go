package rtc

import (
	"bytes"
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/bounce/internal/vision"
)

func payload(n int) []byte {
	return bytes.Repeat([]byte{0xab, 0xcd, 0xef}, n/3+1)[:n]
}

func TestPacketizeSplitsAndMarks(t *testing.T) {
	p := NewFramePacketizer(PayloadType, 42)
	pkts := p.Packetize(payload(2*maxChunk+10), 6000)

	require.Len(t, pkts, 3)
	for i, pkt := range pkts {
		assert.Equal(t, uint32(6000), pkt.Timestamp)
		assert.Equal(t, uint32(42), pkt.SSRC)
		assert.Equal(t, uint8(PayloadType), pkt.PayloadType)
		assert.Equal(t, i == 2, pkt.Marker)
		assert.Equal(t, i == 0, pkt.Payload[0]&flagStart != 0)
		if i > 0 {
			assert.Equal(t, pkts[i-1].SequenceNumber+1, pkt.SequenceNumber)
		}
	}
}

func TestAssembleRoundTrip(t *testing.T) {
	p := NewFramePacketizer(PayloadType, 1)
	var a FrameAssembler

	for i, size := range []int{0, 1, maxChunk, maxChunk + 1, 5 * maxChunk} {
		want := payload(size)
		pts := int64(i) * 3000
		var got []byte
		var gotPTS int64
		var done bool
		for _, pkt := range p.Packetize(want, pts) {
			require.False(t, done, "frame completed early")
			got, gotPTS, done = a.Push(pkt)
		}
		require.True(t, done)
		assert.Equal(t, want, got)
		assert.Equal(t, pts, gotPTS)
	}
	assert.Zero(t, a.Dropped())
}

func TestAssembleDropsFrameWithGap(t *testing.T) {
	p := NewFramePacketizer(PayloadType, 1)
	var a FrameAssembler

	lossy := p.Packetize(payload(3*maxChunk), 0)
	for i, pkt := range lossy {
		if i == 1 {
			continue
		}
		_, _, ok := a.Push(pkt)
		assert.False(t, ok)
	}
	assert.Equal(t, 1, a.Dropped())

	want := payload(maxChunk + 7)
	var got []byte
	var ok bool
	for _, pkt := range p.Packetize(want, 3000) {
		got, _, ok = a.Push(pkt)
	}
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestAssembleIgnoresContinuationWithoutStart(t *testing.T) {
	var a FrameAssembler
	_, _, ok := a.Push(&rtp.Packet{Header: rtp.Header{Marker: true}, Payload: []byte{0, 1, 2}})
	assert.False(t, ok)
	_, _, ok = a.Push(&rtp.Packet{})
	assert.False(t, ok)
}

func TestTimestampUnwrap(t *testing.T) {
	var u timestampUnwrapper
	assert.Equal(t, int64(1<<32-3000), u.unwrap(1<<32-3000))
	assert.Equal(t, int64(1<<32+1000), u.unwrap(1000))
	assert.Equal(t, int64(1<<32-500), u.unwrap(1<<32-500))
	assert.Equal(t, int64(1<<32+4000), u.unwrap(4000))
}

func TestFrameSurvivesPacketization(t *testing.T) {
	img := vision.RenderBall(960, 480, 300, 200, 20)
	data, err := vision.EncodeFrame(img)
	require.NoError(t, err)

	p := NewFramePacketizer(PayloadType, 7)
	var a FrameAssembler
	var out []byte
	var ok bool
	for _, pkt := range p.Packetize(data, 90000) {
		out, _, ok = a.Push(pkt)
	}
	require.True(t, ok)

	back, err := vision.DecodeFrame(out)
	require.NoError(t, err)
	assert.Equal(t, vision.ToGray(img).Pix, vision.ToGray(back).Pix)
}
