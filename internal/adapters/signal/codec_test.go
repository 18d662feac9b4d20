package signal

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/bounce/internal/core"
)

func TestEncodeWireFormat(t *testing.T) {
	mid := "0"
	idx := uint16(0)
	tests := []struct {
		name string
		msg  core.Message
		want map[string]any
	}{
		{
			name: "offer",
			msg:  core.Description{SessionDescription: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"}},
			want: map[string]any{"type": "offer", "sdp": "v=0\r\n"},
		},
		{
			name: "candidate",
			msg: core.Candidate{ICECandidateInit: webrtc.ICECandidateInit{
				Candidate:     "candidate:1 1 udp 2130706431 10.0.0.2 5000 typ host",
				SDPMid:        &mid,
				SDPMLineIndex: &idx,
			}},
			want: map[string]any{
				"type":      "candidate",
				"candidate": "candidate:1 1 udp 2130706431 10.0.0.2 5000 typ host",
				"id":        "0",
				"label":     float64(0),
			},
		},
		{
			name: "candidate without prefix",
			msg:  core.Candidate{ICECandidateInit: webrtc.ICECandidateInit{Candidate: "1 1 udp 1 10.0.0.2 5000 typ host"}},
			want: map[string]any{"type": "candidate", "candidate": "candidate:1 1 udp 1 10.0.0.2 5000 typ host"},
		},
		{
			name: "bye",
			msg:  core.Bye{},
			want: map[string]any{"type": "bye"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.msg)
			require.NoError(t, err)
			var got map[string]any
			require.NoError(t, json.Unmarshal(data, &got))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("wire mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	mid := "0"
	idx := uint16(0)

	msg, err := Decode([]byte(`{"type": "candidate", "candidate": "candidate:1 1 udp 1 10.0.0.2 5000 typ host", "id": "0", "label": 0}`))
	require.NoError(t, err)
	want := core.Candidate{ICECandidateInit: webrtc.ICECandidateInit{
		Candidate:     "candidate:1 1 udp 1 10.0.0.2 5000 typ host",
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	}}
	if diff := cmp.Diff(want, msg); diff != "" {
		t.Errorf("candidate mismatch (-want +got):\n%s", diff)
	}

	msg, err = Decode([]byte(`{"type": "answer", "sdp": "v=0\r\n"}`))
	require.NoError(t, err)
	assert.Equal(t, core.Description{SessionDescription: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\n"}}, msg)

	msg, err = Decode([]byte(`{"type": "bye"}`))
	require.NoError(t, err)
	assert.Equal(t, core.Bye{}, msg)

	msg, err = Decode([]byte(`{"type": "hello"}`))
	require.NoError(t, err)
	assert.Nil(t, msg)

	_, err = Decode([]byte(`{"type":`))
	assert.Error(t, err)
}

func TestEncodeRejectsNil(t *testing.T) {
	_, err := Encode(nil)
	assert.Error(t, err)
}
