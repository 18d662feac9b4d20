package rtc

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
)

const (
	// MimeTypeBouncePNG carries one PNG picture per frame.
	MimeTypeBouncePNG = "video/x-bounce-png"
	PayloadType       = 125
	ClockRate         = 90000
)

// VideoCodec is the only codec the media engine offers.
var VideoCodec = webrtc.RTPCodecParameters{
	RTPCodecCapability: webrtc.RTPCodecCapability{
		MimeType:  MimeTypeBouncePNG,
		ClockRate: ClockRate,
		RTCPFeedback: []webrtc.RTCPFeedback{
			{Type: "nack"},
			{Type: "nack", Parameter: "pli"},
		},
	},
	PayloadType: PayloadType,
}

// NewAPI builds a pion API with the frame codec, NACK and RTCP report
// interceptors, and pion logging routed through lf.
func NewAPI(lf logging.LoggerFactory) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(VideoCodec, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("register codec: %w", err)
	}

	ir := &interceptor.Registry{}
	if err := webrtc.ConfigureNack(m, ir); err != nil {
		return nil, fmt.Errorf("configure nack: %w", err)
	}
	if err := webrtc.ConfigureRTCPReports(ir); err != nil {
		return nil, fmt.Errorf("configure rtcp reports: %w", err)
	}

	se := webrtc.SettingEngine{}
	if lf != nil {
		se.LoggerFactory = lf
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	), nil
}

// Configuration returns a peer connection configuration using the given
// ICE server URLs. With none, only host candidates are gathered.
func Configuration(iceServers []string) webrtc.Configuration {
	cfg := webrtc.Configuration{}
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return cfg
}
