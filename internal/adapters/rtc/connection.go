package rtc

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/bounce/internal/core"
)

// Connection adapts a pion PeerConnection to core.MediaSession. pion
// callbacks become MediaEvents on a channel read by the session loop.
type Connection struct {
	pc  *webrtc.PeerConnection
	sid core.SessionID

	events    chan core.MediaEvent
	done      chan struct{}
	closeOnce sync.Once
}

var _ core.MediaSession = (*Connection)(nil)

func NewConnection(api *webrtc.API, cfg webrtc.Configuration, sid core.SessionID) (*Connection, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	c := &Connection{
		pc:     pc,
		sid:    sid,
		events: make(chan core.MediaEvent, 16),
		done:   make(chan struct{}),
	}
	c.bind()
	return c, nil
}

func (c *Connection) bind() {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "webrtc").Str("sid", string(c.sid)).Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Str("peer_connection_state", s.String()).Msg("Peer state")
		c.emit(core.MediaEvent{Kind: core.EventConnectionState, State: s})
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("sid", string(c.sid)).
			Str("kind", track.Kind().String()).
			Str("codec", track.Codec().MimeType).
			Str("track_id", track.ID()).
			Msg("OnTrack received")
		c.emit(core.MediaEvent{Kind: core.EventTrack, Track: track})
	})

	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Str("label", dc.Label()).Msg("OnDataChannel received")
		c.emit(core.MediaEvent{Kind: core.EventDataChannel, Data: &DataChannel{dc: dc}})
	})
}

func (c *Connection) emit(ev core.MediaEvent) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Connection) Events() <-chan core.MediaEvent { return c.events }

func (c *Connection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(desc)
}

func (c *Connection) CreateOffer() (*webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

func (c *Connection) CreateAnswer() (*webrtc.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	return &answer, nil
}

func (c *Connection) SetLocalDescription(desc webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(desc); err != nil {
		return nil, err
	}
	<-gatherComplete
	return c.pc.LocalDescription(), nil
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

// CreateDataChannel opens the side-channel from the offering side.
func (c *Connection) CreateDataChannel(label string) (*DataChannel, error) {
	dc, err := c.pc.CreateDataChannel(label, nil)
	if err != nil {
		return nil, err
	}
	return &DataChannel{dc: dc}, nil
}

// AddVideoTrack attaches a local track and drains its RTCP so the
// interceptors see receiver feedback.
func (c *Connection) AddVideoTrack(track *webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error) {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return sender, nil
}

func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.pc.Close()
		if err != nil {
			log.Error().Err(err).Str("module", "webrtc").Str("sid", string(c.sid)).Msg("close error")
		} else {
			log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Msg("closed")
		}
	})
	return err
}

// DataChannel adapts a pion data channel to core.DataChannel.
type DataChannel struct {
	dc *webrtc.DataChannel
}

var _ core.DataChannel = (*DataChannel)(nil)

func (d *DataChannel) Label() string { return d.dc.Label() }

func (d *DataChannel) SendText(s string) error { return d.dc.SendText(s) }

func (d *DataChannel) OnMessage(fn func(data []byte)) {
	d.dc.OnMessage(func(msg webrtc.DataChannelMessage) { fn(msg.Data) })
}

// OnOpen runs fn once the channel is usable.
func (d *DataChannel) OnOpen(fn func()) { d.dc.OnOpen(fn) }
