package rtc

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math/rand/v2"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/bounce/internal/domain"
	"github.com/dkeye/bounce/internal/vision"
)

// NewVideoTrack returns a local track for the frame codec.
func NewVideoTrack() (*webrtc.TrackLocalStaticRTP, error) {
	return webrtc.NewTrackLocalStaticRTP(VideoCodec.RTPCodecCapability, "video", "bounce")
}

// VideoSender encodes frames and writes them to a local track.
type VideoSender struct {
	track *webrtc.TrackLocalStaticRTP
	pk    *FramePacketizer
}

func NewVideoSender(track *webrtc.TrackLocalStaticRTP) *VideoSender {
	return &VideoSender{track: track, pk: NewFramePacketizer(PayloadType, rand.Uint32())}
}

func (s *VideoSender) WriteFrame(img image.Image, pts int64) error {
	data, err := vision.EncodeFrame(img)
	if err != nil {
		return err
	}
	for _, pkt := range s.pk.Packetize(data, pts) {
		if err := s.track.WriteRTP(pkt); err != nil {
			return fmt.Errorf("write rtp: %w", err)
		}
	}
	return nil
}

// ReadFrames reads the remote track until it ends or ctx is done and calls
// fn with every complete decoded frame.
func ReadFrames(ctx context.Context, track *webrtc.TrackRemote, fn func(domain.FrameRecord)) error {
	var asm FrameAssembler
	defer func() {
		log.Debug().Str("module", "webrtc").Int("dropped_frames", asm.Dropped()).Msg("track reader stopped")
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read rtp: %w", err)
		}
		data, pts, ok := asm.Push(pkt)
		if !ok {
			continue
		}
		img, err := vision.DecodeFrame(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "webrtc").Int64("pts", pts).Msg("drop undecodable frame")
			continue
		}
		fn(domain.FrameRecord{Timestamp: pts, Pixels: img})
	}
}
