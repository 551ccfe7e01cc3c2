package client

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/austinromano/creator.v3/internal/core/ports"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// SyntheticSource generates a silent Opus track and a paced dummy VP8 RTP
// feed. It stands in for a real capture device in the CLI and in tests.
type SyntheticSource struct {
	audio *webrtc.TrackLocalStaticRTP
	video *syntheticRTPSource
}

func NewSyntheticSource() (*SyntheticSource, error) {
	audio, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"creator-audio",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio track: %w", err)
	}
	return &SyntheticSource{
		audio: audio,
		video: newSyntheticRTPSource(),
	}, nil
}

func (s *SyntheticSource) AudioTracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{s.audio}
}

func (s *SyntheticSource) VideoSource() ports.RTPSource {
	return s.video
}

// Clone returns an independent handle producing the same kind of feed.
func (s *SyntheticSource) Clone() ports.MediaSource {
	clone, err := NewSyntheticSource()
	if err != nil {
		// Track creation only fails on an invalid codec capability, which
		// is fixed at compile time here.
		panic(err)
	}
	return clone
}

func (s *SyntheticSource) Close() error {
	s.video.close()
	return nil
}

// syntheticRTPSource paces empty VP8 payloads at ~30fps with a 90kHz clock.
type syntheticRTPSource struct {
	mu        sync.Mutex
	closed    bool
	sequence  uint16
	timestamp uint32
}

func newSyntheticRTPSource() *syntheticRTPSource {
	return &syntheticRTPSource{}
}

func (s *syntheticRTPSource) ReadRTP() (*rtp.Packet, error) {
	time.Sleep(time.Second / 30)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, io.EOF
	}

	s.sequence++
	s.timestamp += 90000 / 30
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: s.sequence,
			Timestamp:      s.timestamp,
			SSRC:           0x1234,
		},
		Payload: make([]byte, 1200),
	}, nil
}

func (s *syntheticRTPSource) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
