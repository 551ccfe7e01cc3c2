package ports

import (
	"context"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// RTPSource is a raw capture feed of RTP packets, typically the local
// camera/encoder pipeline.
type RTPSource interface {
	ReadRTP() (*rtp.Packet, error)
}

// MediaSource is the local capture handle supplied by the platform layer.
// The client never opens devices itself; it only attaches what the source
// provides. Clone returns an independent handle over the same capture,
// used when forwarding the stream to an external ingest destination.
type MediaSource interface {
	AudioTracks() []webrtc.TrackLocal
	VideoSource() RTPSource
	Clone() MediaSource
	Close() error
}

// MediaForwarder is the external media server that performs the actual
// WebRTC-to-RTMP muxing. The multi-destination relay's contract ends at
// endpoint resolution and lifecycle bookkeeping; forwarding bytes is this
// collaborator's problem.
type MediaForwarder interface {
	Start(ctx context.Context, ingestURL string, source MediaSource) error
	Stop(ctx context.Context, ingestURL string) error
}
