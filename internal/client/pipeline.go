package client

import (
	"fmt"
	"sync"

	"github.com/austinromano/creator.v3/internal/core/domain"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// EncodingPipeline fans the capture feed into the quality ladder. All tier
// tracks are attached to the peer connection, but packets flow only into
// the active one; switching tiers is therefore just moving the gate, no
// renegotiation. This is single-active-encoding, not simulcast: exactly one
// tier carries media at any time.
type EncodingPipeline struct {
	profiles []domain.EncodingProfile
	tracks   []*webrtc.TrackLocalStaticRTP

	mu     sync.RWMutex
	active int
}

func NewEncodingPipeline(ladder []domain.EncodingProfile) (*EncodingPipeline, error) {
	if len(ladder) == 0 {
		return nil, fmt.Errorf("encoding ladder must not be empty")
	}

	p := &EncodingPipeline{
		profiles: ladder,
		active:   len(ladder) - 1,
	}
	for _, profile := range ladder {
		track, err := webrtc.NewTrackLocalStaticRTP(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			fmt.Sprintf("video-%s", profile.Name),
			"creator-video",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create tier track %s: %w", profile.Name, err)
		}
		p.tracks = append(p.tracks, track)
	}
	return p, nil
}

// Tracks returns every tier track for attachment to a peer connection.
func (p *EncodingPipeline) Tracks() []webrtc.TrackLocal {
	tracks := make([]webrtc.TrackLocal, len(p.tracks))
	for i, track := range p.tracks {
		tracks[i] = track
	}
	return tracks
}

// WriteVideo forwards one capture packet into the active tier.
func (p *EncodingPipeline) WriteVideo(packet *rtp.Packet) error {
	p.mu.RLock()
	track := p.tracks[p.active]
	p.mu.RUnlock()
	return track.WriteRTP(packet)
}

// Activate implements bitrate.TierSwitcher: the named tier becomes the only
// one receiving packets.
func (p *EncodingPipeline) Activate(profile domain.EncodingProfile) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, candidate := range p.profiles {
		if candidate.Name == profile.Name {
			p.active = i
			return nil
		}
	}
	return fmt.Errorf("unknown encoding profile %q", profile.Name)
}

// Active returns the profile currently carrying media.
func (p *EncodingPipeline) Active() domain.EncodingProfile {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.profiles[p.active]
}
