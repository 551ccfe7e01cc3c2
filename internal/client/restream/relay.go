package restream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/austinromano/creator.v3/internal/core/domain"
	"github.com/austinromano/creator.v3/internal/core/ports"
	"github.com/austinromano/creator.v3/pkg/retry"

	"go.uber.org/zap"
)

// Platform identifies an external ingest destination.
type Platform string

const (
	PlatformTwitch   Platform = "twitch"
	PlatformYouTube  Platform = "youtube"
	PlatformFacebook Platform = "facebook"
	PlatformKick     Platform = "kick"
)

var ingestTemplates = map[Platform]string{
	PlatformTwitch:   "rtmp://live.twitch.tv/app/%s",
	PlatformYouTube:  "rtmp://a.rtmp.youtube.com/live2/%s",
	PlatformFacebook: "rtmps://live-api-s.facebook.com:443/rtmp/%s",
	PlatformKick:     "rtmps://fa723fc1b171.global-contribute.live-video.net/app/%s",
}

// ResolveIngestURL maps a (platform, stream key) pair to an RTMP ingest
// endpoint. Unrecognized platforms get the generic pattern.
func ResolveIngestURL(platform Platform, streamKey string) string {
	if template, known := ingestTemplates[platform]; known {
		return fmt.Sprintf(template, streamKey)
	}
	return fmt.Sprintf("rtmp://ingest.%s.tv/live/%s", platform, streamKey)
}

type destination struct {
	url       string
	clone     ports.MediaSource
	startedAt time.Time
}

// Relay tracks per-destination forwarding state. It resolves endpoints and
// holds a cloned capture handle per active destination; the actual
// WebRTC-to-RTMP muxing belongs to the MediaForwarder collaborator.
type Relay struct {
	forwarder ports.MediaForwarder
	retryCfg  retry.Config
	logger    *zap.SugaredLogger

	mu           sync.Mutex
	destinations map[Platform]*destination
}

func NewRelay(forwarder ports.MediaForwarder, logger *zap.SugaredLogger) *Relay {
	return &Relay{
		forwarder:    forwarder,
		retryCfg:     retry.DefaultConfig(),
		logger:       logger,
		destinations: make(map[Platform]*destination),
	}
}

// Start enables forwarding to one platform. The slot is reserved under the
// lock before the forwarder is engaged, so two concurrent Starts for the
// same platform cannot both pass the duplicate check; the loser fails with
// ErrDestinationActive without cloning anything.
func (r *Relay) Start(ctx context.Context, platform Platform, streamKey string, source ports.MediaSource) error {
	r.mu.Lock()
	if _, active := r.destinations[platform]; active {
		r.mu.Unlock()
		return fmt.Errorf("platform %s: %w", platform, domain.ErrDestinationActive)
	}
	r.destinations[platform] = &destination{}
	r.mu.Unlock()

	url := ResolveIngestURL(platform, streamKey)
	clone := source.Clone()

	err := retry.Do(ctx, r.retryCfg, func() error {
		return r.forwarder.Start(ctx, url, clone)
	})
	if err != nil {
		clone.Close()
		r.mu.Lock()
		delete(r.destinations, platform)
		r.mu.Unlock()
		return fmt.Errorf("failed to start forwarding to %s: %w", platform, err)
	}

	r.mu.Lock()
	dest, reserved := r.destinations[platform]
	if !reserved {
		// Stopped while the forwarder was still starting; undo.
		r.mu.Unlock()
		if err := r.forwarder.Stop(ctx, url); err != nil {
			r.logger.Warnw("forwarder stop failed", "platform", platform, "error", err)
		}
		clone.Close()
		r.logger.Infow("restream destination stopped during start", "platform", platform)
		return nil
	}
	dest.url = url
	dest.clone = clone
	dest.startedAt = time.Now()
	r.mu.Unlock()

	r.logger.Infow("restream destination started", "platform", platform, "url", url)
	return nil
}

// Stop disables one destination and releases its clone.
func (r *Relay) Stop(ctx context.Context, platform Platform) error {
	r.mu.Lock()
	dest, active := r.destinations[platform]
	delete(r.destinations, platform)
	r.mu.Unlock()

	if !active {
		return nil
	}
	if dest.clone == nil {
		// Reservation only: the in-flight Start observes the missing slot
		// and undoes itself.
		return nil
	}

	if err := r.forwarder.Stop(ctx, dest.url); err != nil {
		r.logger.Warnw("forwarder stop failed", "platform", platform, "error", err)
	}
	dest.clone.Close()

	r.logger.Infow("restream destination stopped", "platform", platform)
	return nil
}

// Health reports active state per platform: true iff a destination slot is
// held for it. Known platforms always appear in the snapshot.
func (r *Relay) Health() map[Platform]bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	health := make(map[Platform]bool, len(ingestTemplates))
	for platform := range ingestTemplates {
		_, active := r.destinations[platform]
		health[platform] = active
	}
	for platform := range r.destinations {
		health[platform] = true
	}
	return health
}

// Close stops every destination.
func (r *Relay) Close(ctx context.Context) error {
	r.mu.Lock()
	platforms := make([]Platform, 0, len(r.destinations))
	for platform := range r.destinations {
		platforms = append(platforms, platform)
	}
	r.mu.Unlock()

	for _, platform := range platforms {
		r.Stop(ctx, platform)
	}
	return nil
}
