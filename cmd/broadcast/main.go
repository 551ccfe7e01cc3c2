package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/austinromano/creator.v3/internal/client"
	"github.com/austinromano/creator.v3/internal/client/coordinator"
	"github.com/austinromano/creator.v3/internal/client/restream"
	"github.com/austinromano/creator.v3/internal/core/domain"
	"github.com/austinromano/creator.v3/pkg/config"
	"github.com/austinromano/creator.v3/pkg/logger"

	"github.com/pion/webrtc/v3"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to config file")
		streamID   = flag.String("stream", "", "stream id to broadcast on")
		viewMode   = flag.Bool("view", false, "join as a viewer instead of broadcasting")
		restreams  = flag.String("restream", "", "comma-separated platform:streamkey pairs, e.g. twitch:abc,youtube:xyz")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level, "console")
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	if *streamID == "" {
		log.Fatal("-stream is required")
	}

	sessionCfg := client.Config{
		SignalURL:            cfg.Client.SignalURL,
		HandshakeTimeout:     cfg.Client.HandshakeTimeout,
		ReconnectBaseDelay:   cfg.Client.ReconnectBaseDelay,
		ReconnectMaxAttempts: cfg.Client.ReconnectMaxAttempts,
		SampleInterval:       cfg.Bitrate.SampleInterval,
	}
	for _, s := range cfg.WebRTC.ICEServers {
		sessionCfg.ICEServers = append(sessionCfg.ICEServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	if len(sessionCfg.ICEServers) == 0 {
		sessionCfg.ICEServers = []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		}
	}
	sessionCfg.PortRange.Min = cfg.WebRTC.PortRange.Min
	sessionCfg.PortRange.Max = cfg.WebRTC.PortRange.Max

	session := client.NewSession(sessionCfg, restream.NewLogForwarder(log), log)
	defer session.Close()

	session.OnStateChange(func(state coordinator.State) {
		log.Infow("signaling state changed", "state", state.String())
	})

	ctx := context.Background()
	id := domain.StreamID(*streamID)

	if *viewMode {
		if err := session.StartViewing(ctx, id, func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			log.Infow("remote track received", "kind", track.Kind().String(), "id", track.ID())
		}); err != nil {
			log.Fatalw("failed to start viewing", "error", err)
		}
		log.Infow("viewing", "stream_id", id)
	} else {
		source, err := client.NewSyntheticSource()
		if err != nil {
			log.Fatalw("failed to create media source", "error", err)
		}
		defer source.Close()

		if err := session.StartBroadcast(ctx, id, source); err != nil {
			log.Fatalw("failed to start broadcast", "error", err)
		}
		log.Infow("broadcasting", "stream_id", id)

		for _, dest := range parseRestreams(*restreams) {
			if err := session.StartRestream(ctx, dest.platform, dest.key); err != nil {
				log.Errorw("failed to start restream", "platform", dest.platform, "error", err)
			}
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	session.StopBroadcast(ctx)
}

type restreamDest struct {
	platform restream.Platform
	key      string
}

func parseRestreams(spec string) []restreamDest {
	if spec == "" {
		return nil
	}
	var dests []restreamDest
	for _, pair := range strings.Split(spec, ",") {
		platform, key, found := strings.Cut(pair, ":")
		if !found || platform == "" || key == "" {
			continue
		}
		dests = append(dests, restreamDest{
			platform: restream.Platform(platform),
			key:      key,
		})
	}
	return dests
}
