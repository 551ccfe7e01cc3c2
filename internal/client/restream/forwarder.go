package restream

import (
	"context"

	"github.com/austinromano/creator.v3/internal/core/ports"

	"go.uber.org/zap"
)

// LogForwarder is the stand-in MediaForwarder used when no external media
// server is wired up. It only records lifecycle transitions.
type LogForwarder struct {
	logger *zap.SugaredLogger
}

func NewLogForwarder(logger *zap.SugaredLogger) *LogForwarder {
	return &LogForwarder{logger: logger}
}

func (f *LogForwarder) Start(ctx context.Context, ingestURL string, source ports.MediaSource) error {
	f.logger.Infow("forwarder start", "ingest_url", ingestURL)
	return nil
}

func (f *LogForwarder) Stop(ctx context.Context, ingestURL string) error {
	f.logger.Infow("forwarder stop", "ingest_url", ingestURL)
	return nil
}
