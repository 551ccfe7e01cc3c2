package ports

import (
	"context"

	"github.com/austinromano/creator.v3/internal/core/domain"
)

// StreamDirectory is the presence read-model the relay keeps up to date for
// the UI and analytics layers: which streams are live and how many viewers
// each one has. It is deliberately write-through and lossy; the registry
// remains the source of truth for routing.
type StreamDirectory interface {
	SetLive(ctx context.Context, streamID domain.StreamID, live bool) error
	SetViewerCount(ctx context.Context, streamID domain.StreamID, count int) error
	Get(ctx context.Context, streamID domain.StreamID) (*domain.StreamStatus, error)
	List(ctx context.Context) ([]*domain.StreamStatus, error)
	Remove(ctx context.Context, streamID domain.StreamID) error
}
