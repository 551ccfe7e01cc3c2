package memory

import (
	"context"
	"sync"
	"time"

	"github.com/austinromano/creator.v3/internal/core/domain"
	"github.com/austinromano/creator.v3/internal/core/ports"
)

type StreamDirectory struct {
	statuses map[domain.StreamID]*domain.StreamStatus
	mu       sync.RWMutex
}

func NewStreamDirectory() ports.StreamDirectory {
	return &StreamDirectory{
		statuses: make(map[domain.StreamID]*domain.StreamStatus),
	}
}

func (d *StreamDirectory) SetLive(ctx context.Context, streamID domain.StreamID, live bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	status := d.getOrCreate(streamID)
	status.Live = live
	status.UpdatedAt = time.Now()
	return nil
}

func (d *StreamDirectory) SetViewerCount(ctx context.Context, streamID domain.StreamID, count int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	status := d.getOrCreate(streamID)
	status.ViewerCount = count
	status.UpdatedAt = time.Now()
	return nil
}

func (d *StreamDirectory) Get(ctx context.Context, streamID domain.StreamID) (*domain.StreamStatus, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status, exists := d.statuses[streamID]
	if !exists {
		return nil, domain.ErrStreamNotFound
	}
	copied := *status
	return &copied, nil
}

func (d *StreamDirectory) List(ctx context.Context) ([]*domain.StreamStatus, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	statuses := make([]*domain.StreamStatus, 0, len(d.statuses))
	for _, status := range d.statuses {
		copied := *status
		statuses = append(statuses, &copied)
	}
	return statuses, nil
}

func (d *StreamDirectory) Remove(ctx context.Context, streamID domain.StreamID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.statuses, streamID)
	return nil
}

// callers must hold d.mu
func (d *StreamDirectory) getOrCreate(streamID domain.StreamID) *domain.StreamStatus {
	status, exists := d.statuses[streamID]
	if !exists {
		status = &domain.StreamStatus{ID: streamID}
		d.statuses[streamID] = status
	}
	return status
}
