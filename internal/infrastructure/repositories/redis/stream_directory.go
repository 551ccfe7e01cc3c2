package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/austinromano/creator.v3/internal/core/domain"
	"github.com/austinromano/creator.v3/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const (
	directoryIndexKey = "directory:streams"
	statusKeyPrefix   = "directory:stream:"

	// Presence entries expire on their own so a crashed relay does not leave
	// ghost streams behind forever.
	statusTTL = 10 * time.Minute
)

// StreamDirectory is the Redis-backed presence store. The relay writes
// through it on every membership change; the UI layer reads it via the
// directory API.
type StreamDirectory struct {
	client *redis.Client
}

func NewStreamDirectory(client *redis.Client) ports.StreamDirectory {
	return &StreamDirectory{client: client}
}

func statusKey(streamID domain.StreamID) string {
	return statusKeyPrefix + string(streamID)
}

func (d *StreamDirectory) SetLive(ctx context.Context, streamID domain.StreamID, live bool) error {
	key := statusKey(streamID)

	pipe := d.client.TxPipeline()
	pipe.HSet(ctx, key,
		"live", strconv.FormatBool(live),
		"updated_at", time.Now().Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, key, statusTTL)
	pipe.SAdd(ctx, directoryIndexKey, string(streamID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set live flag: %w", err)
	}
	return nil
}

func (d *StreamDirectory) SetViewerCount(ctx context.Context, streamID domain.StreamID, count int) error {
	key := statusKey(streamID)

	pipe := d.client.TxPipeline()
	pipe.HSet(ctx, key,
		"viewer_count", count,
		"updated_at", time.Now().Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, key, statusTTL)
	pipe.SAdd(ctx, directoryIndexKey, string(streamID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set viewer count: %w", err)
	}
	return nil
}

func (d *StreamDirectory) Get(ctx context.Context, streamID domain.StreamID) (*domain.StreamStatus, error) {
	fields, err := d.client.HGetAll(ctx, statusKey(streamID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get stream status: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrStreamNotFound
	}
	return statusFromFields(streamID, fields), nil
}

func (d *StreamDirectory) List(ctx context.Context) ([]*domain.StreamStatus, error) {
	ids, err := d.client.SMembers(ctx, directoryIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list streams: %w", err)
	}

	statuses := make([]*domain.StreamStatus, 0, len(ids))
	for _, id := range ids {
		streamID := domain.StreamID(id)
		status, err := d.Get(ctx, streamID)
		if err == domain.ErrStreamNotFound {
			// Status expired; drop the stale index entry.
			d.client.SRem(ctx, directoryIndexKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func (d *StreamDirectory) Remove(ctx context.Context, streamID domain.StreamID) error {
	pipe := d.client.TxPipeline()
	pipe.Del(ctx, statusKey(streamID))
	pipe.SRem(ctx, directoryIndexKey, string(streamID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove stream status: %w", err)
	}
	return nil
}

func statusFromFields(streamID domain.StreamID, fields map[string]string) *domain.StreamStatus {
	status := &domain.StreamStatus{ID: streamID}
	status.Live, _ = strconv.ParseBool(fields["live"])
	status.ViewerCount, _ = strconv.Atoi(fields["viewer_count"])
	status.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updated_at"])
	return status
}
