package client

import (
	"testing"

	"github.com/austinromano/creator.v3/internal/core/domain"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineStartsAtTopTier(t *testing.T) {
	pipeline, err := NewEncodingPipeline(domain.DefaultLadder())
	require.NoError(t, err)

	assert.Equal(t, "1080p", pipeline.Active().Name)
	assert.Len(t, pipeline.Tracks(), 3)
}

func TestPipelineRejectsEmptyLadder(t *testing.T) {
	_, err := NewEncodingPipeline(nil)
	assert.Error(t, err)
}

func TestActivateSwitchesTier(t *testing.T) {
	ladder := domain.DefaultLadder()
	pipeline, err := NewEncodingPipeline(ladder)
	require.NoError(t, err)

	require.NoError(t, pipeline.Activate(ladder[0]))
	assert.Equal(t, "480p", pipeline.Active().Name)

	assert.Error(t, pipeline.Activate(domain.EncodingProfile{Name: "4k"}))
	assert.Equal(t, "480p", pipeline.Active().Name)
}

func TestWriteVideoGoesToActiveTierOnly(t *testing.T) {
	pipeline, err := NewEncodingPipeline(domain.DefaultLadder())
	require.NoError(t, err)

	// Unbound tracks swallow writes; the point is that routing does not
	// error regardless of which tier is active.
	packet := &rtp.Packet{Header: rtp.Header{Version: 2, PayloadType: 96}}
	assert.NoError(t, pipeline.WriteVideo(packet))

	require.NoError(t, pipeline.Activate(domain.DefaultLadder()[1]))
	assert.NoError(t, pipeline.WriteVideo(packet))
}

func TestSyntheticSourceProducesPacedPackets(t *testing.T) {
	source, err := NewSyntheticSource()
	require.NoError(t, err)
	defer source.Close()

	assert.Len(t, source.AudioTracks(), 1)

	video := source.VideoSource()
	first, err := video.ReadRTP()
	require.NoError(t, err)
	second, err := video.ReadRTP()
	require.NoError(t, err)

	assert.Equal(t, first.SequenceNumber+1, second.SequenceNumber)
	assert.Greater(t, second.Timestamp, first.Timestamp)

	require.NoError(t, source.Close())
	_, err = video.ReadRTP()
	assert.Error(t, err)
}
