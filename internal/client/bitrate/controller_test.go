package bitrate

import (
	"testing"
	"time"

	"github.com/austinromano/creator.v3/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSource struct {
	sample Sample
	ok     bool
}

func (s *stubSource) Sample() (Sample, bool) { return s.sample, s.ok }

type recordingSwitcher struct {
	activated []string
}

func (r *recordingSwitcher) Activate(profile domain.EncodingProfile) error {
	r.activated = append(r.activated, profile.Name)
	return nil
}

func newTestController() (*Controller, *stubSource, *recordingSwitcher) {
	source := &stubSource{}
	switcher := &recordingSwitcher{}
	ctrl := NewController(domain.DefaultLadder(), 10*time.Millisecond, source, switcher, zap.NewNop().Sugar())
	return ctrl, source, switcher
}

func goodSample() Sample {
	return Sample{LossPercent: 0.1, RTT: 20 * time.Millisecond, Bandwidth: 5_000_000}
}

func badSample() Sample {
	return Sample{LossPercent: 8.0, RTT: 30 * time.Millisecond, Bandwidth: 5_000_000}
}

func TestStartsAtTopTier(t *testing.T) {
	ctrl, _, _ := newTestController()
	assert.Equal(t, "1080p", ctrl.Current().Name)
}

func TestNoMoveWithoutStats(t *testing.T) {
	ctrl, source, switcher := newTestController()
	source.ok = false

	ctrl.Evaluate()
	assert.Empty(t, switcher.activated)
}

func TestHighLossStepsDownOneTier(t *testing.T) {
	ctrl, source, switcher := newTestController()
	source.ok = true
	source.sample = badSample()

	ctrl.Evaluate()

	require.Equal(t, []string{"720p"}, switcher.activated)
	assert.Equal(t, "720p", ctrl.Current().Name)
}

func TestHighRTTStepsDown(t *testing.T) {
	ctrl, source, switcher := newTestController()
	source.ok = true
	source.sample = Sample{LossPercent: 0.1, RTT: 300 * time.Millisecond, Bandwidth: 5_000_000}

	ctrl.Evaluate()
	assert.Equal(t, []string{"720p"}, switcher.activated)
}

func TestMinimumIntervalBetweenSwitches(t *testing.T) {
	ctrl, source, switcher := newTestController()
	source.ok = true
	source.sample = badSample()

	ctrl.Evaluate()
	ctrl.Evaluate() // within the interval: suppressed

	assert.Equal(t, []string{"720p"}, switcher.activated)

	time.Sleep(15 * time.Millisecond)
	ctrl.Evaluate()
	assert.Equal(t, []string{"720p", "480p"}, switcher.activated)
}

func TestNeverStepsBelowBottom(t *testing.T) {
	ctrl, source, switcher := newTestController()
	source.ok = true
	source.sample = badSample()

	for i := 0; i < 5; i++ {
		ctrl.Evaluate()
		time.Sleep(15 * time.Millisecond)
	}

	assert.Equal(t, []string{"720p", "480p"}, switcher.activated)
	assert.Equal(t, "480p", ctrl.Current().Name)
}

func TestUpgradeRequiresAllConditions(t *testing.T) {
	ctrl, source, switcher := newTestController()
	source.ok = true

	// Walk down first.
	source.sample = badSample()
	ctrl.Evaluate()
	require.Equal(t, "720p", ctrl.Current().Name)
	time.Sleep(15 * time.Millisecond)

	// Low loss and RTT but not enough bandwidth: hold.
	source.sample = Sample{LossPercent: 0.1, RTT: 20 * time.Millisecond, Bandwidth: 1_500_000}
	ctrl.Evaluate()
	assert.Equal(t, "720p", ctrl.Current().Name)

	// Everything healthy: step up.
	source.sample = goodSample()
	ctrl.Evaluate()
	assert.Equal(t, "1080p", ctrl.Current().Name)
	assert.Equal(t, []string{"720p", "1080p"}, switcher.activated)
}

func TestMiddlingSampleHolds(t *testing.T) {
	ctrl, source, switcher := newTestController()
	source.ok = true
	// Between both threshold sets: neither upgrade nor downgrade.
	source.sample = Sample{LossPercent: 3.0, RTT: 100 * time.Millisecond, Bandwidth: 3_000_000}

	ctrl.Evaluate()
	assert.Empty(t, switcher.activated)
	assert.Equal(t, "1080p", ctrl.Current().Name)
}

func TestNeverStepsAboveTop(t *testing.T) {
	ctrl, source, switcher := newTestController()
	source.ok = true
	source.sample = goodSample()

	ctrl.Evaluate()
	assert.Empty(t, switcher.activated)
	assert.Equal(t, "1080p", ctrl.Current().Name)
}
