package bitrate

import (
	"context"
	"sync"
	"time"

	"github.com/austinromano/creator.v3/internal/core/domain"

	"go.uber.org/zap"
)

// Hysteresis thresholds. Degrade fast, upgrade only when everything looks
// healthy at once.
const (
	downgradeLossPercent = 5.0
	downgradeRTT         = 200 * time.Millisecond

	upgradeLossPercent = 1.0
	upgradeRTT         = 50 * time.Millisecond
	upgradeBandwidth   = 2_000_000 // bps
)

// Sample is one reading of the outbound transport's health.
type Sample struct {
	LossPercent float64
	RTT         time.Duration
	Bandwidth   int // bps, sender-side estimate
}

// StatsSource supplies transport statistics. ok is false until the first
// report arrives; the controller holds until then.
type StatsSource interface {
	Sample() (Sample, bool)
}

// TierSwitcher applies a quality switch: enable the target tier, disable
// every other one.
type TierSwitcher interface {
	Activate(profile domain.EncodingProfile) error
}

// Controller adjusts outbound quality one tier at a time from periodic
// transport statistics. It runs only on an established broadcaster-side
// connection. No adjustment is applied more often than the sampling
// interval, which is what prevents oscillation.
type Controller struct {
	ladder   []domain.EncodingProfile
	source   StatsSource
	switcher TierSwitcher
	interval time.Duration
	logger   *zap.SugaredLogger

	mu         sync.Mutex
	current    int
	lastSwitch time.Time
}

// NewController starts at the top of the ladder; the first bad sample walks
// it down.
func NewController(
	ladder []domain.EncodingProfile,
	interval time.Duration,
	source StatsSource,
	switcher TierSwitcher,
	logger *zap.SugaredLogger,
) *Controller {
	return &Controller{
		ladder:   ladder,
		source:   source,
		switcher: switcher,
		interval: interval,
		logger:   logger,
		current:  len(ladder) - 1,
	}
}

// Run polls until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Evaluate()
		}
	}
}

// Evaluate takes one sample and applies at most one tier move.
func (c *Controller) Evaluate() {
	sample, ok := c.source.Sample()
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.decide(sample)
	if target == c.current {
		return
	}
	if time.Since(c.lastSwitch) < c.interval {
		return
	}

	profile := c.ladder[target]
	if err := c.switcher.Activate(profile); err != nil {
		c.logger.Warnw("failed to switch encoding tier",
			"target", profile.Name,
			"error", err,
		)
		return
	}

	c.logger.Infow("encoding tier switched",
		"from", c.ladder[c.current].Name,
		"to", profile.Name,
		"loss_percent", sample.LossPercent,
		"rtt", sample.RTT,
		"bandwidth_bps", sample.Bandwidth,
	)
	c.current = target
	c.lastSwitch = time.Now()
}

// Current returns the active profile.
func (c *Controller) Current() domain.EncodingProfile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ladder[c.current]
}

// callers must hold c.mu
func (c *Controller) decide(s Sample) int {
	if s.LossPercent > downgradeLossPercent || s.RTT > downgradeRTT {
		if c.current > 0 {
			return c.current - 1
		}
		return c.current
	}
	if s.LossPercent < upgradeLossPercent && s.RTT < upgradeRTT && s.Bandwidth > upgradeBandwidth {
		if c.current < len(c.ladder)-1 {
			return c.current + 1
		}
	}
	return c.current
}
