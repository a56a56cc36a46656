package diskmanager

import (
	"sync/atomic"

	"github.com/tphakala/voicerec/internal/errors"
	"github.com/tphakala/voicerec/internal/logger"
)

// ErrInsufficientSpace is returned when the output filesystem is below the configured minimum
var ErrInsufficientSpace = errors.NewStd("insufficient free disk space")

// SpaceGuard watches free space in the output directory against a minimum.
// A low-space warning is logged once when space drops below the minimum and again only
// after it has recovered.
type SpaceGuard struct {
	dir       string
	minFreeMB uint64
	probe     func(string) (DiskSpaceInfo, error)
	low       atomic.Bool
	observer  UsageObserver
	log       logger.Logger
}

// UsageObserver receives every successful probe. becameLow is true only on the
// probe that crossed below the minimum.
type UsageObserver func(info DiskSpaceInfo, becameLow bool)

// NewSpaceGuard creates a guard for dir. A minimum of 0 disables all checks.
func NewSpaceGuard(dir string, minFreeMB int) *SpaceGuard {
	return &SpaceGuard{
		dir:       dir,
		minFreeMB: uint64(max(minFreeMB, 0)),
		probe:     GetDetailedDiskUsage,
		log:       GetLogger(),
	}
}

// SetObserver registers fn to receive probe results. Call before the first Check.
func (g *SpaceGuard) SetObserver(fn UsageObserver) {
	g.observer = fn
}

func (g *SpaceGuard) notify(info DiskSpaceInfo, becameLow bool) {
	if g.observer != nil {
		g.observer(info, becameLow)
	}
}

// Enabled reports whether a minimum is configured.
func (g *SpaceGuard) Enabled() bool {
	return g.minFreeMB > 0
}

// CheckStartup fails when free space is already below the minimum.
func (g *SpaceGuard) CheckStartup() error {
	if !g.Enabled() {
		return nil
	}
	info, err := g.probe(g.dir)
	if err != nil {
		return err
	}
	g.log.Debug("output disk usage",
		logger.String("path", g.dir),
		logger.Uint64("free_mb", info.FreeMB()),
		logger.Float64("used_percent", info.UsedPercent),
		logger.String("filesystem", info.Fstype))

	if info.FreeMB() < g.minFreeMB {
		g.notify(info, true)
		return errors.New(ErrInsufficientSpace).
			Component("diskmanager").
			Category(errors.CategoryDiskUsage).
			Context("path", g.dir).
			Context("free_mb", info.FreeMB()).
			Context("min_free_mb", g.minFreeMB).
			Build()
	}
	g.notify(info, false)
	return nil
}

// Check probes free space after a segment and reports whether it is below the minimum.
// Probe failures are logged and treated as enough space.
func (g *SpaceGuard) Check() (low bool) {
	if !g.Enabled() {
		return false
	}
	info, err := g.probe(g.dir)
	if err != nil {
		g.log.Debug("disk usage probe failed", logger.Error(err))
		return false
	}

	low = info.FreeMB() < g.minFreeMB
	prev := g.low.Swap(low)
	g.notify(info, low && !prev)
	switch {
	case low && !prev:
		g.log.Warn("output disk space low",
			logger.String("path", g.dir),
			logger.Uint64("free_mb", info.FreeMB()),
			logger.Uint64("min_free_mb", g.minFreeMB))
	case !low && prev:
		g.log.Info("output disk space recovered",
			logger.String("path", g.dir),
			logger.Uint64("free_mb", info.FreeMB()))
	}
	return low
}

// Low reports the result of the last Check.
func (g *SpaceGuard) Low() bool {
	return g.low.Load()
}
