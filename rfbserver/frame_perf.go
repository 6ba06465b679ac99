package rfbserver

import (
	"time"

	"github.com/cyberinferno/vncmux/logger"
	"github.com/cyberinferno/vncmux/perfmonitor"
)

// framePerf times a single frame-clock tick (compare + fan-out writes) and
// logs a warning when it runs past threshold, so a slow desktop backend or
// an oversized dirty region shows up in the logs instead of just missing
// its frame deadline silently.
type framePerf struct {
	mon       *perfmonitor.PerformanceMonitor
	threshold time.Duration
	log       logger.Logger
}

func newFramePerf(threshold time.Duration, log logger.Logger) *framePerf {
	return &framePerf{
		mon:       perfmonitor.NewPerformanceMonitor(),
		threshold: threshold,
		log:       log,
	}
}

func (f *framePerf) start() {
	f.mon.Start()
}

func (f *framePerf) stop() {
	f.mon.Stop()
	if f.threshold <= 0 {
		return
	}
	elapsed := time.Duration(f.mon.ElapsedMilliseconds() * float64(time.Millisecond))
	if elapsed > f.threshold {
		f.log.Warn("frame update took longer than threshold",
			logger.Field{Key: "elapsedMs", Value: f.mon.ElapsedMilliseconds()},
			logger.Field{Key: "thresholdMs", Value: f.threshold.Milliseconds()},
		)
	}
}
