package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	_ "github.com/shirou/gopsutil"
	"github.com/shirou/gopsutil/process"

	"lanmeet/observability"
	"lanmeet/session"
)

// Telemetry logs a periodic health line: relay counters, participant count
// and the server's own CPU and memory usage.
type Telemetry struct {
	log      *slog.Logger
	registry *session.Registry
	stats    *observability.RelayStats
	interval time.Duration
}

func NewTelemetry(log *slog.Logger, registry *session.Registry,
	stats *observability.RelayStats, interval time.Duration) *Telemetry {
	return &Telemetry{log: log, registry: registry, stats: stats, interval: interval}
}

func (t *Telemetry) Run(ctx context.Context) error {
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		t.log.Error("Cannot track own process, telemetry disabled", "err", err)
		return nil
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.report(self)
		}
	}
}

func (t *Telemetry) report(self *process.Process) {
	snap := t.stats.Snapshot()
	attrs := []any{
		"participants", t.registry.Count(),
		"mix_ticks", snap.MixTicks,
		"audio_frames_mixed", snap.AudioFramesMixed,
		"dropped_audio_frames", snap.DroppedAudioFrames,
		"video_frames_relayed", snap.VideoFramesRelayed,
		"screen_frames_sent", snap.ScreenFramesSent,
		"malformed_packets", snap.MalformedPackets,
		"stale_frames", snap.StaleFrames,
		"slow_client_drops", snap.SlowClientDrops,
		"evictions", snap.Evictions,
	}
	if cpu, err := self.CPUPercent(); err == nil {
		attrs = append(attrs, "cpu_percent", cpu)
	}
	if ram, err := self.MemoryPercent(); err == nil {
		attrs = append(attrs, "ram_percent", ram)
	}
	t.log.Info("Relay health", attrs...)
}
