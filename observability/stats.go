// Package observability aggregates internal counters for the relay engine.
// Media-ingestion errors are never surfaced to clients; these counters are
// their only visible trace.
package observability

import "sync/atomic"

// RelayStats is safe for concurrent use by every service goroutine.
type RelayStats struct {
	MalformedPackets   atomic.Uint64
	StaleFrames        atomic.Uint64
	DroppedAudioFrames atomic.Uint64
	AudioFramesMixed   atomic.Uint64
	MixTicks           atomic.Uint64
	VideoFramesRelayed atomic.Uint64
	ScreenFramesSent   atomic.Uint64
	Evictions          atomic.Uint64
	SlowClientDrops    atomic.Uint64
}

func NewRelayStats() *RelayStats {
	return &RelayStats{}
}

// StatsSnapshot is a point-in-time copy for reporting and telemetry logs.
type StatsSnapshot struct {
	MalformedPackets   uint64 `json:"malformed_packets"`
	StaleFrames        uint64 `json:"stale_frames"`
	DroppedAudioFrames uint64 `json:"dropped_audio_frames"`
	AudioFramesMixed   uint64 `json:"audio_frames_mixed"`
	MixTicks           uint64 `json:"mix_ticks"`
	VideoFramesRelayed uint64 `json:"video_frames_relayed"`
	ScreenFramesSent   uint64 `json:"screen_frames_sent"`
	Evictions          uint64 `json:"evictions"`
	SlowClientDrops    uint64 `json:"slow_client_drops"`
}

func (s *RelayStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		MalformedPackets:   s.MalformedPackets.Load(),
		StaleFrames:        s.StaleFrames.Load(),
		DroppedAudioFrames: s.DroppedAudioFrames.Load(),
		AudioFramesMixed:   s.AudioFramesMixed.Load(),
		MixTicks:           s.MixTicks.Load(),
		VideoFramesRelayed: s.VideoFramesRelayed.Load(),
		ScreenFramesSent:   s.ScreenFramesSent.Load(),
		Evictions:          s.Evictions.Load(),
		SlowClientDrops:    s.SlowClientDrops.Load(),
	}
}
