package internal

import "time"

// Config is loaded from the environment. Ports default to the well-known
// values clients assume on a fresh LAN deployment; everything else defaults
// to values that work for a handful of participants on one switch.
type Config struct {
	Host        string `env:"HOST,default=0.0.0.0"`
	ControlPort int    `env:"CONTROL_PORT,default=55000"`
	ScreenPort  int    `env:"SCREEN_PORT,default=55010"`
	VideoPort   int    `env:"VIDEO_PORT,default=56000"`
	AudioPort   int    `env:"AUDIO_PORT,default=56010"`
	LatencyPort int    `env:"LATENCY_PORT,default=56020"`

	LogLevel       string `env:"LOG_LEVEL,default=INFO"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`

	PreSharedKey     string        `env:"PRE_SHARED_KEY"`
	ChatHistoryLimit int           `env:"CHAT_HISTORY_LIMIT,default=50"`
	SendBufferSize   int           `env:"SEND_BUFFER_SIZE,default=256"`
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT,default=10s"`

	HeartbeatSweep   time.Duration `env:"HEARTBEAT_SWEEP,default=5s"`
	HeartbeatTimeout time.Duration `env:"HEARTBEAT_TIMEOUT,default=15s"`

	MixInterval       time.Duration `env:"MIX_INTERVAL,default=20ms"`
	JitterDepth       int           `env:"JITTER_DEPTH,default=8"`
	ScreenIdleTimeout time.Duration `env:"SCREEN_IDLE_TIMEOUT,default=10s"`

	TelemetryInterval time.Duration `env:"TELEMETRY_INTERVAL,default=30s"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=200ms"`
}
