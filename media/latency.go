package media

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	"lanmeet/observability"
)

// latencyProbe is the JSON datagram a client sends to measure round-trip
// time; unknown fields are echoed back untouched.
type latencyProbe struct {
	TimestampMs  int64  `json:"timestamp_ms"`
	Username     string `json:"username,omitempty"`
	Sequence     *int64 `json:"sequence,omitempty"`
	Echo         string `json:"echo,omitempty"`
	PreSharedKey string `json:"pre_shared_key,omitempty"`
}

type latencyReply struct {
	TimestampMs       int64  `json:"timestamp_ms"`
	ServerTimestampMs int64  `json:"server_timestamp_ms"`
	Username          string `json:"username,omitempty"`
	Sequence          *int64 `json:"sequence,omitempty"`
	Echo              string `json:"echo,omitempty"`
}

// LatencyServer answers UDP latency probes so clients can report latency and
// jitter on the control plane.
type LatencyServer struct {
	log          *slog.Logger
	stats        *observability.RelayStats
	preSharedKey string

	conn *net.UDPConn
}

func NewLatencyServer(log *slog.Logger, stats *observability.RelayStats, preSharedKey string) *LatencyServer {
	return &LatencyServer{log: log, stats: stats, preSharedKey: preSharedKey}
}

func (s *LatencyServer) Listen(host string, port int) error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(host), Port: port})
	if err != nil {
		return fmt.Errorf("latency listen %s:%d: %w", host, port, err)
	}
	s.conn = conn
	s.log.Info("Latency server listening", "addr", conn.LocalAddr().String())
	return nil
}

func (s *LatencyServer) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.conn.Close()
	}()

	buf := make([]byte, 2048)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("latency read: %w", err)
		}

		var probe latencyProbe
		if err := json.Unmarshal(buf[:n], &probe); err != nil {
			s.stats.MalformedPackets.Add(1)
			continue
		}
		if s.preSharedKey != "" &&
			subtle.ConstantTimeCompare([]byte(probe.PreSharedKey), []byte(s.preSharedKey)) != 1 {
			s.log.Warn("Latency probe rejected, invalid key", "addr", addr.String())
			continue
		}

		reply, err := json.Marshal(latencyReply{
			TimestampMs:       probe.TimestampMs,
			ServerTimestampMs: time.Now().UnixMilli(),
			Username:          probe.Username,
			Sequence:          probe.Sequence,
			Echo:              probe.Echo,
		})
		if err != nil {
			continue
		}
		if _, err := s.conn.WriteToUDP(reply, addr); err != nil {
			s.log.Warn("Failed to answer latency probe", "addr", addr.String(), "err", err)
		}
	}
}
