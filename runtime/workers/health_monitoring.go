package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// BrokerStats exposes the broker gauges the monitor reports alongside
// process metrics.
type BrokerStats interface {
	Gauges() (rooms, members, connections int)
}

// HealthMonitorWorker periodically logs the broker's own process metrics
// (CPU, RSS, status) together with room/connection gauges. Observation
// only; it never touches broker state.
type HealthMonitorWorker struct {
	log            *slog.Logger
	stats          BrokerStats
	metricInterval time.Duration
}

func NewHealthMonitorWorker(log *slog.Logger, stats BrokerStats, metricInterval time.Duration) *HealthMonitorWorker {
	return &HealthMonitorWorker{log: log, stats: stats, metricInterval: metricInterval}
}

func (w *HealthMonitorWorker) Run(ctx context.Context) error {
	w.log.Info("Starting broker health monitor")
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitor")
			return nil
		case <-ticker.C:
			rss, cpu, status, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}
			rooms, members, connections := w.stats.Gauges()
			w.log.Info("broker health",
				"status", status,
				"cpu_percent", cpu,
				"rss_bytes", rss,
				"rooms", rooms,
				"members", members,
				"connections", connections)
		}
	}
}

// selfStats retrieves memory, CPU and OS status for the given process.
func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}
	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
