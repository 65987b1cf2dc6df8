package observability

import (
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// MonitoringStats is the snapshot served on the stats endpoint.
type MonitoringStats struct {
	PID        int32     `json:"pid"`
	PidStatus  string    `json:"pid_status"`
	CpuPercent float64   `json:"cpu_percent"`
	RamBytes   uint64    `json:"ram_bytes"`
	AllocMemMb uint64    `json:"alloc_mem_mb"`
	NumGC      uint32    `json:"num_gc"`
	Goroutines int       `json:"goroutines"`
	SampledAt  time.Time `json:"sampled_at"`
}

// MonitoringManager keeps the latest process sample, fed by the health worker.
type MonitoringManager struct {
	log         *slog.Logger
	mu          sync.RWMutex
	latestStats MonitoringStats
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	return &MonitoringManager{log: log}
}

// Record stores a process sample and mirrors it into the Prometheus gauges.
func (mm *MonitoringManager) Record(pid int32, status string, cpu float64, rss uint64) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mm.mu.Lock()
	mm.latestStats = MonitoringStats{
		PID:        pid,
		PidStatus:  status,
		CpuPercent: cpu,
		RamBytes:   rss,
		AllocMemMb: m.Alloc / 1024 / 1024,
		NumGC:      m.NumGC,
		Goroutines: runtime.NumGoroutine(),
		SampledAt:  time.Now().UTC(),
	}
	stats := mm.latestStats
	mm.mu.Unlock()

	ProcessRSS.Set(float64(rss))
	ProcessCPU.Set(cpu)

	mm.log.Debug("Process stats updated",
		"cpu", stats.CpuPercent,
		"rss", stats.RamBytes,
		"goroutines", stats.Goroutines,
		"mem_mb", stats.AllocMemMb,
	)
}

func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.latestStats
}
