package observability

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMonitoringManager_Record(t *testing.T) {
	req := require.New(t)
	mm := NewMonitoringManager(slog.Default())

	// Given no sample yet
	req.True(mm.GetLatest().SampledAt.IsZero())

	// When the health worker records a sample
	mm.Record(42, "R", 12.5, 1<<20)

	// Then the latest stats reflect it
	stats := mm.GetLatest()
	req.Equal(int32(42), stats.PID)
	req.Equal("R", stats.PidStatus)
	req.Equal(12.5, stats.CpuPercent)
	req.Equal(uint64(1<<20), stats.RamBytes)
	req.Positive(stats.Goroutines)
	req.False(stats.SampledAt.IsZero())
}
