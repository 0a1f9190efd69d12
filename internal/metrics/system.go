package metrics

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

// SystemTracker samples host-level CPU, memory and disk usage.
type SystemTracker struct {
	startTime time.Time
	dataDir   string
}

// NewSystemTracker creates a tracker rooted at the service data directory.
func NewSystemTracker(dataDir string) *SystemTracker {
	return &SystemTracker{
		startTime: time.Now(),
		dataDir:   dataDir,
	}
}

// Uptime returns seconds since the tracker was created.
func (st *SystemTracker) Uptime() int64 {
	return int64(time.Since(st.startTime).Seconds())
}

// CPUUsage returns current CPU usage percentage.
func (st *SystemTracker) CPUUsage() (float64, error) {
	percentages, err := cpu.Percent(time.Second, false)
	if err != nil || len(percentages) == 0 {
		return 0.0, err
	}
	return percentages[0], nil
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	UsedPercent float64 `json:"used_percent"`
	UsedBytes   uint64  `json:"used_bytes"`
	TotalBytes  uint64  `json:"total_bytes"`
}

// MemoryUsage returns current memory usage statistics.
func (st *SystemTracker) MemoryUsage() (*MemoryStats, error) {
	memInfo, err := mem.VirtualMemory()
	if err != nil {
		return nil, err
	}

	return &MemoryStats{
		UsedPercent: memInfo.UsedPercent,
		UsedBytes:   memInfo.Used,
		TotalBytes:  memInfo.Total,
	}, nil
}

// DiskStats represents disk usage statistics for the data directory
type DiskStats struct {
	UsedPercent float64 `json:"used_percent"`
	UsedBytes   uint64  `json:"used_bytes"`
	TotalBytes  uint64  `json:"total_bytes"`
}

// DiskUsage returns disk usage statistics for the data directory.
func (st *SystemTracker) DiskUsage() (*DiskStats, error) {
	diskInfo, err := disk.Usage(st.dataDir)
	if err != nil {
		return nil, err
	}

	return &DiskStats{
		UsedPercent: diskInfo.UsedPercent,
		UsedBytes:   diskInfo.Used,
		TotalBytes:  diskInfo.Total,
	}, nil
}

// RunCollector periodically samples system usage into the manager until the
// context is cancelled.
func (st *SystemTracker) RunCollector(ctx context.Context, manager Manager, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	log := logrus.WithField("component", "system-metrics")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cpuUsage, err := st.CPUUsage()
			if err != nil {
				log.WithError(err).Debug("Failed to sample CPU usage")
				continue
			}
			memStats, err := st.MemoryUsage()
			if err != nil {
				log.WithError(err).Debug("Failed to sample memory usage")
				continue
			}
			manager.UpdateSystemMetrics(cpuUsage, memStats.UsedPercent)
		}
	}
}
