package metrics

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

const bytesPerGB = 1024 * 1024 * 1024

// SystemMetrics holds a system and process resource snapshot
type SystemMetrics struct {
	CPUPercent        float64 // System-wide CPU usage (0-100%)
	ProcessCPUPercent float64 // This process, per core (can exceed 100% on multi-core)
	ProcessRSSGB      float64 // Resident memory of this process
	MemoryUsedGB      float64
	MemoryTotalGB     float64
	MemoryPercent     float64
	Goroutines        int
	Timestamp         time.Time
}

// Collector periodically samples resource usage and logs it with a stage
// label, so long joins show where time and memory go.
type Collector struct {
	interval time.Duration
	logger   *zap.Logger
	proc     *process.Process

	mu          sync.RWMutex
	stage       string
	lastMetrics *SystemMetrics
}

// NewCollector creates a new metrics collector
func NewCollector(interval time.Duration, logger *zap.Logger) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}

	// Get handle to current process for CPU and RSS tracking
	proc, _ := process.NewProcess(int32(os.Getpid()))

	return &Collector{
		interval: interval,
		logger:   logger,
		proc:     proc,
	}
}

// SetStage labels subsequent samples with the running pipeline stage
func (c *Collector) SetStage(stage string) {
	c.mu.Lock()
	c.stage = stage
	c.mu.Unlock()
}

// Start begins periodic collection. Returns when ctx is cancelled.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// First sample primes the CPU counters
	c.Sample()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Metrics collection stopped")
			return
		case <-ticker.C:
			c.log(c.Sample())
		}
	}
}

// GetMetrics returns the last collected metrics
func (c *Collector) GetMetrics() *SystemMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastMetrics
}

// Sample gathers a snapshot. Unavailable readings are left at zero.
func (c *Collector) Sample() *SystemMetrics {
	m := &SystemMetrics{
		Timestamp:  time.Now(),
		Goroutines: runtime.NumGoroutine(),
	}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		m.CPUPercent = pct[0]
	}

	if c.proc != nil {
		if pct, err := c.proc.Percent(0); err == nil {
			m.ProcessCPUPercent = pct
		}
		if info, err := c.proc.MemoryInfo(); err == nil {
			m.ProcessRSSGB = float64(info.RSS) / bytesPerGB
		}
	}

	if vmem, err := mem.VirtualMemory(); err == nil {
		m.MemoryPercent = vmem.UsedPercent
		m.MemoryUsedGB = float64(vmem.Used) / bytesPerGB
		m.MemoryTotalGB = float64(vmem.Total) / bytesPerGB
	}

	c.mu.Lock()
	c.lastMetrics = m
	c.mu.Unlock()
	return m
}

func (c *Collector) log(m *SystemMetrics) {
	c.mu.RLock()
	stage := c.stage
	c.mu.RUnlock()

	c.logger.Info("System metrics",
		zap.String("stage", stage),
		zap.Float64("sys_cpu", m.CPUPercent),
		zap.Float64("proc_cpu", m.ProcessCPUPercent),
		zap.String("proc_rss", formatGB(m.ProcessRSSGB)),
		zap.Float64("mem_pct", m.MemoryPercent),
		zap.String("mem_used", formatGB(m.MemoryUsedGB)),
		zap.Int("goroutines", m.Goroutines),
	)
}

// formatGB formats gigabytes with one decimal place
func formatGB(gb float64) string {
	return fmt.Sprintf("%.1f GB", gb)
}
