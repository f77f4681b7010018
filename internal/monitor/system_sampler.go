package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/oddsflow/collector/internal/model"
)

// SystemSampler periodically samples host CPU and memory usage so
// health reports can carry a resource snapshot next to source health.
type SystemSampler struct {
	logger   *zap.Logger
	interval time.Duration

	mu    sync.RWMutex
	stats model.SystemStats
	stop  chan struct{}
}

// NewSystemSampler creates a sampler collecting at the given interval
func NewSystemSampler(interval time.Duration, logger *zap.Logger) *SystemSampler {
	return &SystemSampler{
		logger:   logger.Named("system-sampler"),
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start starts the sampling loop
func (s *SystemSampler) Start(ctx context.Context) error {
	s.logger.Info("Starting system sampler", zap.Duration("interval", s.interval))
	go s.sampleLoop(ctx)
	return nil
}

// Stop stops the sampling loop
func (s *SystemSampler) Stop() {
	s.logger.Info("Stopping system sampler")
	close(s.stop)
}

// Snapshot implements ResourceProvider. It returns nil until the first
// sample has been collected.
func (s *SystemSampler) Snapshot() *model.SystemStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stats.CollectedAt.IsZero() {
		return nil
	}
	stats := s.stats
	return &stats
}

// sampleLoop runs the sampling loop
func (s *SystemSampler) sampleLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

// sample collects one CPU and memory reading
func (s *SystemSampler) sample() {
	cpuPercent, err := cpu.Percent(time.Second, false)
	if err != nil {
		s.logger.Error("Failed to get CPU usage", zap.Error(err))
		return
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		s.logger.Error("Failed to get memory usage", zap.Error(err))
		return
	}

	s.mu.Lock()
	if len(cpuPercent) > 0 {
		s.stats.CPUUsage = cpuPercent[0]
	}
	s.stats.MemoryUsage = memInfo.UsedPercent
	s.stats.CollectedAt = time.Now()
	s.mu.Unlock()

	s.logger.Debug("Resource stats collected",
		zap.Float64("cpu_usage", s.stats.CPUUsage),
		zap.Float64("memory_usage", s.stats.MemoryUsage))
}
