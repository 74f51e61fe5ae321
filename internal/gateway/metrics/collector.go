package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultCollectInterval is the default sampling period
const DefaultCollectInterval = 10 * time.Second

// CountFunc returns the number of advertised sessions
type CountFunc func(ctx context.Context) (int, error)

// Collector periodically samples runtime and registry gauges
type Collector struct {
	metrics  *Metrics
	logger   *zap.Logger
	count    CountFunc
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCollector creates a collector; count may be nil
func NewCollector(metrics *Metrics, logger *zap.Logger, count CountFunc, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = DefaultCollectInterval
	}
	return &Collector{
		metrics:  metrics,
		logger:   logger,
		count:    count,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start starts sampling
func (c *Collector) Start() {
	go c.collectLoop()
	c.logger.Info("Metrics collector started")
}

// Stop stops sampling
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.logger.Info("Metrics collector stopped")
	})
}

func (c *Collector) collectLoop() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Collect()
		case <-c.stopCh:
			return
		}
	}
}

// Collect samples every gauge once
func (c *Collector) Collect() {
	numGoroutines := runtime.NumGoroutine()
	c.metrics.GoRoutines.Set(float64(numGoroutines))

	if c.count != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.interval)
		n, err := c.count(ctx)
		cancel()
		if err != nil {
			c.logger.Warn("failed to count advertisements", zap.Error(err))
		} else {
			c.metrics.Advertisements.Set(float64(n))
		}
	}

	c.logger.Debug("System metrics collected",
		zap.Int("goroutines", numGoroutines))
}
