package service

import (
	"context"
	"sync"
	"time"

	"github.com/dwellir-public/haproxy-collector/internal/ingest"
	"github.com/dwellir-public/haproxy-collector/internal/metrics"
	"github.com/dwellir-public/haproxy-collector/internal/topology"
	"github.com/dwellir-public/haproxy-collector/pkg/logger"
)

// TopologyResolver produces the resolved routing table for one pass
type TopologyResolver interface {
	Resolve(ctx context.Context) ([]topology.Entry, error)
}

// PassSummary describes the outcome of the most recent collection pass
type PassSummary struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Entries   int           `json:"entries"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// Collector runs collection passes: resolve the current topology, then hand
// the entries to the ingestor. A pass either fully succeeds or fully fails;
// nothing is persisted from a failed pass.
type Collector struct {
	resolver  TopologyResolver
	ingestor  ingest.Ingestor
	haproxyID int64
	logger    *logger.Logger

	mu       sync.RWMutex
	lastPass *PassSummary
}

// NewCollector creates a new collector
func NewCollector(resolver TopologyResolver, ingestor ingest.Ingestor, haproxyID int64, log *logger.Logger) *Collector {
	return &Collector{
		resolver:  resolver,
		ingestor:  ingestor,
		haproxyID: haproxyID,
		logger:    log,
	}
}

// Run executes one collection pass
func (c *Collector) Run(ctx context.Context) error {
	start := time.Now()

	entries, err := c.resolver.Resolve(ctx)
	if err == nil {
		err = c.ingestor.Ingest(ctx, c.haproxyID, entries)
	}

	duration := time.Since(start)
	summary := PassSummary{
		StartedAt: start.UTC(),
		Duration:  duration,
		Entries:   len(entries),
		Success:   err == nil,
	}

	if err != nil {
		summary.Error = err.Error()
		summary.Entries = 0
		metrics.PassesTotal.WithLabelValues("failure").Inc()
		c.logger.WithError(err).WithField("duration", duration.String()).Error("Collection pass failed")
	} else {
		metrics.PassesTotal.WithLabelValues("success").Inc()
		metrics.LastPassEntries.Set(float64(len(entries)))
		metrics.PassDuration.Observe(duration.Seconds())
		c.logger.WithFields(map[string]interface{}{
			"entries":  len(entries),
			"duration": duration.String(),
		}).Info("Collection pass completed")
	}

	c.mu.Lock()
	c.lastPass = &summary
	c.mu.Unlock()

	return err
}

// RunLoop runs collection passes on a fixed interval until the context is
// cancelled. A failed pass is logged and retried on the next tick.
func (c *Collector) RunLoop(ctx context.Context, interval time.Duration) error {
	if err := c.Run(ctx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.Run(ctx); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// LastPass returns the summary of the most recent pass, if any
func (c *Collector) LastPass() (PassSummary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.lastPass == nil {
		return PassSummary{}, false
	}
	return *c.lastPass, true
}
