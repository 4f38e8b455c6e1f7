package manager

import (
	"context"
	"time"

	"github.com/CCShambots/5907-scouting-api/pkg/metrics"
	"github.com/CCShambots/5907-scouting-api/pkg/types"
)

// Collector periodically refreshes the live-entity gauges from the
// storage manager
type Collector struct {
	manager *Manager
	stopCh  chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(mgr *Manager) *Collector {
	return &Collector{
		manager: mgr,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, kind := range types.DataTypes {
		live, err := c.manager.List(ctx, kind)
		if err != nil {
			continue
		}
		metrics.LiveEntities.WithLabelValues(string(kind)).Set(float64(len(live)))
	}
}
