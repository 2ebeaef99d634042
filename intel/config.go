package intel

import (
	"time"

	"github.com/adlens/adlens/harvest"
)

// Config configures the intelligence service.
type Config struct {
	// Freshness is how long a cached bundle is served without
	// recollection. Default: 7 days.
	Freshness time.Duration

	// Harvest settings passed through to the harvester.
	Harvest harvest.Config
}

func (c *Config) defaults() {
	if c.Freshness <= 0 {
		c.Freshness = 7 * 24 * time.Hour
	}
}
