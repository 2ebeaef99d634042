package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the top-level adlens configuration.
type fileConfig struct {
	Server  serverConfig  `yaml:"server"`
	Store   storeConfig   `yaml:"store"`
	Cache   cacheConfig   `yaml:"cache"`
	Scraper scraperConfig `yaml:"scraper"`
	Harvest harvestConfig `yaml:"harvest"`
	Queue   queueConfig   `yaml:"queue"`
	Notify  notifyConfig  `yaml:"notify"`
}

type serverConfig struct {
	Port string `yaml:"port"`
}

// storeConfig selects the cache backend.
type storeConfig struct {
	Backend string        `yaml:"backend"` // memory | sqlite | redis
	Path    string        `yaml:"path"`    // sqlite file
	URL     string        `yaml:"url"`     // redis URL
	TTL     time.Duration `yaml:"ttl"`     // redis key expiry
}

type cacheConfig struct {
	Freshness time.Duration `yaml:"freshness"`
}

type scraperConfig struct {
	Engine        string        `yaml:"engine"` // browser | http
	URLTemplate   string        `yaml:"url_template"`
	RemoteBrowser string        `yaml:"remote_browser"` // external Chrome WebSocket URL
	Timeout       time.Duration `yaml:"timeout"`        // http engine request timeout
}

type harvestConfig struct {
	MaxAdsPerKeyword int           `yaml:"max_ads_per_keyword"`
	SearchDelay      time.Duration `yaml:"search_delay"`
	SearchTimeout    time.Duration `yaml:"search_timeout"`
}

type queueConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
}

type notifyConfig struct {
	Webhook string `yaml:"webhook"`
}

// loadConfig reads a YAML configuration file. An empty path yields the
// defaults.
func loadConfig(path string) (*fileConfig, error) {
	var cfg fileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *fileConfig) applyDefaults() error {
	if c.Server.Port == "" {
		c.Server.Port = "8086"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	switch c.Store.Backend {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Path == "" {
		c.Store.Path = "db/adlens.db"
	}
	switch c.Scraper.Engine {
	case "":
		c.Scraper.Engine = "browser"
	case "browser", "http":
	default:
		return fmt.Errorf("unknown scraper engine %q", c.Scraper.Engine)
	}
	return nil
}
