package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/utils"
	"os"
	"time"
)

const (
	StorageMongoDB = "mongodb"
	StorageMemory  = "memory"
)

type Config struct {
	Database struct {
		Host               string `json:"host"`
		Port               uint64 `json:"port"`
		Username           string `json:"username"`
		Password           string `json:"password"`
		Database           string `json:"database"`
		Collection         string `json:"collection"`
		UseTLS             bool   `json:"use_tls"`
		ConnectTimeout     string `json:"connect_timeout"`
		SocketTimeout      string `json:"socket_timeout"`
		ConnectIdleTimeout string `json:"connect_idle_timeout"`
		OperationTimeout   string `json:"operation_timeout"`
		Heartbeat          string `json:"heartbeat"`
		MinPoolSize        uint64 `json:"min_pool_size"`
		MaxPoolSize        uint64 `json:"max_pool_size"`
	} `json:"database"`
	Storage string `json:"storage"`
	Collab  struct {
		DebounceWindow      string `json:"debounce_window"`
		StatusClearDelay    string `json:"status_clear_delay"`
		AnnounceOnJoin      bool   `json:"announce_on_join"`
		ReleaseOnDisconnect bool   `json:"release_on_disconnect"`
		QueueSize           int    `json:"queue_size"`
	} `json:"collab"`
	Purge struct {
		Interval string `json:"interval"`
		MaxAge   string `json:"max_age"`
	} `json:"purge"`
	Cache struct {
		Size int    `json:"size"`
		TTL  string `json:"ttl"`
	} `json:"cache"`
	MaxConnections int    `json:"max_connections"`
	DebugMode      bool   `json:"debug_mode"`
	LogPath        string `json:"log_path"`
	AppName        string `json:"app_name"`
	AppPort        int    `json:"app_port"`
}

// Path is the config file location; the CLI overrides it with --config.
var Path = "config.json"

var config Config
var initialized = false

func Default() Config {
	var c Config
	c.Database.Host = "localhost"
	c.Database.Port = 27017
	c.Database.Database = "coedit"
	c.Database.Collection = "documents"
	c.Database.ConnectTimeout = "10s"
	c.Database.SocketTimeout = "30s"
	c.Database.ConnectIdleTimeout = "5m"
	c.Database.OperationTimeout = "5s"
	c.Database.Heartbeat = "10s"
	c.Database.MinPoolSize = 1
	c.Database.MaxPoolSize = 20
	c.Storage = StorageMongoDB
	c.Collab.DebounceWindow = "1000ms"
	c.Collab.StatusClearDelay = "1500ms"
	c.Collab.QueueSize = 1024
	c.Purge.Interval = "24h"
	c.Purge.MaxAge = "365d"
	c.Cache.Size = 256
	c.Cache.TTL = "10m"
	c.MaxConnections = 10000
	c.LogPath = "logs"
	c.AppName = "coedit"
	c.AppPort = 3000
	return c
}

func ReadConfig() (Config, error) {
	bytes, err := os.ReadFile(Path)

	if err != nil {
		config = Default()
		data, _ := json.MarshalIndent(config, "", "\t")
		_ = os.WriteFile(Path, data, 0644)
		return config, errors.New("the configuration file does not exist and has been created. Please try again after editing the configuration file")
	}

	config = Default()
	err = json.Unmarshal(bytes, &config)

	if err != nil {
		return config, errors.New("the configuration file does not contain valid JSON")
	}

	if err = config.Validate(); err != nil {
		return config, fmt.Errorf("invalid configuration: %w", err)
	}

	initialized = true
	return config, nil
}

func GetConfig() (Config, error) {
	if initialized {
		return config, nil
	}
	return ReadConfig()
}

func (c Config) Validate() error {
	durations := map[string]string{
		"database.operation_timeout": c.Database.OperationTimeout,
		"collab.debounce_window":     c.Collab.DebounceWindow,
		"collab.status_clear_delay":  c.Collab.StatusClearDelay,
		"purge.interval":             c.Purge.Interval,
		"purge.max_age":              c.Purge.MaxAge,
		"cache.ttl":                  c.Cache.TTL,
	}
	for key, value := range durations {
		d, err := utils.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", key, value)
		}
	}
	if c.StatusClearDelay() <= c.DebounceWindow() {
		return fmt.Errorf("collab.status_clear_delay (%s) must exceed collab.debounce_window (%s)",
			c.Collab.StatusClearDelay, c.Collab.DebounceWindow)
	}
	switch c.Storage {
	case StorageMongoDB, StorageMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}
	return nil
}

func (c Config) DebounceWindow() time.Duration {
	return utils.ParseStringTime(c.Collab.DebounceWindow)
}

func (c Config) StatusClearDelay() time.Duration {
	return utils.ParseStringTime(c.Collab.StatusClearDelay)
}

func (c Config) OperationTimeout() time.Duration {
	return utils.ParseStringTime(c.Database.OperationTimeout)
}

func (c Config) PurgeInterval() time.Duration {
	return utils.ParseStringTime(c.Purge.Interval)
}

func (c Config) PurgeMaxAge() time.Duration {
	return utils.ParseStringTime(c.Purge.MaxAge)
}

func (c Config) CacheTTL() time.Duration {
	return utils.ParseStringTime(c.Cache.TTL)
}
