package config

import (
	"os"
	"time"

	"actorsub/internal/errs"
	"actorsub/internal/iface"
	"actorsub/pkg/glog"

	"gopkg.in/yaml.v3"
)

// Config is the worker process's static configuration, loaded once at
// startup. None of it is hot-reloaded.
type Config struct {
	// Glog is the structured logging configuration.
	Glog glog.Config `yaml:"glog"`

	// Submitter covers the actor task submitter's own tunables.
	Submitter SubmitterConfig `yaml:"submitter"`

	// Directory configures the Redis-backed actor directory.
	Directory DirectoryConfig `yaml:"directory"`

	// Transport configures the gnet-backed rpc client pool.
	Transport TransportConfig `yaml:"transport"`
}

// SubmitterConfig covers the tunables spec.md §5 and §7 leave to the
// deployment rather than hard-coding into the submitter itself.
type SubmitterConfig struct {
	// DeathInfoTimeout is the grace period a task waits, stashed, for
	// authoritative death-cause information to arrive before it is
	// failed with whatever cause is known. Zero means fail immediately.
	DeathInfoTimeout time.Duration `yaml:"deathInfoTimeout"`

	// CancelRetryIntervals holds two fixed, non-backoff delays: [0] before
	// CancelTask retries when the actor has no rpc client yet (1000ms), [1]
	// before it resends an unacknowledged CancelTaskRequest (2000ms).
	CancelRetryIntervals []time.Duration `yaml:"cancelRetryIntervals"`

	// ExecutorThroughput bounds how many posted closures the executor
	// drains before yielding the goroutine back to the scheduler.
	ExecutorThroughput int `yaml:"executorThroughput"`

	// BackpressureWarnThreshold is loaded and defaulted here but is not
	// passed to the submitter: its backpressure warning starts at each actor
	// queue's max_pending_calls and doubles each time it is hit again.
	BackpressureWarnThreshold int `yaml:"backpressureWarnThreshold"`
}

// DirectoryConfig points at the shared actor directory backing store.
type DirectoryConfig struct {
	RedisAddr     string `yaml:"redisAddr"`
	RedisDB       int    `yaml:"redisDb"`
	RedisPassword string `yaml:"redisPassword"`

	// PlacementStrategy names a constructor registered in
	// directory.Placements; empty means this process can neither create
	// nor lineage-restart actors (both go through the placer) and only
	// reports out-of-scope actors.
	PlacementStrategy string          `yaml:"placementStrategy"`
	StaticWorkers     []iface.Address `yaml:"staticWorkers"`
}

// TransportConfig points at the rpc client pool's listening conventions.
type TransportConfig struct {
	DialTimeout time.Duration `yaml:"dialTimeout"`
	WorkerPool  int           `yaml:"workerPool"`
}

// Load reads and parses a YAML config file, falling back to Default for
// any field the file omits.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.ErrReadConfigFileFailed(err)
	}
	cfg := Default()
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, errs.ErrUnmarshalConfigFailed(err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is supplied, and the
// baseline Load starts from before applying a loaded override.
func Default() *Config {
	return &Config{
		Glog: glog.Config{
			Path:         "./logs/worker.log",
			Level:        "info",
			PrintConsole: true,
			File: glog.FileConfig{
				MaxSize:    500,
				MaxBackups: 100,
				MaxAge:     30,
				Compress:   false,
				LocalTime:  true,
			},
		},
		Submitter: SubmitterConfig{
			DeathInfoTimeout:          0,
			CancelRetryIntervals:      []time.Duration{1000 * time.Millisecond, 2000 * time.Millisecond},
			ExecutorThroughput:        256,
			BackpressureWarnThreshold: 5000,
		},
		Directory: DirectoryConfig{
			RedisAddr: "127.0.0.1:6379",
			RedisDB:   0,
		},
		Transport: TransportConfig{
			DialTimeout: 5 * time.Second,
			WorkerPool:  64,
		},
	}
}
