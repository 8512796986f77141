// Package config handles YAML config file loading for the resource
// driver core, modeled directly on the teacher's cli/config package.
package config

import (
	"fmt"
	"time"
)

// Config represents a resourcedriver.yaml configuration file. All
// values are optional; Defaults fills in the documented defaults
// (spec §6) for anything left zero. No CLI flag overrides a
// config-file value; the CLI only selects the file (--config).
type Config struct {
	ScriptsWorkspace      string                      `yaml:"scripts_workspace"`
	AsyncMessagingEnabled *bool                       `yaml:"async_messaging_enabled"`
	LifecycleRequestQueue LifecycleRequestQueueConfig `yaml:"lifecycle_request_queue"`
	HTTP                  HTTPConfig                  `yaml:"http"`
	Bus                   BusConfig                   `yaml:"bus"`
	Archive               ArchiveConfig               `yaml:"archive"`
	Handler               HandlerConfig               `yaml:"handler"`
}

// HandlerConfig selects driver.Service's dispatch behavior (spec
// §4.5's async_requests_enabled matrix: the other half, whether a
// synchronous call schedules monitoring, is the top-level
// async_messaging_enabled flag) and the subprocess driver plugin to run.
type HandlerConfig struct {
	// AsyncRequestsEnabled mirrors LifecycleRequestQueue.Enabled: when
	// true every request is enqueued onto C4 instead of dispatched
	// inline. Kept as its own field (rather than reusing
	// LifecycleRequestQueue.Enabled directly) because the spec treats
	// them as independently named flags.
	AsyncRequestsEnabled bool `yaml:"async_requests_enabled"`
	// Command is the driver plugin executable (handler/subprocess).
	Command string `yaml:"command"`
	// Args are extra arguments passed to Command.
	Args []string `yaml:"args"`
}

// LifecycleRequestQueueConfig configures C4, the optional async request
// queue consumer.
type LifecycleRequestQueueConfig struct {
	Enabled           bool   `yaml:"enabled"`
	GroupID           string `yaml:"group_id"`
	MaxPollIntervalMs int    `yaml:"max_poll_interval_ms"`
}

// HTTPConfig configures the HTTP surface.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// BusConfig selects and configures the message bus backend. Backend is
// "redis" or "local"; local requires no further configuration and is
// the default so the core runs out of the box without Redis.
type BusConfig struct {
	Backend         string `yaml:"backend"`
	RedisURL        string `yaml:"redis_url"`
	RequestTopic    string `yaml:"request_topic"`
	FailedTopic     string `yaml:"failed_topic"`
	CompletionTopic string `yaml:"completion_topic"`
	JobQueueTopic   string `yaml:"job_queue_topic"`
}

// ArchiveConfig configures the optional S3 archival janitor
// (spec §9 "Open question — workspace cleanup"). Bucket empty disables
// archival entirely.
type ArchiveConfig struct {
	Bucket        string   `yaml:"bucket"`
	Prefix        string   `yaml:"prefix"`
	Region        string   `yaml:"region"`
	Endpoint      string   `yaml:"endpoint"`
	S3PathStyle   bool     `yaml:"s3_path_style"`
	SweepInterval Duration `yaml:"sweep_interval"`
	TTL           Duration `yaml:"ttl"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Defaults fills in spec §6's documented defaults for any field left
// at its zero value, returning a new Config.
func (c Config) Defaults() Config {
	if c.ScriptsWorkspace == "" {
		c.ScriptsWorkspace = "./scripts_workspace"
	}
	if c.AsyncMessagingEnabled == nil {
		enabled := true
		c.AsyncMessagingEnabled = &enabled
	}
	if c.LifecycleRequestQueue.GroupID == "" {
		c.LifecycleRequestQueue.GroupID = "request_queue_consumer"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Bus.Backend == "" {
		c.Bus.Backend = "local"
	}
	if c.Bus.RequestTopic == "" {
		c.Bus.RequestTopic = "lifecycle.requests"
	}
	if c.Bus.FailedTopic == "" {
		c.Bus.FailedTopic = "lifecycle.requests.failed"
	}
	if c.Bus.CompletionTopic == "" {
		c.Bus.CompletionTopic = "lifecycle.events"
	}
	if c.Bus.JobQueueTopic == "" {
		c.Bus.JobQueueTopic = "lifecycle.monitor_jobs"
	}
	if c.Archive.SweepInterval.Duration == 0 {
		c.Archive.SweepInterval = Duration{5 * time.Minute}
	}
	if c.Archive.TTL.Duration == 0 {
		c.Archive.TTL = Duration{time.Hour}
	}
	return c
}

// AsyncMessagingEnabledOrDefault reports the effective value of
// AsyncMessagingEnabled, defaulting to true (spec §6) when unset.
func (c Config) AsyncMessagingEnabledOrDefault() bool {
	if c.AsyncMessagingEnabled == nil {
		return true
	}
	return *c.AsyncMessagingEnabled
}
