package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `scripts_workspace: /var/lib/resourcedriver/scripts
async_messaging_enabled: false

lifecycle_request_queue:
  enabled: true
  group_id: custom_consumer
  max_poll_interval_ms: 30000

http:
  addr: :9090

bus:
  backend: redis
  redis_url: redis://localhost:6379/0
  request_topic: custom.requests
  failed_topic: custom.requests.failed
  completion_topic: custom.events

archive:
  bucket: my-bucket
  prefix: trees/
  region: us-east-1
  s3_path_style: true
  sweep_interval: 1m
  ttl: 2h
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "scripts_workspace", cfg.ScriptsWorkspace, "/var/lib/resourcedriver/scripts")
	if cfg.AsyncMessagingEnabledOrDefault() {
		t.Error("expected async_messaging_enabled=false to be honored")
	}

	if !cfg.LifecycleRequestQueue.Enabled {
		t.Error("expected lifecycle_request_queue.enabled=true")
	}
	assertEqual(t, "lifecycle_request_queue.group_id", cfg.LifecycleRequestQueue.GroupID, "custom_consumer")
	if cfg.LifecycleRequestQueue.MaxPollIntervalMs != 30000 {
		t.Errorf("expected max_poll_interval_ms=30000, got %d", cfg.LifecycleRequestQueue.MaxPollIntervalMs)
	}

	assertEqual(t, "http.addr", cfg.HTTP.Addr, ":9090")

	assertEqual(t, "bus.backend", cfg.Bus.Backend, "redis")
	assertEqual(t, "bus.redis_url", cfg.Bus.RedisURL, "redis://localhost:6379/0")
	assertEqual(t, "bus.request_topic", cfg.Bus.RequestTopic, "custom.requests")

	assertEqual(t, "archive.bucket", cfg.Archive.Bucket, "my-bucket")
	if !cfg.Archive.S3PathStyle {
		t.Error("expected archive.s3_path_style=true")
	}
	if cfg.Archive.SweepInterval.Duration != time.Minute {
		t.Errorf("expected sweep_interval=1m, got %v", cfg.Archive.SweepInterval.Duration)
	}
	if cfg.Archive.TTL.Duration != 2*time.Hour {
		t.Errorf("expected ttl=2h, got %v", cfg.Archive.TTL.Duration)
	}
}

func TestLoad_EmptyConfigAppliesDefaults(t *testing.T) {
	path := writeTemp(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "scripts_workspace", cfg.ScriptsWorkspace, "./scripts_workspace")
	if !cfg.AsyncMessagingEnabledOrDefault() {
		t.Error("expected async_messaging_enabled to default to true")
	}
	if cfg.LifecycleRequestQueue.Enabled {
		t.Error("expected lifecycle_request_queue.enabled to default to false")
	}
	assertEqual(t, "lifecycle_request_queue.group_id", cfg.LifecycleRequestQueue.GroupID, "request_queue_consumer")
	assertEqual(t, "bus.backend", cfg.Bus.Backend, "local")
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/resourcedriver.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTemp(t, "{{invalid yaml")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_WORKSPACE", "/expanded/workspace")

	yaml := `scripts_workspace: ${TEST_WORKSPACE}`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "scripts_workspace", cfg.ScriptsWorkspace, "/expanded/workspace")
}

func TestLoad_EnvExpansionWithDefault(t *testing.T) {
	os.Unsetenv("TEST_UNSET_VAR")

	yaml := `scripts_workspace: ${TEST_UNSET_VAR:-/fallback/workspace}`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "scripts_workspace", cfg.ScriptsWorkspace, "/fallback/workspace")
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	yaml := `scripts_workspace: /tmp
bogus_key: should_fail
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	if !strings.Contains(err.Error(), "bogus_key") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestLoad_UnknownNestedKeyRejected(t *testing.T) {
	yaml := `lifecycle_request_queue:
  enabled: true
  unknown_field: bad
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown nested key, got nil")
	}
	if !strings.Contains(err.Error(), "unknown_field") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	yaml := `archive:
  sweep_interval: 45s
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Archive.SweepInterval.Duration != 45*time.Second {
		t.Errorf("expected 45s, got %v", cfg.Archive.SweepInterval.Duration)
	}
}

// writeTemp writes content to a temp file and returns the path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "resourcedriver.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
