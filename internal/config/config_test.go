package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFromEnv_ParsesAndDefaults(t *testing.T) {
	t.Setenv("MEMCACHE_SERVERS", "10.0.0.1:11211, 10.0.0.2:11211")
	t.Setenv("MEMCACHE_USERNAME", "ping")
	t.Setenv("MEMCACHE_PASSWORD", "secret")
	t.Setenv("PING_INTERVAL_MS", "250")
	t.Setenv("OP_TIMEOUT_MS", "1234")
	t.Setenv("MEMCACHE_FAILOVER", "false")
	t.Setenv("PROBE_CONCURRENCY", "3")
	t.Setenv("LOG_DIR", "./_testlogs")
	t.Setenv("STATUS_API_KEYS", "k1,k2")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}

	if len(cfg.Servers) != 2 || cfg.Servers[1] != "10.0.0.2:11211" {
		t.Fatalf("servers wrong: %+v", cfg.Servers)
	}
	if cfg.Username != "ping" || cfg.Password != "secret" {
		t.Fatalf("credentials wrong: %+v", cfg)
	}
	if cfg.Interval != 250*time.Millisecond || cfg.OpTimeout != 1234*time.Millisecond {
		t.Fatalf("durations wrong: interval=%v op=%v", cfg.Interval, cfg.OpTimeout)
	}
	if cfg.CloseTimeout != 3*time.Second {
		t.Fatalf("close timeout should keep default, got %v", cfg.CloseTimeout)
	}
	if cfg.Failover {
		t.Fatalf("failover should be off")
	}
	if cfg.Concurrency != 3 || cfg.LogDir != "./_testlogs" || len(cfg.APIKeys) != 2 {
		t.Fatalf("misc wrong: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestFromEnv_MalformedValuesAreConfigurationErrors(t *testing.T) {
	t.Setenv("PING_INTERVAL_MS", "abc")
	t.Setenv("MEMCACHE_FAILOVER", "nope")
	t.Setenv("OP_TIMEOUT_MS", "-1")
	t.Setenv("CLOSE_TIMEOUT_MS", "0")
	t.Setenv("PROBE_CONCURRENCY", "0")

	_, err := FromEnv()
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("want *config.Error, got %v", err)
	}
	msg := err.Error()
	for _, want := range []string{"PING_INTERVAL_MS", "MEMCACHE_FAILOVER", "OP_TIMEOUT_MS", "CLOSE_TIMEOUT_MS", "PROBE_CONCURRENCY"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("want %s reported in %q", want, msg)
		}
	}

	if _, err := Load(); !errors.As(err, &cerr) {
		t.Fatalf("Load should fail the same way, got %v", err)
	}
}

func TestLoadFile_ExplicitZeroIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zero.yaml")
	body := `
memcache:
  servers: ["cache-1:11211"]
  username: u
  password: p
  op_timeout_ms: 0
ping_interval_ms: -5
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := LoadFile(path)
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("want *config.Error, got %v", err)
	}
	if !strings.Contains(err.Error(), "op_timeout_ms=0") || !strings.Contains(err.Error(), "ping_interval_ms=-5") {
		t.Fatalf("both bad keys should be reported: %v", err)
	}
}

func TestDefault_IntervalIs5000ms(t *testing.T) {
	cfg := Default()
	if cfg.Interval != 5000*time.Millisecond {
		t.Fatalf("default interval %v", cfg.Interval)
	}
	if cfg.CloseTimeout != 3*time.Second || cfg.OpTimeout != 10*time.Second {
		t.Fatalf("default timeouts wrong: %+v", cfg)
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Servers = []string{"nohost", "a:11211", "a:11211", "b:notaport"}

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("want configuration error")
	}
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("want *config.Error, got %T", err)
	}
	msg := err.Error()
	for _, want := range []string{`"nohost"`, "duplicate", "bad port", "username", "password"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("want %q in %q", want, msg)
		}
	}
}

func TestValidate_EmptyServers(t *testing.T) {
	cfg := Default()
	cfg.Username, cfg.Password = "u", "p"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("want error for empty server list")
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memcacheping.yaml")
	body := `
memcache:
  servers: ["cache-1:11211", "cache-2:11211"]
  username: filer
  password: filepw
  failover: false
ping_interval_ms: 750
api_addr: ""
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MEMCACHE_USERNAME", "envuser")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Servers) != 2 || cfg.Servers[0] != "cache-1:11211" {
		t.Fatalf("servers from file wrong: %+v", cfg.Servers)
	}
	if cfg.Username != "envuser" || cfg.Password != "filepw" {
		t.Fatalf("env should override file: %+v", cfg)
	}
	if cfg.Interval != 750*time.Millisecond || cfg.Failover {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if cfg.Addr != "" {
		t.Fatalf("api should be disabled, got %q", cfg.Addr)
	}
}

func TestLoadFile_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("memcache: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := LoadFile(path)
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("want *config.Error, got %v", err)
	}
}
