package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Servers        []string      // memcached addresses, host:port
	Username       string        // SASL PLAIN user shared by every server
	Password       string        // SASL PLAIN password shared by every server
	Interval       time.Duration // delay between the end of one round and the start of the next
	ConnectTimeout time.Duration
	OpTimeout      time.Duration // bound on every set/get/delete
	CloseTimeout   time.Duration // per-handle bound at shutdown
	Failover       bool          // let the "all" target rehash away from dead servers
	Concurrency    int           // targets probed at once within a round; 1 = sequential

	LogDir   string
	LogLevel string

	Addr           string // status API bind address; empty disables the API
	AllowedOrigins []string
	APIKeys        []string
	RPM            int
	Burst          int
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Interval:       5000 * time.Millisecond,
		ConnectTimeout: 10 * time.Second,
		OpTimeout:      10 * time.Second,
		CloseTimeout:   3 * time.Second,
		Failover:       true,
		Concurrency:    1,
		LogDir:         "logs",
		LogLevel:       "info",
		Addr:           "127.0.0.1:8080",
		AllowedOrigins: []string{"*"},
		RPM:            120,
		Burst:          60,
	}
}

// Load reads CONFIG_FILE (when set) and then applies environment overrides.
// A value that does not parse, or a duration or count that is not
// positive, is a *config.Error rather than a silent fallback to the default.
func Load() (Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		fc, err := LoadFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = fc
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, &Error{Err: err}
	}
	return cfg, nil
}

// FromEnv builds the configuration from defaults and environment only.
func FromEnv() (Config, error) {
	cfg := Default()
	if err := applyEnv(&cfg); err != nil {
		return cfg, &Error{Err: err}
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var errs error
	if v := os.Getenv("MEMCACHE_SERVERS"); v != "" {
		cfg.Servers = splitList(v)
	}
	if v := os.Getenv("MEMCACHE_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("MEMCACHE_PASSWORD"); v != "" {
		cfg.Password = v
	}
	errs = multierr.Append(errs, envMillis("PING_INTERVAL_MS", &cfg.Interval))
	errs = multierr.Append(errs, envMillis("CONNECT_TIMEOUT_MS", &cfg.ConnectTimeout))
	errs = multierr.Append(errs, envMillis("OP_TIMEOUT_MS", &cfg.OpTimeout))
	errs = multierr.Append(errs, envMillis("CLOSE_TIMEOUT_MS", &cfg.CloseTimeout))
	if v := os.Getenv("MEMCACHE_FAILOVER"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("MEMCACHE_FAILOVER=%q: want true or false", v))
		} else {
			cfg.Failover = b
		}
	}
	errs = multierr.Append(errs, envInt("PROBE_CONCURRENCY", 1, &cfg.Concurrency))

	if v := os.Getenv("LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	// API_ADDR set to "-" turns the status API off.
	if v, ok := os.LookupEnv("API_ADDR"); ok {
		cfg.Addr = strings.TrimSpace(v)
		if cfg.Addr == "-" {
			cfg.Addr = ""
		}
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("STATUS_API_KEYS"); v != "" {
		cfg.APIKeys = splitList(v)
	}
	// STATUS_RPM=0 disables rate limiting.
	errs = multierr.Append(errs, envInt("STATUS_RPM", 0, &cfg.RPM))
	errs = multierr.Append(errs, envInt("STATUS_BURST", 1, &cfg.Burst))
	return errs
}

func envMillis(name string, dst *time.Duration) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s=%q: want whole milliseconds", name, v)
	}
	if ms <= 0 {
		return fmt.Errorf("%s=%d: must be positive", name, ms)
	}
	*dst = time.Duration(ms) * time.Millisecond
	return nil
}

func envInt(name string, floor int, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s=%q: want an integer", name, v)
	}
	if n < floor {
		return fmt.Errorf("%s=%d: must be at least %d", name, n, floor)
	}
	*dst = n
	return nil
}

// splitList accepts comma- or whitespace-separated lists.
func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Error is a configuration problem. It is fatal at startup.
type Error struct {
	Err error
}

func (e *Error) Error() string { return "invalid configuration: " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs error
	if len(c.Servers) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("memcache servers: at least one required"))
	}
	seen := make(map[string]bool, len(c.Servers))
	for _, s := range c.Servers {
		host, port, err := net.SplitHostPort(s)
		if err != nil || host == "" || port == "" {
			errs = multierr.Append(errs, fmt.Errorf("memcache server %q: want host:port", s))
			continue
		}
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("memcache server %q: bad port", s))
		}
		if seen[s] {
			errs = multierr.Append(errs, fmt.Errorf("memcache server %q: duplicate", s))
		}
		seen[s] = true
	}
	if c.Username == "" {
		errs = multierr.Append(errs, fmt.Errorf("memcache username: required"))
	}
	if c.Password == "" {
		errs = multierr.Append(errs, fmt.Errorf("memcache password: required"))
	}
	if c.Interval <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("ping interval: must be positive"))
	}
	if c.OpTimeout <= 0 || c.ConnectTimeout <= 0 || c.CloseTimeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("timeouts: must be positive"))
	}
	if c.Concurrency < 1 {
		errs = multierr.Append(errs, fmt.Errorf("probe concurrency: must be at least 1"))
	}
	if errs != nil {
		return &Error{Err: errs}
	}
	return nil
}

type fileConfig struct {
	Memcache struct {
		Servers          []string `yaml:"servers"`
		Username         string   `yaml:"username"`
		Password         string   `yaml:"password"`
		ConnectTimeoutMS *int     `yaml:"connect_timeout_ms"`
		OpTimeoutMS      *int     `yaml:"op_timeout_ms"`
		Failover         *bool    `yaml:"failover"`
	} `yaml:"memcache"`
	PingIntervalMS   *int     `yaml:"ping_interval_ms"`
	CloseTimeoutMS   *int     `yaml:"close_timeout_ms"`
	ProbeConcurrency *int     `yaml:"probe_concurrency"`
	LogDir           string   `yaml:"log_dir"`
	LogLevel         string   `yaml:"log_level"`
	APIAddr          *string  `yaml:"api_addr"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	StatusAPIKeys    []string `yaml:"status_api_keys"`
	StatusRPM        *int     `yaml:"status_rpm"`
	StatusBurst      *int     `yaml:"status_burst"`
}

// LoadFile reads a YAML config file over the defaults. Keys left out keep
// their defaults; keys present with an out-of-range value are errors.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, &Error{Err: fmt.Errorf("parse %s: %w", path, err)}
	}

	cfg.Servers = fc.Memcache.Servers
	cfg.Username = fc.Memcache.Username
	cfg.Password = fc.Memcache.Password

	var errs error
	errs = multierr.Append(errs, millis("ping_interval_ms", fc.PingIntervalMS, &cfg.Interval))
	errs = multierr.Append(errs, millis("memcache.connect_timeout_ms", fc.Memcache.ConnectTimeoutMS, &cfg.ConnectTimeout))
	errs = multierr.Append(errs, millis("memcache.op_timeout_ms", fc.Memcache.OpTimeoutMS, &cfg.OpTimeout))
	errs = multierr.Append(errs, millis("close_timeout_ms", fc.CloseTimeoutMS, &cfg.CloseTimeout))
	errs = multierr.Append(errs, atLeast("probe_concurrency", fc.ProbeConcurrency, 1, &cfg.Concurrency))
	errs = multierr.Append(errs, atLeast("status_rpm", fc.StatusRPM, 0, &cfg.RPM))
	errs = multierr.Append(errs, atLeast("status_burst", fc.StatusBurst, 1, &cfg.Burst))
	if fc.Memcache.Failover != nil {
		cfg.Failover = *fc.Memcache.Failover
	}
	if fc.LogDir != "" {
		cfg.LogDir = fc.LogDir
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.APIAddr != nil {
		cfg.Addr = *fc.APIAddr
	}
	if len(fc.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = fc.AllowedOrigins
	}
	cfg.APIKeys = fc.StatusAPIKeys
	if errs != nil {
		return cfg, &Error{Err: fmt.Errorf("%s: %w", path, errs)}
	}
	return cfg, nil
}

func millis(key string, ms *int, dst *time.Duration) error {
	if ms == nil {
		return nil
	}
	if *ms <= 0 {
		return fmt.Errorf("%s=%d: must be positive", key, *ms)
	}
	*dst = time.Duration(*ms) * time.Millisecond
	return nil
}

func atLeast(key string, v *int, floor int, dst *int) error {
	if v == nil {
		return nil
	}
	if *v < floor {
		return fmt.Errorf("%s=%d: must be at least %d", key, *v, floor)
	}
	*dst = *v
	return nil
}
