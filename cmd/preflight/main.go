// cmd/preflight/main.go
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/multierr"

	"github.com/hamed0406/memcacheping/internal/config"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg, err := config.Load()
	if err != nil {
		fail(err.Error())
	}

	if err := cfg.Validate(); err != nil {
		var cerr *config.Error
		if errors.As(err, &cerr) {
			for _, e := range multierr.Errors(cerr.Err) {
				fmt.Fprintln(os.Stderr, "✖", e)
			}
			os.Exit(1)
		}
		fail(err.Error())
	}
	ok(fmt.Sprintf("%d memcache servers -> %d targets", len(cfg.Servers), len(cfg.Servers)+1))
	ok("ping interval " + cfg.Interval.String())

	if raw := os.Getenv("MEMCACHE_SERVERS"); strings.Contains(raw, ";") {
		warn("MEMCACHE_SERVERS contains ';'; separate servers with commas or spaces")
	}
	if cfg.OpTimeout >= cfg.Interval {
		warn("OP_TIMEOUT_MS >= PING_INTERVAL_MS; a hung server will stretch rounds past the interval")
	}
	if !cfg.Failover {
		warn("MEMCACHE_FAILOVER=false; the all target fails whenever any server is down")
	}

	if cfg.Addr == "" {
		warn("status API disabled")
	} else {
		ok("API_ADDR=" + cfg.Addr)
		if len(cfg.APIKeys) == 0 {
			warn("STATUS_API_KEYS empty; /api is open to anyone who can reach " + cfg.Addr)
		}
	}

	ok("preflight passed")
}
