// Package runtimecfg parses an opaque key/value configuration map
// describes (the runtime core never reads a config file itself) into a
// typed Config, with ParseSize grounded on agilira-lethe/config.go's
// size-suffix parser for queue-size and buffer-size style keys.
package runtimecfg

import (
	"fmt"
	"strconv"
	"strings"
)

// Config is the runtime's parsed configuration.
type Config struct {
	ReactorCount int
	QueueSize    uint64
	MailboxSize  uint64
	// PollerKind names the reactor's Poller backend: "epoll" (default) or
	// "io_uring". Both values are accepted, but the runtime builds epoll
	// pollers regardless; no io_uring backend ships.
	PollerKind string
}

// Default returns a Config with conservative defaults: one reactor, 1024
// deep queues, epoll polling.
func Default() *Config {
	return &Config{
		ReactorCount: 1,
		QueueSize:    1024,
		MailboxSize:  4096,
		PollerKind:   "epoll",
	}
}

// FromMap parses a flat string-keyed configuration map into a Config,
// starting from Default() and overriding only the keys present. Recognized
// keys: reactor_count, queue_size, mailbox_size, poller.
func FromMap(values map[string]string) (*Config, error) {
	cfg := Default()

	if v, ok := values["reactor_count"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("runtimecfg: invalid reactor_count %q", v)
		}
		cfg.ReactorCount = n
	}
	if v, ok := values["queue_size"]; ok {
		size, err := ParseSize(v)
		if err != nil {
			return nil, fmt.Errorf("runtimecfg: invalid queue_size: %w", err)
		}
		cfg.QueueSize = uint64(size)
	}
	if v, ok := values["mailbox_size"]; ok {
		size, err := ParseSize(v)
		if err != nil {
			return nil, fmt.Errorf("runtimecfg: invalid mailbox_size: %w", err)
		}
		cfg.MailboxSize = uint64(size)
	}
	if v, ok := values["poller"]; ok {
		if v != "epoll" && v != "io_uring" {
			return nil, fmt.Errorf("runtimecfg: unknown poller kind %q", v)
		}
		cfg.PollerKind = v
	}
	return cfg, nil
}

// ParseSize converts strings like "4096", "64KB", "1MB", "2GB" to a byte
// count. Grounded on agilira-lethe's ParseSize: plain integers pass
// through, case-insensitive KB/MB/GB/TB and K/M/G/T suffixes multiply by
// powers of 1024.
func ParseSize(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}
	if val, err := strconv.ParseInt(s, 10, 64); err == nil {
		return val, nil
	}

	upper := strings.ToUpper(s)
	var multiplier int64
	var numStr string

	switch {
	case strings.HasSuffix(upper, "KB"):
		multiplier, numStr = 1024, upper[:len(upper)-2]
	case strings.HasSuffix(upper, "MB"):
		multiplier, numStr = 1024*1024, upper[:len(upper)-2]
	case strings.HasSuffix(upper, "GB"):
		multiplier, numStr = 1024*1024*1024, upper[:len(upper)-2]
	case strings.HasSuffix(upper, "TB"):
		multiplier, numStr = 1024*1024*1024*1024, upper[:len(upper)-2]
	case strings.HasSuffix(upper, "K"):
		multiplier, numStr = 1024, upper[:len(upper)-1]
	case strings.HasSuffix(upper, "M"):
		multiplier, numStr = 1024*1024, upper[:len(upper)-1]
	case strings.HasSuffix(upper, "G"):
		multiplier, numStr = 1024*1024*1024, upper[:len(upper)-1]
	case strings.HasSuffix(upper, "T"):
		multiplier, numStr = 1024*1024*1024*1024, upper[:len(upper)-1]
	default:
		return 0, fmt.Errorf("unknown size suffix in %q (supported: KB/K, MB/M, GB/G, TB/T)", s)
	}

	val, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size number in %q: %v", s, err)
	}
	result := val * multiplier
	if result < 0 {
		return 0, fmt.Errorf("size %q too large", s)
	}
	return result, nil
}
