// Command runtimed boots a standalone meridian.Runtime process: it parses
// flags into a runtimecfg.Config, registers the echo service, starts the
// runtime, and blocks until an interrupt or terminate signal tells it to
// shut down.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wolfhead/meridian"
	"github.com/wolfhead/meridian/internal/coro"
	"github.com/wolfhead/meridian/internal/logging"
	"github.com/wolfhead/meridian/internal/proto"
	"github.com/wolfhead/meridian/internal/runtimecfg"
	"github.com/wolfhead/meridian/internal/stage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "runtimed:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		endpoint     = flag.String("endpoint", "meridian://127.0.0.1:9090", "listen endpoint for the echo service")
		reactorCount = flag.Int("reactors", 1, "number of reactor threads")
		workerCount  = flag.Int("workers", 4, "echo stage worker count")
		queueSize    = flag.String("queue-size", "1024", "per-worker queue depth (accepts K/M suffixes)")
		logLevel     = flag.String("log-level", "info", "log level: debug, info, warn, error")
	)
	flag.Parse()

	level := logging.LevelInfo
	switch *logLevel {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}
	logging.SetDefault(logging.NewLogger(&logging.Config{Level: level, Output: os.Stdout, Pretty: true}))
	log := logging.Default()

	cfg, err := runtimecfg.FromMap(map[string]string{
		"reactor_count": fmt.Sprint(*reactorCount),
		"queue_size":    *queueSize,
	})
	if err != nil {
		return err
	}

	rt, err := meridian.New(cfg)
	if err != nil {
		return err
	}

	err = rt.RegisterService("echo", *endpoint, meridian.ServiceHandlerFunc(
		func(task *coro.Task, msg proto.Message) ([]byte, error) {
			return msg.Payload, nil
		},
	), stage.Config{WorkerCount: *workerCount})
	if err != nil {
		return err
	}

	if err := rt.Start(); err != nil {
		return err
	}
	log.Info("runtime started", "endpoint", *endpoint, "reactors", *reactorCount, "workers", *workerCount)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	return rt.Stop()
}
