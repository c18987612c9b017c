// File: cmd/beatbridge/main.go
// Package main runs either side of the bridge: "serve" is the native
// process, "connect" plays the extension role against it.
// License: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/momentics/beatbridge/client"
	"github.com/momentics/beatbridge/control"
	"github.com/momentics/beatbridge/fake"
	"github.com/momentics/beatbridge/internal/httpapi"
	"github.com/momentics/beatbridge/internal/store"
	"github.com/momentics/beatbridge/router"
	"github.com/momentics/beatbridge/server"
)

const defaultHTTPAddr = "127.0.0.1:8090"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "connect":
		err = runConnect(ctx, os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("beatbridge: %v", err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s serve|connect [flags]\n", os.Args[0])
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", getEnv("BEATBRIDGE_ADDR", server.DefaultAddr), "WebSocket listen address")
	httpAddr := fs.String("http", getEnv("BEATBRIDGE_HTTP_ADDR", defaultHTTPAddr), "HTTP control API address (empty disables)")
	dbPath := fs.String("db", getEnv("BEATBRIDGE_DB_PATH", ""), "SQLite history database (empty disables)")
	heartbeat := fs.Duration("heartbeat", 5*time.Second, "PING interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := log.Default()
	ctl := control.New()

	search := newSearchLog(logger)
	opts := []router.Option{
		router.WithLogger(logger),
		router.WithMetrics(ctl.Metrics),
		router.WithSearchSink(search),
		router.WithPingLiveness(true),
	}
	if *dbPath != "" {
		st, err := store.Open(*dbPath)
		if err != nil {
			return err
		}
		defer st.Close()
		opts = append(opts, router.WithHistoryStore(st))
	}
	rt := router.New(opts...)
	defer rt.Close()
	if err := rt.LoadHistory(ctx); err != nil {
		logger.Printf("[main] restoring history: %v", err)
	}

	cfg := server.DefaultConfig()
	cfg.Addr = *addr
	cfg.HeartbeatInterval = *heartbeat
	cfg.LivenessTimeout = 2 * *heartbeat
	sup, err := server.New(cfg, server.WithLogger(logger), server.WithRouter(rt), server.WithMetrics(ctl.Metrics))
	if err != nil {
		return err
	}
	sup.RegisterProbes(ctl.Debug)
	ctl.Debug.RegisterProbe("nowplaying", func() any { return sup.Snapshot() })
	ctl.Debug.RegisterProbe("search.latest", search.Latest)
	ctl.Config.SetConfig(map[string]any{
		"addr":      cfg.Addr,
		"http_addr": *httpAddr,
		"db_path":   *dbPath,
		"heartbeat": cfg.HeartbeatInterval.String(),
		"liveness":  cfg.LivenessTimeout.String(),
	})

	go logSnapshots(ctx, logger, rt)

	if *httpAddr != "" {
		engine := httpapi.NewEngine(httpapi.NewHandler(sup, ctl), logger)
		go func() {
			if err := httpapi.Serve(ctx, *httpAddr, engine, logger); err != nil {
				logger.Printf("[main] http api: %v", err)
			}
		}()
	}

	err = sup.Serve(ctx)
	_ = sup.Close()
	return err
}

func logSnapshots(ctx context.Context, logger *log.Logger, rt *router.Router) {
	snaps, cancel := rt.SubscribeSnapshots()
	defer cancel()
	last := ""
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-snaps:
			if !ok {
				return
			}
			if s.Track != nil && s.Track.ID != last {
				last = s.Track.ID
				logger.Printf("[main] now playing: %s - %s", s.Track.Artist, s.Track.Title)
			}
		}
	}
}

func runConnect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("connect", flag.ExitOnError)
	url := fs.String("url", getEnv("BEATBRIDGE_URL", client.DefaultURL), "native process WebSocket URL")
	portCheck := fs.Duration("port-check", 30*time.Second, "health probe interval once retries are exhausted (0 disables)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := log.Default()
	ctl := control.New()
	media := fake.NewMediaControl()
	media.Logger = logger
	rt := router.New(router.WithLogger(logger), router.WithMediaControl(media), router.WithMetrics(ctl.Metrics))
	defer rt.Close()

	cfg := client.DefaultConfig()
	cfg.URL = *url
	cfg.PortCheckInterval = *portCheck
	conn, err := client.New(cfg, client.WithLogger(logger), client.WithRouter(rt), client.WithMetrics(ctl.Metrics))
	if err != nil {
		return err
	}
	conn.RegisterProbes(ctl.Debug)

	states, cancel := conn.Subscribe()
	defer cancel()
	conn.Connect()

	for {
		select {
		case <-ctx.Done():
			return conn.Close()
		case st, ok := <-states:
			if !ok {
				return errors.New("connector stopped")
			}
			logger.Printf("[main] %s (attempts=%d)", st.Description(), st.AttemptCount)
		}
	}
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}
