// TOS Reporter - share accounting and block rotation for the pool
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tos-network/tos-reporter/internal/api"
	"github.com/tos-network/tos-reporter/internal/config"
	"github.com/tos-network/tos-reporter/internal/newrelic"
	"github.com/tos-network/tos-reporter/internal/notify"
	"github.com/tos-network/tos-reporter/internal/policy"
	"github.com/tos-network/tos-reporter/internal/queue"
	"github.com/tos-network/tos-reporter/internal/reporter"
	"github.com/tos-network/tos-reporter/internal/storage"
	"github.com/tos-network/tos-reporter/internal/util"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("TOS Reporter v%s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := util.InitLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer util.Sync()

	util.Infof("TOS Reporter v%s starting, share chain %d", version, cfg.Reporter.Chain)

	store, err := storage.NewRedisClient(&cfg.Redis, cfg.Reporter.Chain)
	if err != nil {
		util.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer store.Close()

	var q queue.Queue
	if cfg.Queue.Durable {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		durable, err := queue.NewRedis(ctx, store.Client(), cfg.Queue.Key)
		cancel()
		if err != nil {
			util.Fatalf("Failed to open work queue %s: %v", cfg.Queue.Key, err)
		}
		util.Infof("Durable work queue %s holds %d items", cfg.Queue.Key, durable.Size())
		q = durable
	} else {
		util.Warn("Durable queue disabled, queued items are lost on restart")
		q = queue.NewMemory()
	}

	apm := newrelic.NewAgent(&cfg.NewRelic)
	if err := apm.Start(); err != nil {
		util.Warnf("Failed to start New Relic agent: %v", err)
	}

	notifier := notify.NewNotifier(&cfg.Notify)

	rep := reporter.New(cfg, store, q)
	rep.SetAPM(apm)
	rep.AddBlockListener(notifier)
	rep.Start()

	var apiServer *api.Server
	var guard *policy.PolicyServer
	if cfg.API.Enabled {
		apiServer = api.NewServer(&cfg.API, rep, store, rep.Metrics().Registry())
		if cfg.API.IngressEnabled && cfg.Policy.Enabled {
			guard = policy.NewPolicyServer(&cfg.Policy)
			guard.Start()
			apiServer.SetGuard(guard)
		}
		if err := apiServer.Start(); err != nil {
			util.Fatalf("Failed to start API server: %v", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	util.Info("Reporter started successfully. Press Ctrl+C to stop.")

	<-sigChan
	util.Info("Shutting down...")

	if apiServer != nil {
		apiServer.Stop()
	}
	if guard != nil {
		guard.Stop()
	}
	rep.Stop()
	notifier.Wait()
	apm.Stop()

	util.Info("Reporter stopped")
}
