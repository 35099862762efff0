// Package newrelic provides New Relic APM integration for monitoring.
package newrelic

import (
	"context"
	"sync"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/tos-network/tos-reporter/internal/config"
	"github.com/tos-network/tos-reporter/internal/util"
)

// Agent wraps New Relic APM functionality. A nil *Agent is valid and records
// nothing.
type Agent struct {
	cfg *config.NewRelicConfig
	app *newrelic.Application
	mu  sync.RWMutex
}

// NewAgent creates a new New Relic agent
func NewAgent(cfg *config.NewRelicConfig) *Agent {
	return &Agent{
		cfg: cfg,
	}
}

// Start initializes the New Relic agent
func (a *Agent) Start() error {
	if !a.cfg.Enabled {
		util.Info("New Relic APM disabled")
		return nil
	}

	if a.cfg.LicenseKey == "" {
		util.Warn("New Relic license key not configured, APM disabled")
		return nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(a.cfg.AppName),
		newrelic.ConfigLicense(a.cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
	if err != nil {
		return err
	}

	if err := app.WaitForConnection(5 * time.Second); err != nil {
		util.Warnf("New Relic connection timeout: %v (will retry in background)", err)
	}

	a.mu.Lock()
	a.app = app
	a.mu.Unlock()

	util.Infof("New Relic APM enabled for app: %s", a.cfg.AppName)
	return nil
}

// Stop shuts down the New Relic agent
func (a *Agent) Stop() {
	if app := a.Application(); app != nil {
		util.Info("Shutting down New Relic agent")
		app.Shutdown(10 * time.Second)
	}
}

// Application returns the underlying New Relic application (for middleware)
func (a *Agent) Application() *newrelic.Application {
	if a == nil {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.app
}

// IsEnabled returns true if New Relic is enabled and connected
func (a *Agent) IsEnabled() bool {
	return a.Application() != nil
}

// StartTransaction starts a new background transaction, nil when disabled
func (a *Agent) StartTransaction(name string) *newrelic.Transaction {
	app := a.Application()
	if app == nil {
		return nil
	}
	return app.StartTransaction(name)
}

// RecordCustomEvent records a custom event
func (a *Agent) RecordCustomEvent(eventType string, params map[string]interface{}) {
	if app := a.Application(); app != nil {
		app.RecordCustomEvent(eventType, params)
	}
}

// RecordCustomMetric records a custom metric
func (a *Agent) RecordCustomMetric(name string, value float64) {
	if app := a.Application(); app != nil {
		app.RecordCustomMetric(name, value)
	}
}

// NoticeError records an error on a transaction
func (a *Agent) NoticeError(txn *newrelic.Transaction, err error) {
	if txn != nil && err != nil {
		txn.NoticeError(err)
	}
}

// NewContext adds transaction to context
func (a *Agent) NewContext(ctx context.Context, txn *newrelic.Transaction) context.Context {
	if txn == nil {
		return ctx
	}
	return newrelic.NewContext(ctx, txn)
}

// FromContext gets transaction from context
func (a *Agent) FromContext(ctx context.Context) *newrelic.Transaction {
	return newrelic.FromContext(ctx)
}

// AddAttribute tags the transaction carried by ctx, if any
func (a *Agent) AddAttribute(ctx context.Context, key string, value interface{}) {
	if txn := a.FromContext(ctx); txn != nil {
		txn.AddAttribute(key, value)
	}
}

// RecordBlockSolved records a solved block event
func (a *Agent) RecordBlockSolved(hash, currency, algo string, height uint64, chains int) {
	a.RecordCustomEvent("BlockSolved", map[string]interface{}{
		"hash":     hash,
		"currency": currency,
		"algo":     algo,
		"height":   height,
		"chains":   chains,
	})
}

// RecordItemDiscarded records a work item dropped after a fatal error
func (a *Agent) RecordItemDiscarded(kind string, err error) {
	params := map[string]interface{}{"kind": kind}
	if err != nil {
		params["error"] = err.Error()
	}
	a.RecordCustomEvent("QueueItemDiscarded", params)
}

// UpdateQueueMetrics updates work queue metrics
func (a *Agent) UpdateQueueMetrics(size int, retrying bool) {
	a.RecordCustomMetric("Custom/Queue/Size", float64(size))

	retry := 0.0
	if retrying {
		retry = 1
	}
	a.RecordCustomMetric("Custom/Queue/Retrying", retry)
}
