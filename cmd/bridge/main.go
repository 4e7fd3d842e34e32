// Command bridge is the thin wiring entrypoint for the OPC UA <-> AAS
// synchronization engine: it loads configuration, constructs the pool,
// mapping engine, monitor/control managers, the chosen AAS provider, and
// the orchestrator, then runs until an OS signal requests shutdown. Per
// spec.md §1, the full CLI (subcommands, YAML validation, node discovery,
// certificate generation) is an external collaborator; this binary exists
// only to exercise the core end to end, mirroring the teacher's
// cmd/gateway/main.go structure.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hadijannat/basyx-opcua-bridge/internal/aasprovider"
	"github.com/hadijannat/basyx-opcua-bridge/internal/aasprovider/httpaas"
	"github.com/hadijannat/basyx-opcua-bridge/internal/aasprovider/memory"
	"github.com/hadijannat/basyx-opcua-bridge/internal/auditlog"
	"github.com/hadijannat/basyx-opcua-bridge/internal/bridgeconfig"
	"github.com/hadijannat/basyx-opcua-bridge/internal/control"
	"github.com/hadijannat/basyx-opcua-bridge/internal/mapping"
	"github.com/hadijannat/basyx-opcua-bridge/internal/monitor"
	"github.com/hadijannat/basyx-opcua-bridge/internal/opcuapool"
	"github.com/hadijannat/basyx-opcua-bridge/internal/orchestrator"
	"github.com/hadijannat/basyx-opcua-bridge/internal/telemetry"
)

func main() {
	configFile := flag.String("config", "bridge.yaml", "Path to configuration file")
	logLevel := flag.String("log-level", "", "Override observability.log_level")
	flag.Parse()

	cfg, err := bridgeconfig.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "basyx-opcua-bridge: failed to load configuration:", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Observability.LogLevel = *logLevel
	}

	logger := setupLogger(cfg.Observability.LogLevel)
	defer logger.Sync()

	if err := run(logger, cfg); err != nil {
		logger.Error("bridge exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg *bridgeconfig.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)
	if cfg.Observability.MetricsEnabled {
		startMetricsServer(logger, registry, cfg.Observability.MetricsPort)
	}

	var audit *auditlog.Logger
	if cfg.Security.AuditEnabled {
		a, err := auditlog.New(cfg.Security.AuditLogPath)
		if err != nil {
			return fmt.Errorf("bridge: construct audit logger: %w", err)
		}
		audit = a
		defer audit.Close()
	}

	engine := mapping.NewEngine()
	rulesBySubmodel, err := cfg.EnabledRulesBySubmodel()
	if err != nil {
		return fmt.Errorf("bridge: parse mapping rules: %w", err)
	}
	for submodelID, rules := range rulesBySubmodel {
		if err := engine.RegisterSubmodel(submodelID, rules); err != nil {
			return fmt.Errorf("bridge: register submodel %q: %w", submodelID, err)
		}
	}

	provider, err := buildProvider(logger, cfg)
	if err != nil {
		return fmt.Errorf("bridge: construct AAS provider: %w", err)
	}

	for _, sm := range cfg.Submodels() {
		if err := provider.RegisterSubmodel(ctx, sm); err != nil {
			logger.Warn("failed to register submodel with AAS provider",
				zap.String("submodel_id", sm.Identifier), zap.Error(err))
		}
	}
	enableControlPolling(provider, cfg)

	pool := opcuapool.NewPool(logger, nil, opcuapool.DefaultPoolConfig())
	if err := pool.Connect(ctx, cfg.ToEndpointConfigs()); err != nil {
		return fmt.Errorf("bridge: connect OPC UA endpoints: %w", err)
	}

	monitorCfg := monitor.DefaultConfig()
	if cfg.OPCUA.MonitorQueueMaxSize > 0 {
		monitorCfg.QueueCapacity = cfg.OPCUA.MonitorQueueMaxSize
	}
	monitorMgr := monitor.NewManager(logger, engine, provider, metrics, monitorCfg)

	nodesByEndpoint, err := cfg.NodeIDsByEndpoint()
	if err != nil {
		return fmt.Errorf("bridge: group mappings by endpoint: %w", err)
	}
	interval := cfg.SubscriptionInterval()
	for endpointURL, nodeIDs := range nodesByEndpoint {
		client, err := pool.GetConnection(endpointURL)
		if err != nil {
			logger.Warn("skipping subscription, endpoint not connected",
				zap.String("endpoint", endpointURL), zap.Error(err))
			continue
		}
		if err := monitorMgr.Subscribe(ctx, client, endpointURL, nodeIDs, interval); err != nil {
			logger.Warn("failed to create subscription", zap.String("endpoint", endpointURL), zap.Error(err))
		}
	}

	controlMgr := control.NewManager(logger, engine, pool, audit, metrics, control.DefaultConfig())

	orch := orchestrator.New(logger, pool, monitorMgr, controlMgr, provider)
	logger.Info("bridge starting",
		zap.Int("endpoints", len(cfg.OPCUA.Endpoints)),
		zap.Int("mappings", len(cfg.Mappings)),
		zap.String("aas_type", cfg.AAS.Type))
	return orch.Run(ctx)
}

// buildProvider constructs the Memory or HTTP AAS provider named by
// cfg.AAS.Type, per spec.md §6 `aas.type ∈ memory|basyx|aasx-server`. Both
// "basyx" and "aasx-server" select the generic HTTP/REST provider; the
// distinction between AAS repository implementations is a deployment
// detail of the target server, not a difference in how this bridge talks
// REST to it.
func buildProvider(logger *zap.Logger, cfg *bridgeconfig.Config) (aasprovider.Provider, error) {
	switch cfg.AAS.Type {
	case "", "memory":
		return memory.New(cfg.AAS.QueueCapacity), nil
	case "basyx", "aasx-server":
		httpCfg := httpaas.Config{
			BaseURL:             cfg.AAS.URL,
			Timeout:             cfg.AAS.Timeout,
			EncodeIdentifiers:   cfg.AAS.EncodeIdentifiers,
			AutoCreateSubmodels: cfg.AAS.AutoCreateSubmodels,
			AutoCreateElements:  cfg.AAS.AutoCreateElements,
			DedupEnabled:        cfg.AAS.Events.DedupEnabled,
			DedupTTL:            time.Duration(cfg.AAS.Events.DedupTTLSeconds * float64(time.Second)),
			DedupMaxEntries:     cfg.AAS.Events.DedupMaxEntries,
		}
		// Polling runs whenever events are enabled but no MQTT broker is
		// configured for push ingestion; spec.md §4.7 "two modes" are
		// mutually exclusive per deployment.
		usesMQTT := cfg.AAS.Events.Enabled && cfg.AAS.Events.MQTTURL != ""
		if cfg.AAS.EnableEvents && !usesMQTT && cfg.AAS.PollIntervalSeconds > 0 {
			httpCfg.PollInterval = time.Duration(cfg.AAS.PollIntervalSeconds * float64(time.Second))
		}
		if usesMQTT {
			httpCfg.MQTT = &httpaas.MQTTConfig{
				BrokerURL:             cfg.AAS.Events.MQTTURL,
				ClientID:              cfg.AAS.Events.ClientID,
				Username:              cfg.AAS.Events.Username,
				Password:              cfg.AAS.Events.Password,
				Topic:                 cfg.AAS.Events.MQTTTopic,
				QoS:                   cfg.AAS.Events.MQTTQoS,
				TLSInsecureSkipVerify: cfg.AAS.Events.TLSInsecureSkipVerify,
				PayloadIDShortKeys:    cfg.AAS.Events.PayloadIDShortKeys,
				PayloadSubmodelKeys:   cfg.AAS.Events.PayloadSubmodelKeys,
				PayloadValueKeys:      cfg.AAS.Events.PayloadValueKeys,
				PayloadPatchArrayKey:  cfg.AAS.Events.PayloadPatchArrayKeys,
			}
		}
		return httpaas.New(httpCfg, logger, cfg.AAS.QueueCapacity), nil
	default:
		return nil, fmt.Errorf("unknown aas.type %q", cfg.AAS.Type)
	}
}

// enableControlPolling marks every AAS -> OPC UA-capable mapping as
// pollable on the HTTP provider; it is a no-op for the Memory provider,
// which has no polling loop.
func enableControlPolling(provider aasprovider.Provider, cfg *bridgeconfig.Config) {
	httpProvider, ok := provider.(*httpaas.Provider)
	if !ok {
		return
	}
	for _, m := range cfg.Mappings {
		if !m.IsEnabled() {
			continue
		}
		switch m.Direction {
		case "aas_to_opcua", "bidirectional", "":
			httpProvider.EnablePolling(m.SubmodelID, m.IDShort, m.XSDType)
		}
	}
}

func startMetricsServer(logger *zap.Logger, registry *prometheus.Registry, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("metrics endpoint listening", zap.String("addr", addr))
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic("basyx-opcua-bridge: failed to initialize logger: " + err.Error())
	}
	return logger
}
