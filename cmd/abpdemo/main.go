// Command abpdemo wires a backend registry, a mock backend, and the
// runtime orchestrator to run a single work order end-to-end, printing
// its event stream and final receipt. It exists to exercise the core
// packages the way an integration test would, without a real sidecar.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/backend"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/capability"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/config"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/pipeline"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/runtime"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/telemetry"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/workorder"
)

func main() {
	task := flag.String("task", "demonstrate the agent backplane", "work order task description")
	backendName := flag.String("backend", "mock", "backend name to run against")
	configPath := flag.String("config", "", "optional YAML config overlay path")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	telemetryProvider, err := telemetry.New(ctx, telemetry.Config{
		ServiceName:  "abpdemo",
		OTLPEndpoint: cfg.TelemetryEndpoint,
		Enabled:      cfg.TelemetryEnabled,
		Insecure:     true,
	}, logger)
	if err != nil {
		logger.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}
	defer telemetryProvider.Shutdown(ctx)

	registry := backend.NewRegistry()
	registry.Register("mock", backend.NewMockBackend("mock", capability.Manifest{
		capability.ToolUse: capability.Native,
	}))

	admission := pipeline.NewAdmissionPipeline(
		pipeline.ValidationStage{},
		pipeline.PolicyStage{},
		pipeline.AuditStage{Logger: logger},
	)

	rt := runtime.New(registry, admission, runtime.Options{
		BufferSize: cfg.ChannelBufferSize,
		RunTimeout: cfg.RunTimeout,
		Telemetry:  telemetryProvider,
		Logger:     logger,
	})

	wo := workorder.NewBuilder(*task).Build()

	handle, err := rt.RunStreaming(ctx, *backendName, wo)
	if err != nil {
		logger.Error("run failed to start", "error", err)
		os.Exit(1)
	}

	for ev := range handle.Events {
		line, _ := json.Marshal(ev)
		fmt.Println(string(line))
	}

	r, err := handle.Receipt()
	if err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(r, "", "  ")
	fmt.Println(string(out))
}
