// Package telemetry exports supplierd traces and metrics over OTLP.
//
// The extraction pipeline starts spans through the global tracer provider
// and the HTTP layer records request metrics through the global meter
// provider. New installs OTLP-backed providers for both when enabled:
//
//	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry, version), logger)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Configuration:
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc            # or http/protobuf
//	  sampling_rate: 0.25
//	  metrics_enabled: true
//	  export_interval: 15s
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
