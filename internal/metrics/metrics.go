// Package metrics exposes arena counters through an OpenTelemetry meter
// backed by a Prometheus registry.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelglobal "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap"
)

const meterName = "github.com/park285/cheese-arena"

var (
	AttrAgent    = attribute.Key("agent")
	AttrProvider = attribute.Key("provider")
	AttrStatus   = attribute.Key("status")
	AttrResult   = attribute.Key("result")
	AttrReason   = attribute.Key("reason")
)

// Recorder owns the instruments. A nil *Recorder is a no-op.
type Recorder struct {
	provider *sdkmetric.MeterProvider
	registry *prometheus.Registry

	agentCalls    metric.Int64Counter
	agentDuration metric.Float64Histogram
	invalidMoves  metric.Int64Counter
	fallbackMoves metric.Int64Counter
	games         metric.Int64Counter
}

func New(ctx context.Context, serviceName string) (*Recorder, error) {
	if serviceName == "" {
		serviceName = "chess-arena"
	}
	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otelglobal.SetMeterProvider(provider)

	r := &Recorder{provider: provider, registry: reg}
	if err := r.init(provider.Meter(meterName)); err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}
	return r, nil
}

func (r *Recorder) init(m metric.Meter) error {
	var err error
	if r.agentCalls, err = m.Int64Counter("arena_agent_calls_total", metric.WithDescription("Agent provider calls by outcome")); err != nil {
		return err
	}
	if r.agentDuration, err = m.Float64Histogram("arena_agent_call_duration_seconds", metric.WithDescription("Agent provider call latency in seconds")); err != nil {
		return err
	}
	if r.invalidMoves, err = m.Int64Counter("arena_invalid_moves_total", metric.WithDescription("Agent replies that did not parse to a legal move")); err != nil {
		return err
	}
	if r.fallbackMoves, err = m.Int64Counter("arena_fallback_moves_total", metric.WithDescription("Moves chosen by the deterministic fallback")); err != nil {
		return err
	}
	r.games, err = m.Int64Counter("arena_games_total", metric.WithDescription("Finished games by result and termination reason"))
	return err
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveCall satisfies agent.Observer.
func (r *Recorder) ObserveCall(agent, provider string, d time.Duration, err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	ctx := context.Background()
	r.agentCalls.Add(ctx, 1, metric.WithAttributes(AttrAgent.String(agent), AttrProvider.String(provider), AttrStatus.String(status)))
	r.agentDuration.Record(ctx, d.Seconds(), metric.WithAttributes(AttrAgent.String(agent), AttrProvider.String(provider)))
}

func (r *Recorder) RecordInvalidMove(ctx context.Context, agent string) {
	if r == nil {
		return
	}
	r.invalidMoves.Add(ctx, 1, metric.WithAttributes(AttrAgent.String(agent)))
}

func (r *Recorder) RecordFallback(ctx context.Context, agent string) {
	if r == nil {
		return
	}
	r.fallbackMoves.Add(ctx, 1, metric.WithAttributes(AttrAgent.String(agent)))
}

func (r *Recorder) RecordGame(ctx context.Context, result, reason string) {
	if r == nil {
		return
	}
	r.games.Add(ctx, 1, metric.WithAttributes(AttrResult.String(result), AttrReason.String(reason)))
}

func (r *Recorder) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.provider.Shutdown(ctx)
}

// Serve exposes /metrics on addr until the returned stop func is called.
func Serve(addr string, h http.Handler, logger *zap.Logger) (stop func(context.Context) error, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics_server_stopped", zap.Error(err))
		}
	}()
	logger.Info("metrics_server_listening", zap.String("addr", ln.Addr().String()))
	return srv.Shutdown, nil
}
