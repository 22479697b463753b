package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"gamelog-backend/internal/config"
)

type appMetrics struct {
	loginCounter      metric.Int64Counter
	refreshCounter    metric.Int64Counter
	logoutCounter     metric.Int64Counter
	lockoutCounter    metric.Int64Counter
	revocationCounter metric.Int64Counter
	tokenValidation   metric.Int64Counter
	rateLimitCounter  metric.Int64Counter
	repoOps           metric.Int64Counter
}

var (
	metricsMu sync.RWMutex
	metricsRt *appMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	meter := mp.Meter("gamelog-backend")
	m := &appMetrics{}
	for _, c := range []struct {
		name string
		dst  *metric.Int64Counter
	}{
		{"auth.login.attempts", &m.loginCounter},
		{"auth.refresh.attempts", &m.refreshCounter},
		{"auth.logout.attempts", &m.logoutCounter},
		{"auth.lockout.events", &m.lockoutCounter},
		{"auth.revocation.events", &m.revocationCounter},
		{"auth.token.validations", &m.tokenValidation},
		{"http.rate_limit.decisions", &m.rateLimitCounter},
		{"repository.operations", &m.repoOps},
	} {
		counter, err := meter.Int64Counter(c.name)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	metricsMu.Lock()
	metricsRt = m
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func current() *appMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return metricsRt
}

func RecordAuthLogin(provider, status string) {
	m := current()
	if m == nil {
		return
	}
	m.loginCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	))
}

func RecordAuthRefresh(status string) {
	m := current()
	if m == nil {
		return
	}
	m.refreshCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordAuthLogout(status string) {
	m := current()
	if m == nil {
		return
	}
	m.logoutCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordLockoutEvent(action string) {
	m := current()
	if m == nil {
		return
	}
	m.lockoutCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("action", action)))
}

func RecordRevocationEvent(kind, status string) {
	m := current()
	if m == nil {
		return
	}
	m.revocationCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

func RecordAccessTokenValidation(ctx context.Context, result, source string) {
	m := current()
	if m == nil {
		return
	}
	m.tokenValidation.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
		attribute.String("source", source),
	))
}

func RecordRateLimitDecision(ctx context.Context, scope, decision, mode string) {
	m := current()
	if m == nil {
		return
	}
	m.rateLimitCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("decision", decision),
		attribute.String("mode", mode),
	))
}

func RecordRepositoryOperation(ctx context.Context, entity, operation, status string) {
	m := current()
	if m == nil {
		return
	}
	m.repoOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
}
