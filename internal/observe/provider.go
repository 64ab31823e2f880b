package observe

import (
	"context"

	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig 指标 provider 配置
type ProviderConfig struct {
	// ServiceName 默认为 "live-interpreter"
	ServiceName    string
	ServiceVersion string
}

// InitProvider 注册以 Prometheus 导出器为 reader 的全局 MeterProvider，
// 指标出现在 promhttp 使用的默认注册表中。返回的函数用于刷新并关闭 provider。
func InitProvider(ctx context.Context, cfg ProviderConfig) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "live-interpreter"
	}

	res, err := resource.Merge(
		resource.Default(),
		// 不带 schema URL，与 resource.Default 合并时不会冲突
		resource.NewSchemaless(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := promexporter.New()
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(mp)

	return mp.Shutdown, nil
}
