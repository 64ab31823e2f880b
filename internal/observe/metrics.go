// Package observe 提供中继的 OpenTelemetry 指标、/metrics 背后的 Prometheus 导出桥接，
// 以及 HTTP 耗时中间件。
//
// 测试中请用 [NewMetrics] 搭配 ManualReader 构建 [Metrics]，不要依赖全局 provider。
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/zhouzirui/live-interpreter/backend"

// Metrics 中继的全部指标，可并发使用
type Metrics struct {
	// ActiveSessions 进程内打开的中继连接数
	ActiveSessions metric.Int64UpDownCounter

	// RecognizerEvents 归一化后的识别事件数，属性 kind
	RecognizerEvents metric.Int64Counter

	// AudioBytes 转发给识别器的 PCM 字节数
	AudioBytes metric.Int64Counter

	// DroppedFrames 未送达识别器的音频帧数，属性 reason
	DroppedFrames metric.Int64Counter

	// TranslationRequests 翻译调用次数，属性 variant 与 status
	TranslationRequests metric.Int64Counter

	// TranslationDuration 翻译调用往返耗时
	TranslationDuration metric.Float64Histogram

	// HTTPRequestDuration HTTP 请求处理耗时，属性 method、route 与 status
	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics 在给定 provider 上创建全部指标
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ActiveSessions, err = m.Int64UpDownCounter("relay.active_sessions",
		metric.WithDescription("Number of open relay connections."),
	); err != nil {
		return nil, err
	}
	if met.RecognizerEvents, err = m.Int64Counter("relay.recognizer.events",
		metric.WithDescription("Recognition events delivered to sessions by kind."),
	); err != nil {
		return nil, err
	}
	if met.AudioBytes, err = m.Int64Counter("relay.audio.bytes",
		metric.WithDescription("PCM bytes forwarded to recognizers."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.DroppedFrames, err = m.Int64Counter("relay.audio.dropped_frames",
		metric.WithDescription("Audio frames dropped by reason."),
	); err != nil {
		return nil, err
	}
	if met.TranslationRequests, err = m.Int64Counter("relay.translation.requests",
		metric.WithDescription("Translation calls by variant and status."),
	); err != nil {
		return nil, err
	}
	if met.TranslationDuration, err = m.Float64Histogram("relay.translation.duration",
		metric.WithDescription("Latency of translation calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("relay.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordRecognizerEvent 记录一个识别事件
func (m *Metrics) RecordRecognizerEvent(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.RecognizerEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordAudio 记录写入识别器的字节数
func (m *Metrics) RecordAudio(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.AudioBytes.Add(ctx, int64(n))
}

// RecordDroppedFrame 记录一个被丢弃的音频帧
func (m *Metrics) RecordDroppedFrame(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.DroppedFrames.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordTranslation 记录一次翻译调用及其耗时
func (m *Metrics) RecordTranslation(ctx context.Context, variant, status string, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("variant", variant),
		attribute.String("status", status),
	)
	m.TranslationRequests.Add(ctx, 1, attrs)
	m.TranslationDuration.Record(ctx, seconds, attrs)
}

// SessionOpened 活跃连接数加一
func (m *Metrics) SessionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1)
}

// SessionClosed 活跃连接数减一
func (m *Metrics) SessionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1)
}
