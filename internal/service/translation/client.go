// Package translation 把各类机器翻译后端封装为同一个同步调用：一次请求，一段译文。
package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/zhouzirui/live-interpreter/backend/internal/observe"
)

// Variant 决定上游请求的格式
type Variant string

const (
	// VariantLegacy 向 /translate?api-version=3.0&from=&to= 发送 [{"Text":...}]
	VariantLegacy Variant = "legacy"
	// VariantPreview 向 /translator/text/translate 发送 {"inputs":[...]}
	VariantPreview Variant = "preview"
	// VariantLLM 调用大模型翻译，见 LLMTranslator
	VariantLLM Variant = "llm"
)

const (
	defaultSourceLang = "en"
	defaultTargetLang = "ja"
	maxResponseBytes  = 1 << 20
)

// Request 一次翻译请求
type Request struct {
	Text       string
	SourceLang string
	TargetLang string
	Credential string
}

// Result 译文；上游响应不符合任何已知格式时为空串
type Result struct {
	Text string
}

// Translator 由 Client 与 LLMTranslator 实现
type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

// Config HTTP 翻译服务端点配置
type Config struct {
	Variant    Variant
	Endpoint   string
	APIVersion string
	// Region 仅 legacy 变体使用，作为 Ocp-Apim-Subscription-Region 发送
	Region  string
	Timeout time.Duration
}

// Client 调用 HTTP 翻译接口
type Client struct {
	cfg        Config
	httpClient *http.Client
	metrics    *observe.Metrics
	logger     *log.Logger
}

// Option 定制 Client
type Option func(*Client)

// WithHTTPClient 替换默认的 HTTP 客户端
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics 记录调用次数与耗时
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient 校验配置，返回 legacy 或 preview 变体的 Client
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	switch cfg.Variant {
	case VariantLegacy, VariantPreview:
	default:
		return nil, fmt.Errorf("unsupported http translator variant %q", cfg.Variant)
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("translator endpoint is required for variant %s", cfg.Variant)
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "3.0"
		if cfg.Variant == VariantPreview {
			cfg.APIVersion = "2025-10-01-preview"
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     log.WithPrefix("translate"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Variant 当前使用的请求格式
func (c *Client) Variant() Variant { return c.cfg.Variant }

// Translate 校验请求后只调用一次上游，返回第一条译文。
// 校验失败时不会发出任何网络请求。
func (c *Client) Translate(ctx context.Context, req Request) (Result, error) {
	req, err := normalizeRequest(req, true)
	if err != nil {
		return Result{}, err
	}

	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return Result{}, &TransportError{Err: err}
	}

	start := time.Now()
	result, err := c.do(httpReq)
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordTranslation(ctx, string(c.cfg.Variant), status, time.Since(start).Seconds())

	if err != nil {
		c.logger.Warn("translation failed", "variant", c.cfg.Variant, "from", req.SourceLang, "to", req.TargetLang, "err", err)
		return Result{}, err
	}
	return result, nil
}

func (c *Client) do(httpReq *http.Request) (Result, error) {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, &TransportError{Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &UpstreamError{Status: resp.StatusCode, Body: body}
	}

	return Result{Text: decodeTranslatedText(body)}, nil
}

type legacyInput struct {
	Text string `json:"Text"`
}

type previewInput struct {
	Text     string          `json:"Text"`
	Language string          `json:"language"`
	Targets  []previewTarget `json:"targets"`
}

type previewTarget struct {
	Language string `json:"language"`
}

type previewBody struct {
	Inputs []previewInput `json:"inputs"`
}

func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	base := strings.TrimSuffix(c.cfg.Endpoint, "/")
	query := url.Values{}
	query.Set("api-version", c.cfg.APIVersion)

	var (
		target  string
		payload any
	)
	switch c.cfg.Variant {
	case VariantLegacy:
		query.Set("from", req.SourceLang)
		query.Set("to", req.TargetLang)
		target = base + "/translate?" + query.Encode()
		payload = []legacyInput{{Text: req.Text}}
	default:
		target = base + "/translator/text/translate?" + query.Encode()
		payload = previewBody{Inputs: []previewInput{{
			Text:     req.Text,
			Language: req.SourceLang,
			Targets:  []previewTarget{{Language: req.TargetLang}},
		}}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", req.Credential)
	httpReq.Header.Set("X-ClientTraceId", uuid.NewString())
	switch c.cfg.Variant {
	case VariantLegacy:
		if c.cfg.Region != "" {
			httpReq.Header.Set("Ocp-Apim-Subscription-Region", c.cfg.Region)
		}
	case VariantPreview:
		httpReq.Header.Set("Authorization", req.Credential)
	}

	return httpReq, nil
}

// normalizeRequest 去除空白并转小写，缺省语言为 en → ja
func normalizeRequest(req Request, needCredential bool) (Request, error) {
	if strings.TrimSpace(req.Text) == "" {
		return req, &ValidationError{Field: "text", Reason: "must be a non-empty string"}
	}
	req.SourceLang = strings.ToLower(strings.TrimSpace(req.SourceLang))
	if req.SourceLang == "" {
		req.SourceLang = defaultSourceLang
	}
	req.TargetLang = strings.ToLower(strings.TrimSpace(req.TargetLang))
	if req.TargetLang == "" {
		req.TargetLang = defaultTargetLang
	}
	req.Credential = strings.TrimSpace(req.Credential)
	if needCredential && req.Credential == "" {
		return req, &ValidationError{Field: "credential", Reason: "is required"}
	}
	return req, nil
}
