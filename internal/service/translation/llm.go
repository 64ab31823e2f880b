package translation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/live-interpreter/backend/internal/observe"
)

// chatGenerator 是 model.ChatModel 中翻译用到的那一部分，便于测试替换
type chatGenerator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

var languageNames = map[string]string{
	"en": "English",
	"ja": "Japanese",
	"zh": "Chinese",
	"ko": "Korean",
}

// LLMTranslator 通过 Ark 大模型完成翻译，凭证来自服务端配置，
// 因此忽略请求里的 Credential。
type LLMTranslator struct {
	model   chatGenerator
	metrics *observe.Metrics
	logger  *log.Logger
}

// NewLLMTranslator 使用已初始化的聊天模型创建翻译器
func NewLLMTranslator(m model.ChatModel, metrics *observe.Metrics) *LLMTranslator {
	return newLLMTranslator(m, metrics)
}

func newLLMTranslator(m chatGenerator, metrics *observe.Metrics) *LLMTranslator {
	return &LLMTranslator{
		model:   m,
		metrics: metrics,
		logger:  log.WithPrefix("translate"),
	}
}

// Translate 构造系统提示词并取模型回复作为译文
func (t *LLMTranslator) Translate(ctx context.Context, req Request) (Result, error) {
	req, err := normalizeRequest(req, false)
	if err != nil {
		return Result{}, err
	}

	messages := []*schema.Message{
		schema.SystemMessage(buildTranslationPrompt(req.SourceLang, req.TargetLang)),
		schema.UserMessage(req.Text),
	}

	start := time.Now()
	resp, err := t.model.Generate(ctx, messages)
	if err != nil {
		t.metrics.RecordTranslation(ctx, string(VariantLLM), "error", time.Since(start).Seconds())
		t.logger.Warn("llm translation failed", "from", req.SourceLang, "to", req.TargetLang, "err", err)
		return Result{}, &TransportError{Err: fmt.Errorf("generate: %w", err)}
	}
	t.metrics.RecordTranslation(ctx, string(VariantLLM), "ok", time.Since(start).Seconds())

	if resp == nil {
		return Result{}, nil
	}
	return Result{Text: strings.TrimSpace(resp.Content)}, nil
}

func buildTranslationPrompt(source, target string) string {
	return fmt.Sprintf(
		"You are a professional interpreter. Translate the user's %s text into %s. "+
			"Reply with the translation only.",
		languageName(source), languageName(target),
	)
}

func languageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}
