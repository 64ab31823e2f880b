// Package translate 提供文本翻译代理与健康检查接口
package translate

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/live-interpreter/backend/internal/service/translation"
	"github.com/zhouzirui/live-interpreter/backend/pkg/utils"
)

// Config 翻译接口配置
type Config struct {
	// DefaultKey 请求未携带 subscription_key 时使用
	DefaultKey string
	// RequireCredential 为 false 时不校验密钥（LLM 翻译）
	RequireCredential bool
}

// Handler 翻译接口处理器
type Handler struct {
	translator translation.Translator
	cfg        Config
	logger     *log.Logger
}

// New 创建翻译处理器；translator 为空时翻译接口返回 503
func New(translator translation.Translator, cfg Config) *Handler {
	return &Handler{
		translator: translator,
		cfg:        cfg,
		logger:     log.WithPrefix("translate"),
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/translate", h.translate)
	r.Get("/health", h.health)
}

type translateRequest struct {
	Text            []string `json:"text"`
	SourceLang      string   `json:"source_lang"`
	TargetLang      string   `json:"target_lang"`
	SubscriptionKey string   `json:"subscription_key"`
}

type translatedText struct {
	Text string `json:"text"`
}

type translateResponse struct {
	Translations []translatedText `json:"translations"`
}

// maxRequestBytes 请求体上限，只会用到 text[0]
const maxRequestBytes = 64 << 10

func (h *Handler) translate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondErrorDetails(w, http.StatusRequestEntityTooLarge, "Invalid request", "request body too large")
			return
		}
		utils.RespondErrorDetails(w, http.StatusBadRequest, "Invalid request", "request body must be JSON")
		return
	}

	credential := strings.TrimSpace(req.SubscriptionKey)
	if credential == "" {
		credential = h.cfg.DefaultKey
	}
	if h.cfg.RequireCredential && credential == "" {
		utils.RespondErrorDetails(w, http.StatusBadRequest, "Missing API key", "subscription_key is required")
		return
	}

	if len(req.Text) == 0 || strings.TrimSpace(req.Text[0]) == "" {
		utils.RespondErrorDetails(w, http.StatusBadRequest, "Invalid request", "text array is required")
		return
	}

	if h.translator == nil {
		utils.RespondErrorDetails(w, http.StatusServiceUnavailable, "Translation failed", "translator is not configured")
		return
	}

	res, err := h.translator.Translate(r.Context(), translation.Request{
		Text:       req.Text[0],
		SourceLang: req.SourceLang,
		TargetLang: req.TargetLang,
		Credential: credential,
	})
	if err != nil {
		status := translation.HTTPStatus(err)
		h.logger.Warn("translation failed", "status", status, "err", err)
		utils.RespondErrorDetails(w, status, "Translation failed", translation.Details(err))
		return
	}

	utils.RespondJSON(w, http.StatusOK, translateResponse{
		Translations: []translatedText{{Text: res.Text}},
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
