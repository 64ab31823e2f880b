package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	relayhandler "github.com/zhouzirui/live-interpreter/backend/internal/handler/relay"
	"github.com/zhouzirui/live-interpreter/backend/internal/handler/translate"
	middlewarePkg "github.com/zhouzirui/live-interpreter/backend/internal/middleware"
	"github.com/zhouzirui/live-interpreter/backend/internal/observe"
)

// Deps 路由依赖的处理器与中间件配置
type Deps struct {
	Realtime       *relayhandler.WebSocketHandler
	Translate      *translate.Handler
	Metrics        *observe.Metrics
	AllowedOrigins []string
}

// NewRouter 注册全部 HTTP 路由与中间件
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))
	r.Use(observe.Middleware(deps.Metrics))

	r.Route("/api", func(api chi.Router) {
		// 翻译代理与健康检查
		deps.Translate.RegisterRoutes(api)

		// 实时识别
		if deps.Realtime != nil {
			deps.Realtime.RegisterRoutes(api)
		}
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
