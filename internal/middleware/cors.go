// Package middleware 提供跨域配置，HTTP 接口与 WebSocket 握手共用同一份来源白名单
package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// CORS 返回跨域中间件；白名单为空或包含 "*" 时放行所有来源
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	origins := allowedOrigins
	if allowAll(origins) {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	})
}

// OriginAllowed 判断 WebSocket 握手的 Origin 是否在白名单内
func OriginAllowed(allowedOrigins []string, r *http.Request) bool {
	if allowAll(allowedOrigins) {
		return true
	}
	origin := r.Header.Get("Origin")
	// 非浏览器客户端不带 Origin
	if origin == "" {
		return true
	}
	for _, allowed := range allowedOrigins {
		if strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}
	return false
}

func allowAll(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}
