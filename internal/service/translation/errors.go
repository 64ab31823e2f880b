package translation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"
)

// ErrInvalidRequest 所有 ValidationError 都可以用 errors.Is 匹配到它
var ErrInvalidRequest = errors.New("invalid translation request")

// TranslationError 是翻译失败时唯一向上传播的错误形态，
// 携带上游状态码（无状态码时为 500）和上游返回的错误内容。
type TranslationError interface {
	error
	StatusCode() int
	Details() any
}

// ValidationError 调用方输入不合法，在任何网络 I/O 之前返回
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid translation request: %s %s", e.Field, e.Reason)
}

// Is 让 errors.Is(err, ErrInvalidRequest) 成立
func (e *ValidationError) Is(target error) bool { return target == ErrInvalidRequest }

// TransportError 与翻译服务之间的网络故障
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("translator transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusCode 传输失败没有上游状态码
func (e *TransportError) StatusCode() int { return http.StatusInternalServerError }

// Details 返回底层错误消息
func (e *TransportError) Details() any { return e.Err.Error() }

// UpstreamError 翻译服务返回了非 2xx 状态
type UpstreamError struct {
	Status int
	Body   []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("translator returned status %d: %s", e.Status, truncate(string(e.Body), 256))
}

// StatusCode 原样透传上游状态码
func (e *UpstreamError) StatusCode() int { return e.Status }

// Details 上游返回 JSON 时原样嵌入，否则作为字符串返回
func (e *UpstreamError) Details() any {
	if len(e.Body) > 0 && json.Valid(e.Body) {
		return json.RawMessage(e.Body)
	}
	return string(e.Body)
}

// HTTPStatus 将任意错误映射为对外的 HTTP 状态码
func HTTPStatus(err error) int {
	if errors.Is(err, ErrInvalidRequest) {
		return http.StatusBadRequest
	}
	var te TranslationError
	if errors.As(err, &te) {
		return te.StatusCode()
	}
	return http.StatusInternalServerError
}

// Details 提取用于响应体 details 字段的错误信息
func Details(err error) any {
	var te TranslationError
	if errors.As(err, &te) {
		return te.Details()
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Field + " " + ve.Reason
	}
	return err.Error()
}

// truncate 按字节上限截断，切点回退到字符边界
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
