package speech

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// dialOptions 识别端建连参数
type dialOptions struct {
	HandshakeTimeout time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
}

func (o dialOptions) withDefaults() dialOptions {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 30 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 1
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	return o
}

// dialWithRetry 建立 WebSocket 连接，仅对可重试错误做线性退避重试
func dialWithRetry(ctx context.Context, url string, header http.Header, opts dialOptions, logger *log.Logger) (*websocket.Conn, *http.Response, error) {
	opts = opts.withDefaults()
	dialer := &websocket.Dialer{
		HandshakeTimeout: opts.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}

	var lastErr error
	for i := 0; i < opts.MaxRetries; i++ {
		conn, resp, err := dialer.DialContext(ctx, url, header)
		if err == nil {
			return conn, resp, nil
		}
		lastErr = describeDialError(err, resp)

		// 如果是上下文取消，直接返回
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		if !IsRetryableError(err) || i == opts.MaxRetries-1 {
			break
		}

		logger.Warn("dial failed, retrying", "attempt", i+1, "err", lastErr)
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * opts.RetryDelay):
		}
	}

	return nil, nil, fmt.Errorf("websocket dial failed: %w", lastErr)
}

// describeDialError 握手被拒时把 HTTP 状态码带进错误信息
func describeDialError(err error, resp *http.Response) error {
	if resp != nil && errors.Is(err, websocket.ErrBadHandshake) {
		return fmt.Errorf("%w (status %d)", err, resp.StatusCode)
	}
	return err
}

// IsRetryableError 判断建连错误是否可重试：网络临时错误与异常关闭
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if websocket.IsCloseError(err, websocket.CloseAbnormalClosure, websocket.CloseGoingAway) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
