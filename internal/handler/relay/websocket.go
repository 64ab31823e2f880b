// Package relay 提供实时识别的 WebSocket 入口
package relay

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/live-interpreter/backend/internal/middleware"
	relaymodel "github.com/zhouzirui/live-interpreter/backend/internal/model/relay"
	relaysvc "github.com/zhouzirui/live-interpreter/backend/internal/service/relay"
)

// Config WebSocket 连接参数
type Config struct {
	PingInterval         time.Duration
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	AllowedOrigins       []string
	TranslatorConfigured bool
	Session              relaysvc.Options
}

func (c Config) withDefaults() Config {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.ReadTimeout {
		c.PingInterval = c.ReadTimeout * 9 / 10
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}

// WebSocketHandler 实时识别 WebSocket 处理器
type WebSocketHandler struct {
	recognizers relaysvc.Recognizers
	registry    *relaysvc.Registry
	cfg         Config
	upgrader    websocket.Upgrader
	logger      *log.Logger
}

// NewWebSocketHandler 创建WebSocket处理器；recognizers 为空时 start 会返回错误提示
func NewWebSocketHandler(recognizers relaysvc.Recognizers, registry *relaysvc.Registry, cfg Config) *WebSocketHandler {
	cfg = cfg.withDefaults()
	origins := cfg.AllowedOrigins
	return &WebSocketHandler{
		recognizers: recognizers,
		registry:    registry,
		cfg:         cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return middleware.OriginAllowed(origins, r)
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
		},
		logger: log.WithPrefix("websocket"),
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/realtime", h.handleWebSocket)
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", "err", err)
		return
	}

	sessionID := uuid.NewString()
	sender := newConnSender(conn, h.cfg.WriteTimeout)
	session := relaysvc.NewSession(r.Context(), sessionID, sender, h.recognizers, h.cfg.Session)
	if !h.registry.Add(session) {
		h.logger.Error("duplicate session id", "session", sessionID)
		conn.Close()
		return
	}

	var once sync.Once
	teardown := func() {
		once.Do(func() {
			h.registry.Remove(sessionID)
			session.Close()
			<-session.Done()
			sender.close()
			conn.Close()
		})
	}
	defer teardown()

	// 会话只响应客户端消息，config 一定先于其他消息到达
	go session.Run()
	if err := sender.Send(relaymodel.NewConfig(h.cfg.TranslatorConfigured)); err != nil {
		h.logger.Warn("send config failed", "session", sessionID, "err", err)
		return
	}

	// 会话自行结束（写失败或进程退出）时中断读循环
	go func() {
		<-session.Done()
		conn.Close()
	}()
	go h.pingLoop(session.Done(), sender)

	conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.logger.Warn("read error", "session", sessionID, "err", err)
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))

		if !session.Post(data) {
			return
		}
	}
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(done <-chan struct{}, sender *connSender) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := sender.ping(); err != nil {
				return
			}
		}
	}
}

var errSenderClosed = errors.New("websocket sender closed")

// connSender 串行化对连接的写入，关闭后的写入直接返回错误
type connSender struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
	closed       bool
}

func newConnSender(conn *websocket.Conn, writeTimeout time.Duration) *connSender {
	return &connSender{conn: conn, writeTimeout: writeTimeout}
}

func (c *connSender) Send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errSenderClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *connSender) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errSenderClosed
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

func (c *connSender) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}
