package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	// 上游每隔几分钟发一次 ping，超过该时间没有任何数据视为连接已死
	readIdleTimeout = 10 * time.Minute
	writeTimeout    = 5 * time.Second
	maxMessageSize  = 8 << 20
)

// Conn 是一条已建立的推送连接，ReadMessage 阻塞直到收到消息或连接关闭
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer 建立推送连接；引擎通过它打开 ticker / K 线连接，测试中可以替换
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WSDialer 基于 gorilla/websocket 的 Dialer
type WSDialer struct {
	dialer websocket.Dialer
	header http.Header
}

// NewWSDialer 创建带握手超时的 websocket Dialer
func NewWSDialer() *WSDialer {
	return &WSDialer{
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

// Dial 连接 url；返回的 Stream 自动回复 ping 并维持读超时
func (d *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := d.dialer.DialContext(ctx, url, d.header)
	if err != nil {
		return nil, NewConnectionError(err)
	}
	return newStream(conn), nil
}

// Stream 包装一条 websocket 连接，Close 可以在任意 goroutine 中重复调用
type Stream struct {
	conn *websocket.Conn

	mu     sync.Mutex // 保护写操作和 closed
	closed bool
}

func newStream(conn *websocket.Conn) *Stream {
	s := &Stream{conn: conn}
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return nil
		}
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})
	return s
}

// ReadMessage 读取下一条文本消息
func (s *Stream) ReadMessage() ([]byte, error) {
	_, message, err := s.conn.ReadMessage()
	if err != nil {
		return nil, NewReadError(err)
	}
	_ = s.conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
	return message, nil
}

// Close 发送关闭帧并关闭底层连接；阻塞中的 ReadMessage 会立即返回错误
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
	s.mu.Unlock()

	if err := s.conn.Close(); err != nil {
		return NewCloseError(err)
	}
	return nil
}
