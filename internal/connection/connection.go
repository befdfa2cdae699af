// Package connection WebTransport 连接的本地表示。
// 出站事件经写队列串行发出，每帧一个新流。
package connection

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/webtransport-go"

	"github.com/mrcoder57/chat-express/internal/protocol"
)

var ErrConnectionClosed = errors.New("connection closed")

var connIDCounter int64

// Connection 表示一个客户端连接
type Connection struct {
	id         int64
	userID     atomic.Int64
	session    *webtransport.Session
	logger     *slog.Logger
	writeChan  chan []byte
	closeChan  chan struct{}
	closeOnce  sync.Once
	createTime time.Time
}

func NewFromWebTransport(session *webtransport.Session, logger *slog.Logger) *Connection {
	id := atomic.AddInt64(&connIDCounter, 1)
	c := &Connection{
		id:         id,
		session:    session,
		logger:     logger,
		writeChan:  make(chan []byte, 256),
		closeChan:  make(chan struct{}),
		createTime: time.Now(),
	}
	go c.writeLoop()
	return c
}

func (c *Connection) ID() int64 {
	return c.id
}

func (c *Connection) UserID() int64 {
	return c.userID.Load()
}

// BindUser 认证成功后绑定用户
func (c *Connection) BindUser(userID int64) {
	c.userID.Store(userID)
}

// Emit 下发一个事件帧
func (c *Connection) Emit(event string, payload any) error {
	body, err := protocol.NewEventBody(event, payload)
	if err != nil {
		return err
	}

	select {
	case c.writeChan <- protocol.EncodeFrame(protocol.MsgTypeEvent, body):
		return nil
	case <-c.closeChan:
		return ErrConnectionClosed
	}
}

// Send 发送一个已编码的帧
func (c *Connection) Send(data []byte) error {
	select {
	case c.writeChan <- data:
		return nil
	case <-c.closeChan:
		return ErrConnectionClosed
	}
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeChan:
			stream, err := c.session.OpenStream()
			if err != nil {
				c.logger.Error("Failed to open stream", "connId", c.id, "error", err)
				continue
			}
			if _, err := stream.Write(data); err != nil {
				c.logger.Error("Failed to write to stream", "connId", c.id, "error", err)
			}
			stream.Close()
		case <-c.closeChan:
			return
		}
	}
}

func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		c.session.CloseWithError(0, "connection closed")
	})
}

func (c *Connection) CreateTime() time.Time {
	return c.createTime
}
