// Package fanout 封装跨进程事件复制总线。
// 每个进程把本地产生的实时事件发布到固定的四个 channel，
// 同时订阅全部 channel 接收对端进程发布的信封。
package fanout

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mrcoder57/chat-express/internal/config"
	"github.com/mrcoder57/chat-express/internal/metrics"
	"github.com/mrcoder57/chat-express/internal/workerpool"
)

// 固定的 channel 划分，所有进程订阅全部 channel
const (
	ChannelMessages   = "messages"
	ChannelTyping     = "typing"
	ChannelStatus     = "status"
	ChannelUserEvents = "user_events"
)

// Channels 启动时订阅的 channel 集合
var Channels = []string{ChannelMessages, ChannelTyping, ChannelStatus, ChannelUserEvents}

const subjectPrefix = "chat.fanout."

// SubjectFor 构建 channel 对应的 NATS subject
func SubjectFor(channel string) string {
	return subjectPrefix + channel
}

// Envelope 跨进程信封，只存在于线路上，从不落库
type Envelope struct {
	Channel   string          `json:"channel"`
	Room      string          `json:"room"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	Origin    string          `json:"origin"`
	Timestamp int64           `json:"timestamp"`
}

// Handler 信封处理函数
// 总线原样交付收到的每个信封，包括本进程自己发布的回声；
// 回环判定由处理方依据 Origin 完成
type Handler func(env *Envelope)

// Bus Fanout 总线
// 进程级单例：发布与订阅共用一个 NATS 连接对，启动时创建，由所有本地连接共享
type Bus struct {
	conn    *nats.Conn
	nodeID  string
	pool    *workerpool.Pool
	handler Handler
	subs    []*nats.Subscription
	logger  *slog.Logger
}

// NewBus 建立 NATS 连接并创建总线
func NewBus(cfg config.NATSConfig, nodeID string, pool *workerpool.Pool) (*Bus, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("Disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("Reconnected to NATS", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			slog.Info("NATS connection closed")
		}),
		nats.Timeout(10 * time.Second),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}

	return &Bus{
		conn:   conn,
		nodeID: nodeID,
		pool:   pool,
		logger: slog.Default(),
	}, nil
}

// NodeID 返回本进程标识
func (b *Bus) NodeID() string {
	return b.nodeID
}

// Conn 返回底层 NATS 连接（健康检查使用）
func (b *Bus) Conn() *nats.Conn {
	return b.conn
}

// Publish 把事件包进信封并发布到指定 channel
// 信封带上本进程标识和当前时间
func (b *Bus) Publish(channel, room, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	env := Envelope{
		Channel:   channel,
		Room:      room,
		Event:     event,
		Payload:   data,
		Origin:    b.nodeID,
		Timestamp: time.Now().UnixMilli(),
	}

	raw, err := json.Marshal(&env)
	if err != nil {
		return err
	}

	if err := b.conn.Publish(SubjectFor(channel), raw); err != nil {
		b.logger.Error("Failed to publish envelope", "channel", channel, "room", room, "event", event, "error", err)
		return err
	}

	metrics.EnvelopesPublished.WithLabelValues(channel).Inc()
	return nil
}

// OnEnvelope 注册信封处理函数，必须在 Start 之前调用
func (b *Bus) OnEnvelope(handler Handler) {
	b.handler = handler
}

// Start 订阅全部 channel
func (b *Bus) Start() error {
	for _, channel := range Channels {
		sub, err := b.conn.Subscribe(SubjectFor(channel), func(msg *nats.Msg) {
			data := msg.Data
			if !b.pool.TrySubmit(func() { b.dispatch(data) }) {
				b.logger.Warn("Fanout worker queue full, dropping envelope", "subject", msg.Subject, "queueDepth", b.pool.Len())
			}
		})
		if err != nil {
			return err
		}
		b.subs = append(b.subs, sub)
	}

	b.logger.Info("Fanout bus subscribed", "channels", Channels, "node_id", b.nodeID)
	return nil
}

// dispatch 解析信封并交给处理函数
func (b *Bus) dispatch(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		b.logger.Error("Failed to unmarshal envelope", "error", err)
		return
	}

	metrics.EnvelopesReceived.WithLabelValues(env.Channel).Inc()

	if b.handler != nil {
		b.handler(&env)
	}
}

// Close 取消订阅并关闭连接
func (b *Bus) Close() {
	for _, sub := range b.subs {
		if err := sub.Unsubscribe(); err != nil {
			b.logger.Error("Failed to unsubscribe", "subject", sub.Subject, "error", err)
		}
	}
	if b.conn != nil {
		b.conn.Close()
	}
}

// IsConnected 检查连接状态
func (b *Bus) IsConnected() bool {
	return b.conn != nil && b.conn.IsConnected()
}
