// Package orchestrator 实时事件的协调中枢。
// 接收连接上的入站事件，驱动投递状态机，经存储层落库后
// 先向本地房间下发，再发布到 Fanout 总线让对端进程转发。
package orchestrator

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/mrcoder57/chat-express/internal/auth"
	"github.com/mrcoder57/chat-express/internal/delivery"
	apperrors "github.com/mrcoder57/chat-express/internal/errors"
	"github.com/mrcoder57/chat-express/internal/fanout"
	"github.com/mrcoder57/chat-express/internal/metrics"
	"github.com/mrcoder57/chat-express/internal/model"
	"github.com/mrcoder57/chat-express/internal/session"
	"github.com/mrcoder57/chat-express/internal/snowflake"
)

// ConversationStore 会话持久化依赖
type ConversationStore interface {
	Get(ctx context.Context, id string) (*model.Conversation, error)
	SetLastMessage(ctx context.Context, conversationID string, messageID int64) error
	IncrementUnread(ctx context.Context, conversationID string, exceptUserID int64) error
	ResetUnread(ctx context.Context, conversationID string, userID int64) error
}

// MessageStore 消息持久化依赖
type MessageStore interface {
	Insert(ctx context.Context, msg *model.Message) error
	Get(ctx context.Context, id int64) (*model.Message, error)
	UpdateDelivery(ctx context.Context, id int64, records []model.DeliveryRecord) error
	UpdateReactions(ctx context.Context, id int64, reactions []model.Reaction) error
	ListWithUndelivered(ctx context.Context, conversationID string) ([]*model.Message, error)
}

// RecentCache 近期消息缓存依赖
type RecentCache interface {
	Append(ctx context.Context, msg *model.Message) error
}

// PresenceStore 短时状态依赖（输入中、在线标记、节点指针）
type PresenceStore interface {
	StartTyping(ctx context.Context, userID int64, conversationID string) error
	StopTyping(ctx context.Context, userID int64, conversationID string) error
	SetOnline(ctx context.Context, userID int64, conversationID string) error
	ClearOnline(ctx context.Context, userID int64, conversationID string) error
	RegisterNode(ctx context.Context, userID int64) error
	RefreshNode(ctx context.Context, userID int64) error
	DropNode(ctx context.Context, userID int64) error
}

// Publisher Fanout 总线的发布侧依赖
type Publisher interface {
	Publish(channel, room, event string, payload any) error
	NodeID() string
}

// TokenVerifier 握手认证依赖
type TokenVerifier interface {
	Verify(tokenString string) (*auth.Claims, error)
}

// Orchestrator 聊天协调器
// 每个进程一个实例，被所有本地连接共享
type Orchestrator struct {
	registry      *session.Registry
	conversations ConversationStore
	messages      MessageStore
	recent        RecentCache
	presence      PresenceStore
	bus           Publisher
	verifier      TokenVerifier
	ids           *snowflake.Node
	logger        *slog.Logger
}

// New 创建协调器
func New(
	registry *session.Registry,
	conversations ConversationStore,
	messages MessageStore,
	recent RecentCache,
	presence PresenceStore,
	bus Publisher,
	verifier TokenVerifier,
	ids *snowflake.Node,
) *Orchestrator {
	return &Orchestrator{
		registry:      registry,
		conversations: conversations,
		messages:      messages,
		recent:        recent,
		presence:      presence,
		bus:           bus,
		verifier:      verifier,
		ids:           ids,
		logger:        slog.Default(),
	}
}

// PersonalRoom 用户个人房间名，定向下发走这个房间
func PersonalRoom(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}

// HandleConnect 握手认证
// 认证失败直接拒绝连接，此时不会有任何状态写入
func (o *Orchestrator) HandleConnect(ctx context.Context, conn session.Conn, token string) (int64, error) {
	claims, err := o.verifier.Verify(token)
	if err != nil {
		return 0, err
	}

	o.registry.Bind(conn, claims.UserID)
	o.registry.JoinRoom(conn, PersonalRoom(claims.UserID))

	if err := o.presence.RegisterNode(ctx, claims.UserID); err != nil {
		o.logger.Warn("Failed to register node pointer", "userId", claims.UserID, "error", err)
	}

	metrics.ActiveConnections.Inc()
	o.logger.Info("Connection authenticated", "connId", conn.ID(), "userId", claims.UserID)
	return claims.UserID, nil
}

// HandleHeartbeat 心跳，只刷新节点指针的 TTL
func (o *Orchestrator) HandleHeartbeat(ctx context.Context, conn session.Conn) {
	userID := o.registry.UserOf(conn)
	if userID == 0 {
		return
	}
	if err := o.presence.RefreshNode(ctx, userID); err != nil {
		o.logger.Warn("Failed to refresh node pointer", "userId", userID, "error", err)
	}
}

// HandleJoin 加入会话房间
// 补投递：把该会话里所有未投递的记录标记为已投递（加入者自己的记录除外）
func (o *Orchestrator) HandleJoin(ctx context.Context, conn session.Conn, conversationID string) error {
	userID := o.registry.UserOf(conn)
	if userID == 0 {
		return apperrors.ErrTokenMissing
	}

	conv, err := o.conversations.Get(ctx, conversationID)
	if err != nil {
		o.emitError(conn, EventJoinChat, err)
		return err
	}
	if !conv.HasParticipant(userID) {
		o.emitError(conn, EventJoinChat, apperrors.ErrNotParticipant)
		return apperrors.ErrNotParticipant
	}

	o.registry.JoinRoom(conn, conversationID)

	if err := o.presence.SetOnline(ctx, userID, conversationID); err != nil {
		o.logger.Warn("Failed to set online marker", "userId", userID, "conversationId", conversationID, "error", err)
	}

	o.catchUpDelivery(ctx, conversationID, userID)

	payload := &MembershipPayload{UserID: userID, ConversationID: conversationID}
	o.emitLocal(conversationID, EventUserJoined, payload)
	o.publish(fanout.ChannelUserEvents, conversationID, EventUserJoined, payload)
	return nil
}

// catchUpDelivery 扫描会话中带未投递记录的消息并逐条落库
// 单条失败只记日志，不影响剩余消息
func (o *Orchestrator) catchUpDelivery(ctx context.Context, conversationID string, joinerID int64) {
	msgs, err := o.messages.ListWithUndelivered(ctx, conversationID)
	if err != nil {
		o.logger.Error("Failed to scan undelivered messages", "conversationId", conversationID, "error", err)
		return
	}

	for _, msg := range msgs {
		changed, err := delivery.MarkDeliveredForJoiner(msg.Delivery, joinerID)
		if err != nil {
			// 加入者在这条消息里没有投递记录，跳过
			o.logger.Debug("Joiner has no delivery record", "messageId", msg.ID, "userId", joinerID)
			continue
		}
		if !changed {
			continue
		}
		if err := o.messages.UpdateDelivery(ctx, msg.ID, msg.Delivery); err != nil {
			o.logger.Error("Failed to persist delivery marks", "messageId", msg.ID, "error", err)
		}
	}
}

// HandleSendMessage 发送消息
// 顺序固定：落库 -> 本地下发 -> 总线发布，保证对端收到事件时消息已可读
func (o *Orchestrator) HandleSendMessage(ctx context.Context, conn session.Conn, payload *SendMessagePayload) error {
	userID := o.registry.UserOf(conn)
	if userID == 0 {
		return apperrors.ErrTokenMissing
	}

	if !payload.ContentType.Valid() {
		o.emitError(conn, EventMessageSend, apperrors.ErrInvalidContentType)
		return apperrors.ErrInvalidContentType
	}
	if payload.Content == "" && payload.Media == nil {
		o.emitError(conn, EventMessageSend, apperrors.ErrEmptyContent)
		return apperrors.ErrEmptyContent
	}

	conv, err := o.conversations.Get(ctx, payload.ConversationID)
	if err != nil {
		o.emitError(conn, EventMessageSend, err)
		return err
	}
	if !conv.HasParticipant(userID) {
		o.emitError(conn, EventMessageSend, apperrors.ErrNotParticipant)
		return apperrors.ErrNotParticipant
	}

	now := time.Now()
	msg := &model.Message{
		ID:             o.ids.Generate().Int64(),
		ConversationID: conv.ID,
		SenderID:       userID,
		ContentType:    payload.ContentType,
		Content:        payload.Content,
		Media:          payload.Media,
		ReplyTo:        payload.ReplyTo,
		Delivery:       delivery.Initialize(conv.Participants, userID),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := o.messages.Insert(ctx, msg); err != nil {
		o.logger.Error("Failed to persist message", "conversationId", conv.ID, "error", err)
		o.emitError(conn, EventMessageSend, err)
		return err
	}

	if err := o.conversations.SetLastMessage(ctx, conv.ID, msg.ID); err != nil {
		o.logger.Error("Failed to update last message pointer", "conversationId", conv.ID, "error", err)
	}
	if err := o.conversations.IncrementUnread(ctx, conv.ID, userID); err != nil {
		o.logger.Error("Failed to increment unread counters", "conversationId", conv.ID, "error", err)
	}
	if err := o.recent.Append(ctx, msg); err != nil {
		o.logger.Warn("Failed to append recent cache", "conversationId", conv.ID, "error", err)
	}

	o.emitLocal(conv.ID, EventMessageNew, msg)
	o.publish(fanout.ChannelMessages, conv.ID, EventMessageNew, msg)
	return nil
}

// HandleRead 单条已读回执
// 重复已读是 no-op：不落库也不广播
func (o *Orchestrator) HandleRead(ctx context.Context, conn session.Conn, payload *ReadPayload) error {
	userID := o.registry.UserOf(conn)
	if userID == 0 {
		return apperrors.ErrTokenMissing
	}

	msg, err := o.messages.Get(ctx, payload.MessageID)
	if err != nil {
		o.emitError(conn, EventMessageRead, err)
		return err
	}

	changed, err := delivery.MarkRead(msg.Delivery, userID)
	if err != nil {
		o.emitError(conn, EventMessageRead, err)
		return err
	}
	if !changed {
		return nil
	}

	if err := o.messages.UpdateDelivery(ctx, msg.ID, msg.Delivery); err != nil {
		o.logger.Error("Failed to persist read mark", "messageId", msg.ID, "error", err)
		o.emitError(conn, EventMessageRead, err)
		return err
	}
	if err := o.conversations.ResetUnread(ctx, msg.ConversationID, userID); err != nil {
		o.logger.Warn("Failed to reset unread counter", "conversationId", msg.ConversationID, "error", err)
	}

	receipt := &ReadReceiptPayload{MessageID: msg.ID, ConversationID: msg.ConversationID, UserID: userID}
	o.emitLocal(msg.ConversationID, EventMessageRead, receipt)
	o.publish(fanout.ChannelStatus, msg.ConversationID, EventMessageRead, receipt)
	return nil
}

// HandleBulkRead 批量已读回执
// 只广播本次实际发生状态变更的消息，全部已读时保持沉默
func (o *Orchestrator) HandleBulkRead(ctx context.Context, conn session.Conn, payload *BulkReadPayload) error {
	userID := o.registry.UserOf(conn)
	if userID == 0 {
		return apperrors.ErrTokenMissing
	}

	changedIDs := make([]int64, 0, len(payload.MessageIDs))
	for _, msgID := range payload.MessageIDs {
		msg, err := o.messages.Get(ctx, msgID)
		if err != nil {
			o.logger.Warn("Skipping unknown message in bulk read", "messageId", msgID, "error", err)
			continue
		}

		changed, err := delivery.MarkRead(msg.Delivery, userID)
		if err != nil {
			o.logger.Warn("Skipping message without delivery record", "messageId", msgID, "userId", userID)
			continue
		}
		if !changed {
			continue
		}

		if err := o.messages.UpdateDelivery(ctx, msg.ID, msg.Delivery); err != nil {
			o.logger.Error("Failed to persist read mark", "messageId", msg.ID, "error", err)
			continue
		}
		changedIDs = append(changedIDs, msg.ID)
	}

	if len(changedIDs) == 0 {
		return nil
	}

	if err := o.conversations.ResetUnread(ctx, payload.ConversationID, userID); err != nil {
		o.logger.Warn("Failed to reset unread counter", "conversationId", payload.ConversationID, "error", err)
	}

	receipt := &BulkReadReceiptPayload{ConversationID: payload.ConversationID, MessageIDs: changedIDs, UserID: userID}
	o.emitLocal(payload.ConversationID, EventMessagesRead, receipt)
	o.publish(fanout.ChannelStatus, payload.ConversationID, EventMessagesRead, receipt)
	return nil
}

// HandleReact 表情回应
// 同一用户重复同一表情视为取消，广播消息当前的完整回应列表
func (o *Orchestrator) HandleReact(ctx context.Context, conn session.Conn, payload *ReactPayload) error {
	userID := o.registry.UserOf(conn)
	if userID == 0 {
		return apperrors.ErrTokenMissing
	}

	msg, err := o.messages.Get(ctx, payload.MessageID)
	if err != nil {
		o.emitError(conn, EventMessageReact, err)
		return err
	}

	reactions := make([]model.Reaction, 0, len(msg.Reactions)+1)
	removed := false
	for _, r := range msg.Reactions {
		if r.UserID == userID && r.Emoji == payload.Emoji {
			removed = true
			continue
		}
		reactions = append(reactions, r)
	}
	if !removed {
		reactions = append(reactions, model.Reaction{UserID: userID, Emoji: payload.Emoji})
	}

	if err := o.messages.UpdateReactions(ctx, msg.ID, reactions); err != nil {
		o.logger.Error("Failed to persist reactions", "messageId", msg.ID, "error", err)
		o.emitError(conn, EventMessageReact, err)
		return err
	}

	update := &ReactionUpdatePayload{MessageID: msg.ID, ConversationID: msg.ConversationID, Reactions: reactions}
	o.emitLocal(msg.ConversationID, EventMessageReact, update)
	o.publish(fanout.ChannelMessages, msg.ConversationID, EventMessageReact, update)
	return nil
}

// HandleTyping 输入中信号
// start 刷新 TTL，stop 显式删除；崩溃场景由 TTL 自动回收
func (o *Orchestrator) HandleTyping(ctx context.Context, conn session.Conn, conversationID string, isTyping bool) error {
	userID := o.registry.UserOf(conn)
	if userID == 0 {
		return apperrors.ErrTokenMissing
	}

	var err error
	if isTyping {
		err = o.presence.StartTyping(ctx, userID, conversationID)
	} else {
		err = o.presence.StopTyping(ctx, userID, conversationID)
	}
	if err != nil {
		o.logger.Warn("Failed to update typing flag", "userId", userID, "conversationId", conversationID, "error", err)
	}

	payload := &TypingUpdatePayload{UserID: userID, ConversationID: conversationID, IsTyping: isTyping}
	o.emitLocal(conversationID, EventTypingUpdate, payload)
	o.publish(fanout.ChannelTyping, conversationID, EventTypingUpdate, payload)
	return nil
}

// HandleDisconnect 连接断开清理
// LeaveAll 的返回值是要清理的房间的唯一事实来源
func (o *Orchestrator) HandleDisconnect(ctx context.Context, conn session.Conn) {
	userID := o.registry.UserOf(conn)
	rooms := o.registry.LeaveAll(conn)
	if userID == 0 {
		return
	}

	personal := PersonalRoom(userID)
	for _, room := range rooms {
		if room == personal {
			continue
		}

		if err := o.presence.ClearOnline(ctx, userID, room); err != nil {
			o.logger.Warn("Failed to clear online marker", "userId", userID, "room", room, "error", err)
		}
		if err := o.presence.StopTyping(ctx, userID, room); err != nil {
			o.logger.Warn("Failed to clear typing flag", "userId", userID, "room", room, "error", err)
		}

		payload := &MembershipPayload{UserID: userID, ConversationID: room}
		o.emitLocal(room, EventUserLeft, payload)
		o.publish(fanout.ChannelUserEvents, room, EventUserLeft, payload)
	}

	if err := o.presence.DropNode(ctx, userID); err != nil {
		o.logger.Warn("Failed to drop node pointer", "userId", userID, "error", err)
	}

	metrics.ActiveConnections.Dec()
	o.logger.Info("Connection closed", "connId", conn.ID(), "userId", userID, "rooms", len(rooms))
}

// HandleEnvelope 对端信封处理
// 自己发布的回声直接丢弃：本地下发在发布前已经同步完成
func (o *Orchestrator) HandleEnvelope(env *fanout.Envelope) {
	if env.Origin == o.bus.NodeID() {
		metrics.EnvelopesDiscardedSelf.Inc()
		return
	}

	for _, conn := range o.registry.LocalMembers(env.Room) {
		if err := conn.Emit(env.Event, env.Payload); err != nil {
			o.logger.Warn("Failed to re-emit peer event", "connId", conn.ID(), "event", env.Event, "error", err)
		}
	}
}

// emitLocal 向本地房间的全部连接下发事件
func (o *Orchestrator) emitLocal(room, event string, payload any) {
	for _, conn := range o.registry.LocalMembers(room) {
		if err := conn.Emit(event, payload); err != nil {
			metrics.EventErrors.WithLabelValues(event).Inc()
			o.logger.Warn("Failed to emit event", "connId", conn.ID(), "event", event, "error", err)
			continue
		}
		metrics.EventsEmitted.WithLabelValues(event).Inc()
	}
}

// publish 发布到 Fanout 总线，失败只记日志，不中断当前事件
func (o *Orchestrator) publish(channel, room, event string, payload any) {
	if err := o.bus.Publish(channel, room, event, payload); err != nil {
		metrics.EventErrors.WithLabelValues(event).Inc()
		o.logger.Error("Failed to publish to fanout bus", "channel", channel, "event", event, "error", err)
	}
}

// emitError 把失败只回给发起连接
func (o *Orchestrator) emitError(conn session.Conn, event string, err error) {
	payload := &ErrorPayload{
		Event:   event,
		Code:    apperrors.GetCode(err),
		Message: apperrors.GetMessage(err),
	}
	if emitErr := conn.Emit(EventMessageError, payload); emitErr != nil {
		o.logger.Warn("Failed to emit error event", "connId", conn.ID(), "error", emitErr)
	}
}
