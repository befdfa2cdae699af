package orchestrator

import "github.com/mrcoder57/chat-express/internal/model"

// 入站事件
const (
	EventJoinChat     = "join:chat"
	EventMessageSend  = "message:send"
	EventMessageRead  = "message:read"
	EventMessagesRead = "messages:read"
	EventTypingStart  = "typing:start"
	EventTypingStop   = "typing:stop"
	EventMessageReact = "message:react"
)

// 出站事件
const (
	EventMessageNew   = "message:new"
	EventMessageError = "message:error"
	EventTypingUpdate = "typing:update"
	EventUserJoined   = "user:joined"
	EventUserLeft     = "user:left"
)

// SendMessagePayload message:send 请求体
type SendMessagePayload struct {
	ConversationID string               `json:"conversationId"`
	Content        string               `json:"content"`
	ContentType    model.ContentType    `json:"contentType"`
	Media          *model.MediaMetadata `json:"mediaMetadata,omitempty"`
	ReplyTo        *int64               `json:"replyTo,omitempty"`
}

// ReadPayload message:read 请求体
type ReadPayload struct {
	MessageID      int64  `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

// BulkReadPayload messages:read 请求体
type BulkReadPayload struct {
	ConversationID string  `json:"conversationId"`
	MessageIDs     []int64 `json:"messageIds"`
}

// ReadReceiptPayload message:read 广播体
type ReadReceiptPayload struct {
	MessageID      int64  `json:"messageId"`
	ConversationID string `json:"conversationId"`
	UserID         int64  `json:"userId"`
}

// BulkReadReceiptPayload messages:read 广播体，只包含本次实际变更的消息
type BulkReadReceiptPayload struct {
	ConversationID string  `json:"conversationId"`
	MessageIDs     []int64 `json:"messageIds"`
	UserID         int64   `json:"userId"`
}

// ReactPayload message:react 请求体，重复发送同一表情表示取消
type ReactPayload struct {
	MessageID int64  `json:"messageId"`
	Emoji     string `json:"emoji"`
}

// ReactionUpdatePayload message:react 广播体，带消息当前的完整回应列表
type ReactionUpdatePayload struct {
	MessageID      int64            `json:"messageId"`
	ConversationID string           `json:"conversationId"`
	Reactions      []model.Reaction `json:"reactions"`
}

// TypingUpdatePayload typing:update 广播体
type TypingUpdatePayload struct {
	UserID         int64  `json:"userId"`
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

// MembershipPayload user:joined / user:left 广播体
type MembershipPayload struct {
	UserID         int64  `json:"userId"`
	ConversationID string `json:"conversationId"`
}

// ErrorPayload message:error 下发体，只发给出错事件的发起连接
type ErrorPayload struct {
	Event   string `json:"event"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}
