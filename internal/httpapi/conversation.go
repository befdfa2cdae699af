package httpapi

import (
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/mrcoder57/chat-express/internal/errors"
	"github.com/mrcoder57/chat-express/internal/store"
)

// ConversationHandler 会话相关接口
type ConversationHandler struct {
	conversations *store.ConversationStore
	messages      *store.MessageStore
	recent        *store.RecentCache
	logger        *slog.Logger
}

// NewConversationHandler 创建会话接口处理器
func NewConversationHandler(conversations *store.ConversationStore, messages *store.MessageStore, recent *store.RecentCache) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		messages:      messages,
		recent:        recent,
		logger:        slog.Default(),
	}
}

// CreateConversationRequest 创建会话请求体
type CreateConversationRequest struct {
	IsGroup      bool    `json:"isGroup"`
	Participants []int64 `json:"participants" binding:"required"`
	AdminIDs     []int64 `json:"adminIds"`
}

// List 列出当前用户的全部会话
func (h *ConversationHandler) List(c *gin.Context) {
	userID := GetUserID(c)

	convs, err := h.conversations.ListForUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list conversations", "userId", userID, "error", err)
		ErrorFromAppError(c, err)
		return
	}

	Success(c, convs)
}

// Create 创建会话
// 发起者自动进入成员列表；1:1 会话重复创建返回已有会话
func (h *ConversationHandler) Create(c *gin.Context) {
	userID := GetUserID(c)

	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidParams(c, "参数校验失败")
		return
	}

	participants := req.Participants
	found := false
	for _, id := range participants {
		if id == userID {
			found = true
			break
		}
	}
	if !found {
		participants = append(participants, userID)
	}

	conv, err := h.conversations.Create(c.Request.Context(), req.IsGroup, participants, req.AdminIDs)
	if err != nil {
		ErrorFromAppError(c, err)
		return
	}

	Success(c, conv)
}

// Get 查询单个会话
func (h *ConversationHandler) Get(c *gin.Context) {
	userID := GetUserID(c)
	convID := c.Param("id")

	conv, err := h.conversations.Get(c.Request.Context(), convID)
	if err != nil {
		ErrorFromAppError(c, err)
		return
	}
	if !conv.HasParticipant(userID) {
		ErrorFromAppError(c, apperrors.ErrNotParticipant)
		return
	}

	Success(c, conv)
}

// Messages 查询会话近期消息，新的在前
// 优先读缓存，缓存为空再回数据库
func (h *ConversationHandler) Messages(c *gin.Context) {
	userID := GetUserID(c)
	convID := c.Param("id")

	conv, err := h.conversations.Get(c.Request.Context(), convID)
	if err != nil {
		ErrorFromAppError(c, err)
		return
	}
	if !conv.HasParticipant(userID) {
		ErrorFromAppError(c, apperrors.ErrNotParticipant)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	msgs, err := h.recent.List(c.Request.Context(), convID, limit)
	if err != nil {
		h.logger.Warn("Recent cache unavailable, falling back to store", "conversationId", convID, "error", err)
		msgs = nil
	}
	if len(msgs) == 0 {
		msgs, err = h.messages.ListRecent(c.Request.Context(), convID, limit)
		if err != nil {
			ErrorFromAppError(c, err)
			return
		}
	}

	Success(c, msgs)
}
