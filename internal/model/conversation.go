package model

import "time"

// ParticipantSetting 会话成员设置
// 每个成员恰好一条记录
type ParticipantSetting struct {
	UserID      int64 `json:"userId"`
	Muted       bool  `json:"muted"`
	UnreadCount int   `json:"unreadCount"`
}

// Conversation 会话实体
// 单聊恰好 2 个成员，群聊至少 3 个；管理员必须是成员，且仅群聊有管理员
type Conversation struct {
	ID            string               `json:"id"`
	IsGroup       bool                 `json:"isGroup"`
	Participants  []int64              `json:"participants"`
	AdminIDs      []int64              `json:"adminIds,omitempty"`
	LastMessageID *int64               `json:"lastMessageId,omitempty"`
	Settings      []ParticipantSetting `json:"settings"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

// HasParticipant 判断用户是否为会话成员
func (c *Conversation) HasParticipant(userID int64) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}
