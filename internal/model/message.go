package model

import "time"

// ContentType 消息内容类型
type ContentType string

const (
	ContentTypeText     ContentType = "text"     // 文本
	ContentTypeImage    ContentType = "image"    // 图片
	ContentTypeVideo    ContentType = "video"    // 视频
	ContentTypeAudio    ContentType = "audio"    // 语音
	ContentTypeFile     ContentType = "file"     // 文件
	ContentTypeLocation ContentType = "location" // 位置
	ContentTypeSystem   ContentType = "system"   // 系统消息
)

// Valid 校验内容类型
func (t ContentType) Valid() bool {
	switch t {
	case ContentTypeText, ContentTypeImage, ContentTypeVideo,
		ContentTypeAudio, ContentTypeFile, ContentTypeLocation, ContentTypeSystem:
		return true
	}
	return false
}

// DeliveryRecord 单个接收者的投递状态
// 每条消息对每个会话成员恰好保留一条记录
type DeliveryRecord struct {
	UserID      int64      `json:"userId"`
	Sent        bool       `json:"sent"`
	Delivered   bool       `json:"delivered"`
	Read        bool       `json:"read"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
}

// MediaMetadata 媒体消息附加信息
type MediaMetadata struct {
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Duration int    `json:"duration,omitempty"` // 秒，音视频使用
}

// Reaction 消息表情回应
type Reaction struct {
	UserID int64  `json:"userId"`
	Emoji  string `json:"emoji"`
}

// Message 消息实体
// 创建后除投递状态和 Reactions 外不可变
type Message struct {
	ID             int64            `json:"id"`
	ConversationID string           `json:"conversationId"`
	SenderID       int64            `json:"senderId"`
	ContentType    ContentType      `json:"contentType"`
	Content        string           `json:"content"`
	Media          *MediaMetadata   `json:"media,omitempty"`
	ReplyTo        *int64           `json:"replyTo,omitempty"`
	Delivery       []DeliveryRecord `json:"delivery"`
	Reactions      []Reaction       `json:"reactions,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}
