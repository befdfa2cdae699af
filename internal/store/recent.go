package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/mrcoder57/chat-express/internal/errors"
	"github.com/mrcoder57/chat-express/internal/model"
)

const (
	// recentCap 每个会话缓存的消息上限
	recentCap = 100
)

// BuildRecentKey 会话近期消息缓存 Key
// Key: chat:recent:{conversationId}，ZSET，score 为发送时间毫秒
func BuildRecentKey(conversationID string) string {
	return fmt.Sprintf("chat:recent:%s", conversationID)
}

// RecentCache 会话近期消息缓存（基于 Redis）
// 发消息时追加，按发送时间排序并裁剪到固定容量，近期历史读取不回源
type RecentCache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRecentCache 创建近期消息缓存
func NewRecentCache(client *redis.Client) *RecentCache {
	return &RecentCache{
		client: client,
		logger: slog.Default(),
	}
}

// Append 追加一条消息并裁剪超出容量的旧消息
func (c *RecentCache) Append(ctx context.Context, msg *model.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return apperrors.ErrServerError.Wrap(err)
	}

	key := BuildRecentKey(msg.ConversationID)

	pipe := c.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(msg.CreatedAt.UnixMilli()), Member: data})
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-(recentCap + 1)))
	_, err = pipe.Exec(ctx)
	if err != nil {
		return apperrors.ErrCacheError.Wrap(err)
	}
	return nil
}

// List 返回会话缓存的近期消息，新的在前
func (c *RecentCache) List(ctx context.Context, conversationID string, limit int) ([]*model.Message, error) {
	if limit <= 0 || limit > recentCap {
		limit = recentCap
	}

	key := BuildRecentKey(conversationID)
	members, err := c.client.ZRevRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, apperrors.ErrCacheError.Wrap(err)
	}

	messages := make([]*model.Message, 0, len(members))
	for _, m := range members {
		var msg model.Message
		if err := json.Unmarshal([]byte(m), &msg); err != nil {
			// 缓存里坏掉的条目跳过，不影响其余结果
			c.logger.Warn("Skipping malformed cached message", "conversationId", conversationID, "error", err)
			continue
		}
		messages = append(messages, &msg)
	}

	return messages, nil
}
