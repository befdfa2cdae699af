// Package presence 管理临时状态：输入中标记、房间在线标记和用户所在进程指针。
// 全部状态都带 TTL，生命周期由 Redis 的过期机制承担。
package presence

import (
	"context"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Store 临时状态存储
type Store struct {
	client *redis.Client
	nodeID string
	logger *slog.Logger
}

// NewStore 创建临时状态存储
func NewStore(client *redis.Client, nodeID string) *Store {
	return &Store{
		client: client,
		nodeID: nodeID,
		logger: slog.Default(),
	}
}

// StartTyping 设置输入中标记
// 重复 start 刷新 TTL；TTL 绝不能省略，过期是唯一保证的清理路径
func (s *Store) StartTyping(ctx context.Context, userID int64, conversationID string) error {
	key := BuildTypingKey(conversationID, userID)
	return s.client.Set(ctx, key, 1, TypingTTL).Err()
}

// StopTyping 显式删除输入中标记
func (s *Store) StopTyping(ctx context.Context, userID int64, conversationID string) error {
	key := BuildTypingKey(conversationID, userID)
	return s.client.Del(ctx, key).Err()
}

// IsTyping 查询输入中标记是否存在
func (s *Store) IsTyping(ctx context.Context, userID int64, conversationID string) (bool, error) {
	key := BuildTypingKey(conversationID, userID)
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetOnline 写入房间在线标记
func (s *Store) SetOnline(ctx context.Context, userID int64, conversationID string) error {
	key := BuildOnlineKey(conversationID, userID)
	return s.client.Set(ctx, key, s.nodeID, OnlineTTL).Err()
}

// ClearOnline 删除房间在线标记
func (s *Store) ClearOnline(ctx context.Context, userID int64, conversationID string) error {
	key := BuildOnlineKey(conversationID, userID)
	return s.client.Del(ctx, key).Err()
}

// RegisterNode 写入用户所在进程指针，连接建立时调用
func (s *Store) RegisterNode(ctx context.Context, userID int64) error {
	key := BuildNodePointerKey(userID)
	err := s.client.Set(ctx, key, s.nodeID, NodePointerTTL).Err()
	if err == nil {
		s.logger.Debug("Registered node pointer", "userId", userID, "nodeId", s.nodeID)
	}
	return err
}

// RefreshNode 续期用户所在进程指针
func (s *Store) RefreshNode(ctx context.Context, userID int64) error {
	key := BuildNodePointerKey(userID)
	return s.client.Expire(ctx, key, NodePointerTTL).Err()
}

// DropNode 删除用户所在进程指针，断开连接时调用
func (s *Store) DropNode(ctx context.Context, userID int64) error {
	key := BuildNodePointerKey(userID)
	return s.client.Del(ctx, key).Err()
}

// NodeOf 查询用户所在进程，用户不在线返回空串
func (s *Store) NodeOf(ctx context.Context, userID int64) (string, error) {
	key := BuildNodePointerKey(userID)
	node, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return node, err
}
