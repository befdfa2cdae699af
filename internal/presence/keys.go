package presence

import (
	"fmt"
	"time"
)

const (
	// TypingTTL 输入中标记的存活时间
	// start 时必须总是带上 TTL：崩溃或静默断线后不会再有 stop，过期是唯一兜底清理
	TypingTTL = 5 * time.Second

	// NodePointerTTL 用户所在进程指针的存活时间，连接建立时写入并续期
	NodePointerTTL = time.Hour

	// OnlineTTL 房间在线标记的兜底过期时间
	OnlineTTL = time.Hour
)

// BuildTypingKey 输入中标记 Key
// Key: chat:typing:{conversationId}:{userId}，存在即表示正在输入
func BuildTypingKey(conversationID string, userID int64) string {
	return fmt.Sprintf("chat:typing:%s:%d", conversationID, userID)
}

// BuildOnlineKey 房间在线标记 Key
// Key: chat:online:{conversationId}:{userId}
func BuildOnlineKey(conversationID string, userID int64) string {
	return fmt.Sprintf("chat:online:%s:%d", conversationID, userID)
}

// BuildNodePointerKey 用户所在进程指针 Key
// Key: chat:user:node:{userId}，Value 为进程标识
func BuildNodePointerKey(userID int64) string {
	return fmt.Sprintf("chat:user:node:%d", userID)
}
