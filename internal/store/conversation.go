package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/mrcoder57/chat-express/internal/errors"
	"github.com/mrcoder57/chat-express/internal/model"
)

// ConversationStore 会话持久层
type ConversationStore struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewConversationStore 创建会话持久层
func NewConversationStore(db *pgxpool.Pool) *ConversationStore {
	return &ConversationStore{
		db:     db,
		logger: slog.Default(),
	}
}

// Create 创建会话
// 单聊按成员对去重：同一对用户重复创建返回已存在的会话
// 成员规则：单聊恰好 2 人，群聊至少 3 人；管理员必须是成员且仅群聊允许
func (s *ConversationStore) Create(ctx context.Context, isGroup bool, participants []int64, adminIDs []int64) (*model.Conversation, error) {
	participants = dedupe(participants)

	if isGroup {
		if len(participants) < 3 {
			return nil, apperrors.ErrGroupTooSmall
		}
	} else {
		if len(participants) != 2 {
			return nil, apperrors.ErrDirectNeedsTwoMembers
		}
		if len(adminIDs) > 0 {
			return nil, apperrors.ErrInvalidParticipants
		}
	}

	memberSet := make(map[int64]struct{}, len(participants))
	for _, id := range participants {
		memberSet[id] = struct{}{}
	}
	for _, admin := range adminIDs {
		if _, ok := memberSet[admin]; !ok {
			return nil, apperrors.ErrInvalidParticipants
		}
	}

	if !isGroup {
		existing, err := s.findDirect(ctx, participants[0], participants[1])
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	now := time.Now()
	conv := &model.Conversation{
		ID:           uuid.NewString(),
		IsGroup:      isGroup,
		Participants: participants,
		AdminIDs:     adminIDs,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO conversations (id, is_group, admin_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, conv.ID, conv.IsGroup, conv.AdminIDs, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}

	for _, userID := range participants {
		_, err = tx.Exec(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id, muted, unread_count)
			VALUES ($1, $2, false, 0)
		`, conv.ID, userID)
		if err != nil {
			return nil, apperrors.ErrDBError.Wrap(err)
		}
		conv.Settings = append(conv.Settings, model.ParticipantSetting{UserID: userID})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}

	s.logger.Debug("Conversation created", "conversationId", conv.ID, "isGroup", isGroup, "participants", len(participants))
	return conv, nil
}

// findDirect 查找同一对用户的已有单聊
func (s *ConversationStore) findDirect(ctx context.Context, a, b int64) (*model.Conversation, error) {
	var id string
	err := s.db.QueryRow(ctx, `
		SELECT c.id FROM conversations c
		WHERE c.is_group = false
		  AND EXISTS (SELECT 1 FROM conversation_participants WHERE conversation_id = c.id AND user_id = $1)
		  AND EXISTS (SELECT 1 FROM conversation_participants WHERE conversation_id = c.id AND user_id = $2)
		LIMIT 1
	`, a, b).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}
	return s.Get(ctx, id)
}

// Get 按 ID 读取会话，含成员和成员设置
func (s *ConversationStore) Get(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.QueryRow(ctx, `
		SELECT id, is_group, admin_ids, last_message_id, created_at, updated_at
		FROM conversations WHERE id = $1
	`, id).Scan(&conv.ID, &conv.IsGroup, &conv.AdminIDs, &conv.LastMessageID, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrConversationNotFound
	}
	if err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT user_id, muted, unread_count
		FROM conversation_participants WHERE conversation_id = $1
		ORDER BY user_id
	`, id)
	if err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}
	defer rows.Close()

	for rows.Next() {
		var setting model.ParticipantSetting
		if err := rows.Scan(&setting.UserID, &setting.Muted, &setting.UnreadCount); err != nil {
			return nil, apperrors.ErrDBError.Wrap(err)
		}
		conv.Participants = append(conv.Participants, setting.UserID)
		conv.Settings = append(conv.Settings, setting)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}

	return &conv, nil
}

// ListForUser 返回用户参与的全部会话，按更新时间倒序
func (s *ConversationStore) ListForUser(ctx context.Context, userID int64) ([]*model.Conversation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT c.id FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = $1
		ORDER BY c.updated_at DESC
	`, userID)
	if err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.ErrDBError.Wrap(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}

	conversations := make([]*model.Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, nil
}

// SetLastMessage 更新会话的最后一条消息指针
func (s *ConversationStore) SetLastMessage(ctx context.Context, conversationID string, messageID int64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE conversations SET last_message_id = $2, updated_at = $3 WHERE id = $1
	`, conversationID, messageID, time.Now())
	if err != nil {
		return apperrors.ErrDBError.Wrap(err)
	}
	return nil
}

// IncrementUnread 给除发送者外的所有成员未读数加一
func (s *ConversationStore) IncrementUnread(ctx context.Context, conversationID string, exceptUserID int64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE conversation_participants SET unread_count = unread_count + 1
		WHERE conversation_id = $1 AND user_id <> $2
	`, conversationID, exceptUserID)
	if err != nil {
		return apperrors.ErrDBError.Wrap(err)
	}
	return nil
}

// ResetUnread 清零指定成员的未读数
func (s *ConversationStore) ResetUnread(ctx context.Context, conversationID string, userID int64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE conversation_participants SET unread_count = 0
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID)
	if err != nil {
		return apperrors.ErrDBError.Wrap(err)
	}
	return nil
}

// dedupe 去重并保持原有顺序
func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
