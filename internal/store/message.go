package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/mrcoder57/chat-express/internal/errors"
	"github.com/mrcoder57/chat-express/internal/model"
)

// MessageStore 消息持久层
// 投递状态以 JSONB 数组整读整写，重复读回执的并发覆盖是接受的 best-effort 行为
type MessageStore struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewMessageStore 创建消息持久层
func NewMessageStore(db *pgxpool.Pool) *MessageStore {
	return &MessageStore{
		db:     db,
		logger: slog.Default(),
	}
}

// Insert 写入消息，ID 由调用方生成
func (s *MessageStore) Insert(ctx context.Context, msg *model.Message) error {
	delivery, err := json.Marshal(msg.Delivery)
	if err != nil {
		return apperrors.ErrServerError.Wrap(err)
	}

	var media []byte
	if msg.Media != nil {
		media, err = json.Marshal(msg.Media)
		if err != nil {
			return apperrors.ErrServerError.Wrap(err)
		}
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content_type, content, media, reply_to, delivery, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.ContentType, msg.Content, media, msg.ReplyTo, delivery, msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		s.logger.Error("Failed to insert message", "messageId", msg.ID, "error", err)
		return apperrors.ErrDBError.Wrap(err)
	}

	return nil
}

// Get 按 ID 读取消息
func (s *MessageStore) Get(ctx context.Context, id int64) (*model.Message, error) {
	var (
		msg       model.Message
		media     []byte
		delivery  []byte
		reactions []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, conversation_id, sender_id, content_type, content, media, reply_to, delivery, reactions, created_at, updated_at
		FROM messages WHERE id = $1
	`, id).Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.ContentType, &msg.Content,
		&media, &msg.ReplyTo, &delivery, &reactions, &msg.CreatedAt, &msg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrMessageNotFound
	}
	if err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}

	if err := json.Unmarshal(delivery, &msg.Delivery); err != nil {
		return nil, apperrors.ErrServerError.Wrap(err)
	}
	if len(media) > 0 {
		msg.Media = &model.MediaMetadata{}
		if err := json.Unmarshal(media, msg.Media); err != nil {
			return nil, apperrors.ErrServerError.Wrap(err)
		}
	}
	if len(reactions) > 0 {
		if err := json.Unmarshal(reactions, &msg.Reactions); err != nil {
			return nil, apperrors.ErrServerError.Wrap(err)
		}
	}

	return &msg, nil
}

// UpdateDelivery 整体回写投递状态数组
func (s *MessageStore) UpdateDelivery(ctx context.Context, id int64, records []model.DeliveryRecord) error {
	delivery, err := json.Marshal(records)
	if err != nil {
		return apperrors.ErrServerError.Wrap(err)
	}

	_, err = s.db.Exec(ctx, `
		UPDATE messages SET delivery = $2, updated_at = now() WHERE id = $1
	`, id, delivery)
	if err != nil {
		return apperrors.ErrDBError.Wrap(err)
	}
	return nil
}

// UpdateReactions 整体回写表情回应数组
func (s *MessageStore) UpdateReactions(ctx context.Context, id int64, reactions []model.Reaction) error {
	data, err := json.Marshal(reactions)
	if err != nil {
		return apperrors.ErrServerError.Wrap(err)
	}

	_, err = s.db.Exec(ctx, `
		UPDATE messages SET reactions = $2, updated_at = now() WHERE id = $1
	`, id, data)
	if err != nil {
		return apperrors.ErrDBError.Wrap(err)
	}
	return nil
}

// ListWithUndelivered 返回会话里仍存在未投递记录的消息
// 用户加入会话时做补投递扫描
func (s *MessageStore) ListWithUndelivered(ctx context.Context, conversationID string) ([]*model.Message, error) {
	needle := `[{"delivered":false}]`

	rows, err := s.db.Query(ctx, `
		SELECT id, delivery FROM messages
		WHERE conversation_id = $1 AND delivery @> $2::jsonb
		ORDER BY id
	`, conversationID, needle)
	if err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		var (
			msg      model.Message
			delivery []byte
		)
		if err := rows.Scan(&msg.ID, &delivery); err != nil {
			return nil, apperrors.ErrDBError.Wrap(err)
		}
		if err := json.Unmarshal(delivery, &msg.Delivery); err != nil {
			return nil, apperrors.ErrServerError.Wrap(err)
		}
		msg.ConversationID = conversationID
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}

	return messages, nil
}

// ListRecent 返回会话最近的消息，新的在前
func (s *MessageStore) ListRecent(ctx context.Context, conversationID string, limit int) ([]*model.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, conversation_id, sender_id, content_type, content, media, reply_to, delivery, reactions, created_at, updated_at
		FROM messages WHERE conversation_id = $1
		ORDER BY id DESC LIMIT $2
	`, conversationID, limit)
	if err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		var (
			msg       model.Message
			media     []byte
			delivery  []byte
			reactions []byte
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.ContentType, &msg.Content,
			&media, &msg.ReplyTo, &delivery, &reactions, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
			return nil, apperrors.ErrDBError.Wrap(err)
		}
		if err := json.Unmarshal(delivery, &msg.Delivery); err != nil {
			return nil, apperrors.ErrServerError.Wrap(err)
		}
		if len(media) > 0 {
			msg.Media = &model.MediaMetadata{}
			if err := json.Unmarshal(media, msg.Media); err != nil {
				return nil, apperrors.ErrServerError.Wrap(err)
			}
		}
		if len(reactions) > 0 {
			if err := json.Unmarshal(reactions, &msg.Reactions); err != nil {
				return nil, apperrors.ErrServerError.Wrap(err)
			}
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}

	return messages, nil
}
