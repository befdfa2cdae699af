// Package delivery 实现消息的按接收者投递状态机。
// 所有函数都是纯逻辑，直接在传入的记录切片上修改，存储由调用方负责。
package delivery

import (
	"time"

	apperrors "github.com/mrcoder57/chat-express/internal/errors"
	"github.com/mrcoder57/chat-express/internal/model"
)

// Initialize 为每个会话成员创建一条投递记录
// 发送者的记录在创建时即标记 sent，其余成员全部为初始状态
func Initialize(participants []int64, senderID int64) []model.DeliveryRecord {
	records := make([]model.DeliveryRecord, 0, len(participants))
	for _, userID := range participants {
		records = append(records, model.DeliveryRecord{
			UserID: userID,
			Sent:   userID == senderID,
		})
	}
	return records
}

// RecordFor 查找指定用户的投递记录
func RecordFor(records []model.DeliveryRecord, userID int64) (*model.DeliveryRecord, bool) {
	for i := range records {
		if records[i].UserID == userID {
			return &records[i], true
		}
	}
	return nil, false
}

// MarkDeliveredForJoiner 用户加入会话时，把所有不属于该用户且尚未投递的记录标记为已投递
// 幂等：已投递的记录不会被改动
func MarkDeliveredForJoiner(records []model.DeliveryRecord, joinerID int64) (bool, error) {
	if _, ok := RecordFor(records, joinerID); !ok {
		return false, apperrors.ErrDeliveryRecordMissing
	}

	now := time.Now()
	changed := false
	for i := range records {
		if records[i].UserID == joinerID {
			continue
		}
		if records[i].Delivered {
			continue
		}
		records[i].Delivered = true
		records[i].DeliveredAt = &now
		changed = true
	}
	return changed, nil
}

// MarkRead 标记指定用户已读
// 幂等：已读记录不再改动，返回 false 表示无状态变化
// 已读必然可达，因此未投递的记录会一并补上 delivered
func MarkRead(records []model.DeliveryRecord, userID int64) (bool, error) {
	rec, ok := RecordFor(records, userID)
	if !ok {
		return false, apperrors.ErrDeliveryRecordMissing
	}

	if rec.Read {
		return false, nil
	}

	now := time.Now()
	if !rec.Delivered {
		rec.Delivered = true
		rec.DeliveredAt = &now
	}
	rec.Read = true
	rec.ReadAt = &now
	return true, nil
}
