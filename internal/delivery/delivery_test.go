package delivery

import (
	"testing"
	"time"

	apperrors "github.com/mrcoder57/chat-express/internal/errors"
)

func TestInitialize(t *testing.T) {
	participants := []int64{1001, 1002, 1003}
	records := Initialize(participants, 1001)

	if len(records) != len(participants) {
		t.Fatalf("Expected %d records, got %d", len(participants), len(records))
	}

	// 每个成员恰好一条记录
	seen := make(map[int64]int)
	for _, rec := range records {
		seen[rec.UserID]++
	}
	for _, userID := range participants {
		if seen[userID] != 1 {
			t.Errorf("Expected exactly 1 record for user %d, got %d", userID, seen[userID])
		}
	}

	// 发送者创建时即 sent，其余全部初始状态
	for _, rec := range records {
		if rec.UserID == 1001 {
			if !rec.Sent {
				t.Error("Sender record should be marked sent at creation")
			}
		} else if rec.Sent {
			t.Errorf("Record for user %d should not be sent", rec.UserID)
		}
		if rec.Delivered || rec.Read {
			t.Errorf("Record for user %d should start undelivered and unread", rec.UserID)
		}
	}
}

func TestMarkDeliveredForJoiner(t *testing.T) {
	records := Initialize([]int64{1001, 1002, 1003}, 1001)

	changed, err := MarkDeliveredForJoiner(records, 1002)
	if err != nil {
		t.Fatalf("MarkDeliveredForJoiner failed: %v", err)
	}
	if !changed {
		t.Error("Expected first join to change state")
	}

	for _, rec := range records {
		if rec.UserID == 1002 {
			if rec.Delivered {
				t.Error("Joiner's own record should not be marked delivered")
			}
			continue
		}
		if !rec.Delivered {
			t.Errorf("Record for user %d should be delivered", rec.UserID)
		}
		if rec.DeliveredAt == nil {
			t.Errorf("Record for user %d should have deliveredAt set", rec.UserID)
		}
	}
}

func TestMarkDeliveredForJoiner_Idempotent(t *testing.T) {
	records := Initialize([]int64{1001, 1002, 1003}, 1001)

	if _, err := MarkDeliveredForJoiner(records, 1002); err != nil {
		t.Fatalf("First MarkDeliveredForJoiner failed: %v", err)
	}

	// 记录第一次的投递时间，再次 join 不应改动
	firstAt := make(map[int64]time.Time)
	for _, rec := range records {
		if rec.DeliveredAt != nil {
			firstAt[rec.UserID] = *rec.DeliveredAt
		}
	}

	changed, err := MarkDeliveredForJoiner(records, 1002)
	if err != nil {
		t.Fatalf("Second MarkDeliveredForJoiner failed: %v", err)
	}
	if changed {
		t.Error("Second join should not change already delivered records")
	}
	for _, rec := range records {
		if at, ok := firstAt[rec.UserID]; ok && !rec.DeliveredAt.Equal(at) {
			t.Errorf("DeliveredAt for user %d was modified on repeated join", rec.UserID)
		}
	}
}

func TestMarkDeliveredForJoiner_UnknownUser(t *testing.T) {
	records := Initialize([]int64{1001, 1002}, 1001)

	_, err := MarkDeliveredForJoiner(records, 9999)
	if !apperrors.Is(err, apperrors.ErrDeliveryRecordMissing) {
		t.Errorf("Expected ErrDeliveryRecordMissing, got %v", err)
	}
}

func TestMarkRead(t *testing.T) {
	records := Initialize([]int64{1001, 1002}, 1001)

	changed, err := MarkRead(records, 1002)
	if err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if !changed {
		t.Error("Expected first read to change state")
	}

	rec, _ := RecordFor(records, 1002)
	if !rec.Read {
		t.Error("Record should be marked read")
	}
	if rec.ReadAt == nil {
		t.Error("ReadAt should be set")
	}
	// 已读补投递
	if !rec.Delivered {
		t.Error("Read should backfill delivered")
	}
	if rec.DeliveredAt == nil {
		t.Error("Backfilled delivery should set deliveredAt")
	}
}

func TestMarkRead_Idempotent(t *testing.T) {
	records := Initialize([]int64{1001, 1002}, 1001)

	if _, err := MarkRead(records, 1002); err != nil {
		t.Fatalf("First MarkRead failed: %v", err)
	}
	rec, _ := RecordFor(records, 1002)
	firstReadAt := *rec.ReadAt

	changed, err := MarkRead(records, 1002)
	if err != nil {
		t.Fatalf("Second MarkRead failed: %v", err)
	}
	if changed {
		t.Error("Second read should be a no-op")
	}
	if !rec.ReadAt.Equal(firstReadAt) {
		t.Error("ReadAt was modified on repeated read")
	}
}

func TestMarkRead_PreservesDeliveredAt(t *testing.T) {
	records := Initialize([]int64{1001, 1002}, 1001)

	if _, err := MarkDeliveredForJoiner(records, 1002); err != nil {
		t.Fatalf("MarkDeliveredForJoiner failed: %v", err)
	}
	rec, _ := RecordFor(records, 1002)
	// 1002 自己的记录未投递，先补上再验证已投递记录不被覆盖
	if _, err := MarkDeliveredForJoiner(records, 1001); err != nil {
		t.Fatalf("MarkDeliveredForJoiner failed: %v", err)
	}
	deliveredAt := *rec.DeliveredAt

	if _, err := MarkRead(records, 1002); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if !rec.DeliveredAt.Equal(deliveredAt) {
		t.Error("MarkRead should not overwrite an existing deliveredAt")
	}
}

func TestMarkRead_UnknownUser(t *testing.T) {
	records := Initialize([]int64{1001, 1002}, 1001)

	_, err := MarkRead(records, 9999)
	if !apperrors.Is(err, apperrors.ErrDeliveryRecordMissing) {
		t.Errorf("Expected ErrDeliveryRecordMissing, got %v", err)
	}
}
